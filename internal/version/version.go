// Package version carries build information stamped in via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/stockcache/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/stockcache/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/stockcache/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/stockcache
package version

import "runtime"

// Set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build information reported by /health.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String returns "version (commit) built time".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
