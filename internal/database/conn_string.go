package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/stockcache/internal/config"
)

const applicationName = "stockcache"

// BuildConnString builds a PostgreSQL connection URL from config.
// Credentials are escaped by net/url.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	port := cfg.Port
	if port == 0 {
		port = config.DefaultDBPort
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", applicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
