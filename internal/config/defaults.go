package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerPort      = 8000
	DefaultServerMode      = "release"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultBaseURL          = "https://www.nseindia.com"
	DefaultQuotesPath       = "/api/quotes"
	DefaultDetailPath       = "/api/quote-equity"
	DefaultIndicesPath      = "/api/allIndices"
	DefaultCatalogURL       = "https://archives.nseindia.com/content/equities/EQUITY_L.csv"
	DefaultUpstreamTimeout  = 15 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryBackoff     = time.Second
	DefaultMinInterval      = time.Second
	DefaultSessionMaxAge    = 5 * time.Minute
	DefaultHandshakeRetries = 2
	DefaultPrimeDelay       = time.Second
	DefaultBreakerFailures  = 5
	DefaultBreakerTimeout   = 30 * time.Second

	DefaultRegistrySource = "http"
	DefaultRegistrySeries = "EQ"
	DefaultRegistryTable  = "instruments"
	DefaultRegistryFetch  = 30 * time.Second

	DefaultChunkSize           = 50
	DefaultMaxConcurrentChunks = 4
	DefaultWarmLimit           = 20

	DefaultCacheBackend   = "memory"
	DefaultCachePrefix    = "financer:"
	DefaultDialTimeout    = 3 * time.Second
	DefaultSweepInterval  = time.Minute
	DefaultTTL            = 5 * time.Minute
	DefaultPageTTL        = 5 * time.Minute
	DefaultPlaceholderTTL = time.Minute
	DefaultPartialTTL     = time.Minute
	DefaultDetailTTL      = 3 * time.Minute
	DefaultIndicesTTL     = 2 * time.Minute
	DefaultStaleTTL       = 24 * time.Hour

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 4
	DefaultMinConns  = 1

	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"
)

// DefaultIndices are the index keys reported by the indices endpoint.
var DefaultIndices = []string{"NIFTY 50", "NIFTY BANK", "NIFTY IT", "NIFTY TOTAL MARKET"}

// ApplyDefaults fills every zero-valued optional field.
func (c *Config) ApplyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.Mode == "" {
		c.Server.Mode = DefaultServerMode
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	c.applyUpstreamDefaults()

	// Registry defaults
	if c.Registry.Source == "" {
		c.Registry.Source = DefaultRegistrySource
	}
	if c.Registry.Series == "" {
		c.Registry.Series = DefaultRegistrySeries
	}
	if c.Registry.Table == "" {
		c.Registry.Table = DefaultRegistryTable
	}
	if c.Registry.FetchTimeout == 0 {
		c.Registry.FetchTimeout = DefaultRegistryFetch
	}

	// Pipeline defaults
	if c.Pipeline.ChunkSize == 0 {
		c.Pipeline.ChunkSize = DefaultChunkSize
	}
	if c.Pipeline.MaxConcurrentChunks == 0 {
		c.Pipeline.MaxConcurrentChunks = DefaultMaxConcurrentChunks
	}
	if c.Pipeline.WarmLimit == 0 {
		c.Pipeline.WarmLimit = DefaultWarmLimit
	}

	c.applyCacheDefaults()

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func (c *Config) applyUpstreamDefaults() {
	u := &c.Upstream
	if u.BaseURL == "" {
		u.BaseURL = DefaultBaseURL
	}
	if u.QuotesPath == "" {
		u.QuotesPath = DefaultQuotesPath
	}
	if u.DetailPath == "" {
		u.DetailPath = DefaultDetailPath
	}
	if u.IndicesPath == "" {
		u.IndicesPath = DefaultIndicesPath
	}
	if u.CatalogURL == "" {
		u.CatalogURL = DefaultCatalogURL
	}
	if u.Timeout == 0 {
		u.Timeout = DefaultUpstreamTimeout
	}
	if u.MaxRetries == 0 {
		u.MaxRetries = DefaultMaxRetries
	}
	if u.RetryBackoff == 0 {
		u.RetryBackoff = DefaultRetryBackoff
	}
	if u.MinInterval == 0 {
		u.MinInterval = DefaultMinInterval
	}
	if u.SessionMaxAge == 0 {
		u.SessionMaxAge = DefaultSessionMaxAge
	}
	if u.HandshakeRetries == 0 {
		u.HandshakeRetries = DefaultHandshakeRetries
	}
	if u.PrimeDelay == 0 {
		u.PrimeDelay = DefaultPrimeDelay
	}
	if u.Breaker.FailureThreshold == 0 {
		u.Breaker.FailureThreshold = DefaultBreakerFailures
	}
	if u.Breaker.OpenTimeout == 0 {
		u.Breaker.OpenTimeout = DefaultBreakerTimeout
	}
	if len(u.Indices) == 0 {
		u.Indices = append([]string(nil), DefaultIndices...)
	}
}

func (c *Config) applyCacheDefaults() {
	cc := &c.Cache
	if cc.Backend == "" {
		cc.Backend = DefaultCacheBackend
	}
	if cc.Prefix == "" {
		cc.Prefix = DefaultCachePrefix
	}
	if cc.DialTimeout == 0 {
		cc.DialTimeout = DefaultDialTimeout
	}
	if cc.SweepInterval == 0 {
		cc.SweepInterval = DefaultSweepInterval
	}
	if cc.DefaultTTL == 0 {
		cc.DefaultTTL = DefaultTTL
	}
	// Per-kind TTLs inherit the default TTL where it was overridden.
	if cc.PageTTL == 0 {
		cc.PageTTL = cc.DefaultTTL
	}
	if cc.PlaceholderTTL == 0 {
		cc.PlaceholderTTL = DefaultPlaceholderTTL
	}
	if cc.PartialTTL == 0 {
		cc.PartialTTL = DefaultPartialTTL
	}
	if cc.DetailTTL == 0 {
		cc.DetailTTL = DefaultDetailTTL
	}
	if cc.IndicesTTL == 0 {
		cc.IndicesTTL = DefaultIndicesTTL
	}
	if cc.StaleTTL == 0 {
		cc.StaleTTL = DefaultStaleTTL
	}
}
