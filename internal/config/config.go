package config

import "time"

// Config is the root configuration for a stockcache instance.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Registry RegistryConfig `yaml:"registry"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cache    CacheConfig    `yaml:"cache"`
	Database DBConfig       `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Mode            string        `yaml:"mode"` // gin mode: debug, release, test
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// UpstreamConfig holds market-data source settings.
type UpstreamConfig struct {
	BaseURL     string `yaml:"base_url"`
	QuotesPath  string `yaml:"quotes_path"`
	DetailPath  string `yaml:"detail_path"`
	IndicesPath string `yaml:"indices_path"`
	CatalogURL  string `yaml:"catalog_url"`

	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Pacing and session handshake.
	MinInterval      time.Duration `yaml:"min_interval"`
	SessionMaxAge    time.Duration `yaml:"session_max_age"`
	HandshakeRetries int           `yaml:"handshake_retries"`
	PrimeDelay       time.Duration `yaml:"prime_delay"`

	Breaker BreakerConfig `yaml:"breaker"`
	Indices []string      `yaml:"indices"`
}

// BreakerConfig controls the circuit breaker around upstream calls.
// A zero FailureThreshold disables the breaker.
type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// RegistryConfig selects the instrument catalog source.
type RegistryConfig struct {
	Source       string        `yaml:"source"` // http, postgres, static
	Series       string        `yaml:"series"` // CSV series filter, empty keeps all rows
	Table        string        `yaml:"table"`  // postgres catalog table
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// PipelineConfig holds batch ingestion settings.
type PipelineConfig struct {
	ChunkSize           int           `yaml:"chunk_size"`
	MaxConcurrentChunks int           `yaml:"max_concurrent_chunks"`
	WarmInterval        time.Duration `yaml:"warm_interval"` // 0 disables the first-page warmer
	WarmLimit           int           `yaml:"warm_limit"`
}

// CacheConfig holds cache backend and TTL settings.
type CacheConfig struct {
	Backend       string        `yaml:"backend"` // memory or redis
	RedisURL      string        `yaml:"redis_url"`
	Prefix        string        `yaml:"prefix"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	DefaultTTL     time.Duration `yaml:"default_ttl"`
	PageTTL        time.Duration `yaml:"page_ttl"`
	PlaceholderTTL time.Duration `yaml:"placeholder_ttl"`
	PartialTTL     time.Duration `yaml:"partial_ttl"`
	DetailTTL      time.Duration `yaml:"detail_ttl"`
	IndicesTTL     time.Duration `yaml:"indices_ttl"`
	StaleTTL       time.Duration `yaml:"stale_ttl"`
}

// DBConfig holds the PostgreSQL connection used by the postgres catalog source.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
