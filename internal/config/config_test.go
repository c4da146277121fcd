package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  port: 8080
upstream:
  base_url: https://upstream.example.com
  min_interval: 250ms
cache:
  backend: redis
  redis_url: redis://localhost:6379/0
pipeline:
  chunk_size: 25
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Upstream.BaseURL != "https://upstream.example.com" {
		t.Errorf("Upstream.BaseURL = %q, want %q", cfg.Upstream.BaseURL, "https://upstream.example.com")
	}
	if cfg.Upstream.MinInterval != 250*time.Millisecond {
		t.Errorf("Upstream.MinInterval = %v, want %v", cfg.Upstream.MinInterval, 250*time.Millisecond)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("Cache.Backend = %q, want %q", cfg.Cache.Backend, "redis")
	}
	if cfg.Pipeline.ChunkSize != 25 {
		t.Errorf("Pipeline.ChunkSize = %d, want %d", cfg.Pipeline.ChunkSize, 25)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_REDIS_URL", "redis://cache.internal:6379/2")

	yaml := `
cache:
  backend: redis
  redis_url: ${TEST_REDIS_URL}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Cache.RedisURL != "redis://cache.internal:6379/2" {
		t.Errorf("Cache.RedisURL = %q, want %q", cfg.Cache.RedisURL, "redis://cache.internal:6379/2")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
cache:
  default_ttl: 2m
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Upstream.BaseURL != DefaultBaseURL {
		t.Errorf("Upstream.BaseURL = %q, want default %q", cfg.Upstream.BaseURL, DefaultBaseURL)
	}
	if cfg.Upstream.Timeout != DefaultUpstreamTimeout {
		t.Errorf("Upstream.Timeout = %v, want default %v", cfg.Upstream.Timeout, DefaultUpstreamTimeout)
	}
	if cfg.Upstream.MinInterval != DefaultMinInterval {
		t.Errorf("Upstream.MinInterval = %v, want default %v", cfg.Upstream.MinInterval, DefaultMinInterval)
	}
	if cfg.Pipeline.ChunkSize != DefaultChunkSize {
		t.Errorf("Pipeline.ChunkSize = %d, want default %d", cfg.Pipeline.ChunkSize, DefaultChunkSize)
	}
	if cfg.Cache.Backend != DefaultCacheBackend {
		t.Errorf("Cache.Backend = %q, want default %q", cfg.Cache.Backend, DefaultCacheBackend)
	}
	// Page TTL follows an overridden default TTL.
	if cfg.Cache.PageTTL != 2*time.Minute {
		t.Errorf("Cache.PageTTL = %v, want %v", cfg.Cache.PageTTL, 2*time.Minute)
	}
	if cfg.Cache.DetailTTL != DefaultDetailTTL {
		t.Errorf("Cache.DetailTTL = %v, want default %v", cfg.Cache.DetailTTL, DefaultDetailTTL)
	}
	if len(cfg.Upstream.Indices) != len(DefaultIndices) {
		t.Errorf("len(Upstream.Indices) = %d, want %d", len(cfg.Upstream.Indices), len(DefaultIndices))
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: `log.format must be text or json, got "xml"`,
		},
		{
			name:    "unknown cache backend",
			mutate:  func(c *Config) { c.Cache.Backend = "memcached" },
			wantErr: `cache.backend must be memory or redis, got "memcached"`,
		},
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.Cache.Backend = "redis" },
			wantErr: "cache.redis_url is required for the redis backend",
		},
		{
			name:    "negative detail ttl",
			mutate:  func(c *Config) { c.Cache.DetailTTL = -time.Second },
			wantErr: "cache.detail_ttl must be > 0",
		},
		{
			name: "placeholder ttl exceeds page ttl",
			mutate: func(c *Config) {
				c.Cache.PlaceholderTTL = 10 * time.Minute
				c.Cache.PageTTL = time.Minute
			},
			wantErr: "cache.placeholder_ttl (10m0s) cannot exceed cache.page_ttl (1m0s)",
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.Pipeline.ChunkSize = 0 },
			wantErr: "pipeline.chunk_size must be >= 1",
		},
		{
			name:    "negative warm interval",
			mutate:  func(c *Config) { c.Pipeline.WarmInterval = -time.Second },
			wantErr: "pipeline.warm_interval must be >= 0",
		},
		{
			name:    "unknown registry source",
			mutate:  func(c *Config) { c.Registry.Source = "ftp" },
			wantErr: `registry.source must be http, postgres or static, got "ftp"`,
		},
		{
			name:    "postgres source without host",
			mutate:  func(c *Config) { c.Registry.Source = "postgres" },
			wantErr: "database.host is required",
		},
		{
			name: "postgres min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Registry.Source = "postgres"
				c.Database = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 2, MinConns: 5}
			},
			wantErr: "database.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadAndValidate_ExampleConfig(t *testing.T) {
	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "stockcache.example.yaml"))
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Pipeline.WarmLimit != 20 {
		t.Errorf("Pipeline.WarmLimit = %d, want %d", cfg.Pipeline.WarmLimit, 20)
	}
	if cfg.Pipeline.WarmInterval != 0 {
		t.Errorf("Pipeline.WarmInterval = %v, want 0", cfg.Pipeline.WarmInterval)
	}
	if len(cfg.Upstream.Indices) != 4 {
		t.Errorf("Upstream.Indices = %v, want 4 entries", cfg.Upstream.Indices)
	}
}
