package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}
	if c.Upstream.Timeout <= 0 {
		return errors.New("upstream.timeout must be > 0")
	}
	if c.Upstream.MinInterval < 0 {
		return errors.New("upstream.min_interval must be >= 0")
	}
	if c.Upstream.MaxRetries < 0 {
		return errors.New("upstream.max_retries must be >= 0")
	}

	switch c.Registry.Source {
	case "http", "static":
	case "postgres":
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("registry.source must be http, postgres or static, got %q", c.Registry.Source)
	}

	if c.Pipeline.ChunkSize < 1 {
		return errors.New("pipeline.chunk_size must be >= 1")
	}
	if c.Pipeline.MaxConcurrentChunks < 1 {
		return errors.New("pipeline.max_concurrent_chunks must be >= 1")
	}
	if c.Pipeline.WarmInterval < 0 {
		return errors.New("pipeline.warm_interval must be >= 0")
	}
	if c.Pipeline.WarmLimit < 1 {
		return errors.New("pipeline.warm_limit must be >= 1")
	}

	if err := c.Cache.validate(); err != nil {
		return err
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (cc *CacheConfig) validate() error {
	switch cc.Backend {
	case "memory":
	case "redis":
		if cc.RedisURL == "" {
			return errors.New("cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", cc.Backend)
	}

	ttls := []struct {
		name string
		v    int64
	}{
		{"cache.default_ttl", int64(cc.DefaultTTL)},
		{"cache.page_ttl", int64(cc.PageTTL)},
		{"cache.placeholder_ttl", int64(cc.PlaceholderTTL)},
		{"cache.partial_ttl", int64(cc.PartialTTL)},
		{"cache.detail_ttl", int64(cc.DetailTTL)},
		{"cache.indices_ttl", int64(cc.IndicesTTL)},
		{"cache.stale_ttl", int64(cc.StaleTTL)},
	}
	for _, ttl := range ttls {
		if ttl.v <= 0 {
			return fmt.Errorf("%s must be > 0", ttl.name)
		}
	}

	if cc.PlaceholderTTL > cc.PageTTL {
		return fmt.Errorf("cache.placeholder_ttl (%s) cannot exceed cache.page_ttl (%s)", cc.PlaceholderTTL, cc.PageTTL)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
