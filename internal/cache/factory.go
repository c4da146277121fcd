package cache

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/stockcache/internal/config"
)

// New builds the configured backend.
//
// If the redis backend cannot be reached at startup, New logs a degradation
// event and returns a MemoryStore instead; it never fails.
func New(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []Option{
		WithPrefix(cfg.Prefix),
		WithLogger(logger),
	}

	if cfg.Backend == BackendRedis {
		store, err := newRedis(ctx, cfg, opts)
		if err == nil {
			logger.Info("cache backend ready", "backend", BackendRedis)
			return store
		}
		logger.Warn("cache backend degraded, falling back to memory",
			"backend", BackendRedis,
			"err", err,
		)
	}

	logger.Info("cache backend ready", "backend", BackendMemory, "sweep_interval", cfg.SweepInterval)
	return NewMemoryStore(append(opts, WithSweepInterval(cfg.SweepInterval))...)
}

func newRedis(ctx context.Context, cfg config.CacheConfig, opts []Option) (*RedisStore, error) {
	ropts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if cfg.DialTimeout > 0 {
		ropts.DialTimeout = cfg.DialTimeout
	}

	client := redis.NewClient(ropts)

	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisStore(client, opts...), nil
}
