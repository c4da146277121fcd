package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var (
	// ErrInvalidTTL is returned by Set for a non-positive TTL. Nothing is stored.
	ErrInvalidTTL = errors.New("cache: ttl must be positive")

	// ErrUnavailable wraps backend failures (network, serialization).
	ErrUnavailable = errors.New("cache: backend unavailable")

	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("cache: store is closed")
)

// Backend kinds reported by Stats.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Store is a namespaced byte store with per-entry TTL.
//
// Implementations must be safe for concurrent use. Set is last-writer-wins and a
// Get never observes a partially written value.
type Store interface {
	// Get returns (value, true) while the entry is live, (nil, false) otherwise.
	// Reading an expired entry removes it.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set overwrites key unconditionally, expiring after ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key succeeds.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry under the store's prefix.
	Clear(ctx context.Context) error

	// Stats reports backend kind and entry count, for observability only.
	Stats(ctx context.Context) Stats

	// Health reports whether the backend is responsive. It never panics.
	Health(ctx context.Context) bool

	// Sweep removes expired entries and returns how many were removed.
	Sweep(ctx context.Context) int

	// Close releases resources and stops background work.
	Close() error
}

// Stats describes a store at a point in time.
type Stats struct {
	Backend string         `json:"backend"`
	Entries int            `json:"entries"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// Option configures a store.
type Option func(*options)

type options struct {
	prefix        string
	now           func() time.Time
	sweepInterval time.Duration
	logger        *slog.Logger
}

func defaultOptions() options {
	return options{
		prefix: "financer:",
		now:    time.Now,
		logger: slog.Default(),
	}
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithClock replaces time.Now, for simulated time in tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithSweepInterval enables the background expiry sweep (memory backend only).
// A non-positive interval disables it; lazy expiry on Get still applies.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		o.sweepInterval = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
