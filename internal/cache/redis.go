package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 500

// RedisStore is a Store backed by a shared Redis instance.
//
// Expiry is delegated to Redis (SET with expiry), so Sweep is a no-op.
type RedisStore struct {
	client redis.UniversalClient
	opts   options

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// NewRedisStore wraps an existing client. The store takes ownership of the client.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisStore{client: client, opts: o}
}

// Get implements Store. Backend errors are logged and reported as a miss.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.client.Get(ctx, r.opts.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.errors.Add(1)
			r.opts.logger.Warn("cache get failed, treating as miss", "key", key, "err", err)
		}
		r.misses.Add(1)
		return nil, false
	}
	r.hits.Add(1)
	return b, true
}

// Set implements Store.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := r.client.Set(ctx, r.opts.prefix+key, value, ttl).Err(); err != nil {
		r.errors.Add(1)
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.opts.prefix+key).Err(); err != nil {
		r.errors.Add(1)
		return fmt.Errorf("%w: delete %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Clear implements Store by scanning the prefix and deleting in batches.
func (r *RedisStore) Clear(ctx context.Context) error {
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	iter := r.client.Scan(ctx, 0, r.matchPattern(), scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				r.errors.Add(1)
				return fmt.Errorf("%w: clear: %v", ErrUnavailable, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		r.errors.Add(1)
		return fmt.Errorf("%w: clear scan: %v", ErrUnavailable, err)
	}
	if err := flush(); err != nil {
		r.errors.Add(1)
		return fmt.Errorf("%w: clear: %v", ErrUnavailable, err)
	}
	return nil
}

// Stats implements Store. Entries is -1 when the backend cannot be scanned.
func (r *RedisStore) Stats(ctx context.Context) Stats {
	st := Stats{
		Backend: BackendRedis,
		Detail: map[string]any{
			"hits":   r.hits.Load(),
			"misses": r.misses.Load(),
			"errors": r.errors.Load(),
		},
	}

	n := 0
	iter := r.client.Scan(ctx, 0, r.matchPattern(), scanBatch).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		st.Entries = -1
		st.Detail["error"] = err.Error()
		return st
	}
	st.Entries = n

	if info, err := r.client.Info(ctx, "memory").Result(); err == nil {
		if v, ok := infoField(info, "used_memory_human"); ok {
			st.Detail["memory_used"] = v
		}
	}
	return st
}

// Health implements Store.
func (r *RedisStore) Health(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

// Sweep implements Store. Redis expires keys itself.
func (r *RedisStore) Sweep(_ context.Context) int {
	return 0
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) matchPattern() string {
	return escapeGlob(r.opts.prefix) + "*"
}

// escapeGlob escapes Redis MATCH metacharacters.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// infoField extracts a "name:value" line from an INFO reply.
func infoField(info, name string) (string, bool) {
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if v, ok := strings.CutPrefix(line, name+":"); ok {
			return v, true
		}
	}
	return "", false
}

var _ Store = (*RedisStore)(nil)
