package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/stockcache/internal/config"
)

func newTestRedis(t *testing.T, opts ...Option) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, opts...)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	require.NoError(t, store.Set(ctx, "detail:TCS", []byte(`{"symbol":"TCS"}`), time.Minute))

	// Keys are namespaced.
	require.True(t, mr.Exists("financer:detail:TCS"))

	got, ok := store.Get(ctx, "detail:TCS")
	require.True(t, ok)
	require.Equal(t, `{"symbol":"TCS"}`, string(got))

	_, ok = store.Get(ctx, "detail:INFY")
	require.False(t, ok)
}

func TestRedisStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 60*time.Second))
	mr.FastForward(59 * time.Second)
	_, ok := store.Get(ctx, "k")
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok = store.Get(ctx, "k")
	require.False(t, ok)
	require.Equal(t, 0, store.Sweep(ctx))
}

func TestRedisStore_InvalidTTL(t *testing.T) {
	store, mr := newTestRedis(t)

	err := store.Set(context.Background(), "k", []byte("v"), 0)
	require.ErrorIs(t, err, ErrInvalidTTL)
	require.False(t, mr.Exists("financer:k"))
}

func TestRedisStore_ClearOnlyOwnPrefix(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	require.NoError(t, mr.Set("other:key", "x"))
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, store.Set(ctx, k, []byte("v"), time.Minute))
	}
	require.Equal(t, 3, store.Stats(ctx).Entries)

	require.NoError(t, store.Clear(ctx))
	require.Equal(t, 0, store.Stats(ctx).Entries)
	require.True(t, mr.Exists("other:key"))
}

func TestRedisStore_BackendDown(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	mr.Close()

	_, ok := store.Get(ctx, "k")
	require.False(t, ok, "backend errors read as a miss")

	err := store.Set(ctx, "k", []byte("v"), time.Minute)
	require.ErrorIs(t, err, ErrUnavailable)
	require.False(t, store.Health(ctx))
}

func TestEscapeGlob(t *testing.T) {
	require.Equal(t, `financer:`, escapeGlob("financer:"))
	require.Equal(t, `a\*b\?\[c\]`, escapeGlob("a*b?[c]"))
}

func TestNew_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	store := New(context.Background(), config.CacheConfig{
		Backend:     BackendRedis,
		RedisURL:    "redis://" + mr.Addr(),
		Prefix:      "test:",
		DialTimeout: time.Second,
	}, nil)
	defer store.Close()

	_, isRedis := store.(*RedisStore)
	require.True(t, isRedis)
	require.Equal(t, BackendRedis, store.Stats(context.Background()).Backend)
}

func TestNew_FallsBackToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	store := New(context.Background(), config.CacheConfig{
		Backend:     BackendRedis,
		RedisURL:    "redis://" + addr,
		Prefix:      "test:",
		DialTimeout: 200 * time.Millisecond,
	}, nil)
	defer store.Close()

	_, isMemory := store.(*MemoryStore)
	require.True(t, isMemory)
	require.True(t, store.Health(context.Background()))
}

func TestNew_BadURLFallsBack(t *testing.T) {
	store := New(context.Background(), config.CacheConfig{
		Backend:  BackendRedis,
		RedisURL: "not a url",
	}, nil)
	defer store.Close()

	require.Equal(t, BackendMemory, store.Stats(context.Background()).Backend)
}
