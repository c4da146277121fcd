package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore is a process-local Store.
//
// Expired entries are logically absent immediately and physically removed either
// on the next Get of that key or by the periodic sweep.
type MemoryStore struct {
	opts options

	mu     sync.RWMutex
	items  map[string]entry
	closed bool

	hits    atomic.Int64
	misses  atomic.Int64
	expired atomic.Int64

	// Goroutine ownership.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type entry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time
}

func (e entry) liveAt(now time.Time) bool {
	return now.Before(e.expiresAt)
}

// NewMemoryStore creates a MemoryStore and starts its sweep loop if enabled.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &MemoryStore{
		opts:   o,
		items:  make(map[string]entry),
		ctx:    ctx,
		cancel: cancel,
	}

	if o.sweepInterval > 0 {
		m.wg.Add(1)
		go m.sweepLoop()
	}

	return m
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	k := m.opts.prefix + key
	now := m.opts.now()

	m.mu.RLock()
	e, ok := m.items[k]
	if !ok {
		m.mu.RUnlock()
		m.misses.Add(1)
		return nil, false
	}
	if e.liveAt(now) {
		v := cloneBytes(e.value)
		m.mu.RUnlock()
		m.hits.Add(1)
		return v, true
	}
	m.mu.RUnlock()

	// Expired: re-check under the write lock, a concurrent Set may have replaced it.
	m.mu.Lock()
	if cur, ok := m.items[k]; ok && !cur.liveAt(now) {
		delete(m.items, k)
		m.expired.Add(1)
	}
	m.mu.Unlock()

	m.misses.Add(1)
	return nil, false
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	now := m.opts.now()
	e := entry{
		value:     cloneBytes(value),
		createdAt: now,
		expiresAt: now.Add(ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.items[m.opts.prefix+key] = e
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, m.opts.prefix+key)
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.items {
		if strings.HasPrefix(k, m.opts.prefix) {
			delete(m.items, k)
		}
	}
	return nil
}

// Stats implements Store. Entries includes expired entries not yet swept.
func (m *MemoryStore) Stats(_ context.Context) Stats {
	m.mu.RLock()
	n := len(m.items)
	m.mu.RUnlock()

	return Stats{
		Backend: BackendMemory,
		Entries: n,
		Detail: map[string]any{
			"hits":    m.hits.Load(),
			"misses":  m.misses.Load(),
			"expired": m.expired.Load(),
		},
	}
}

// Health implements Store. A local map is always reachable.
func (m *MemoryStore) Health(_ context.Context) bool {
	return true
}

// Sweep implements Store.
func (m *MemoryStore) Sweep(_ context.Context) int {
	now := m.opts.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.items {
		if !e.liveAt(now) {
			delete(m.items, k)
			removed++
		}
	}
	m.expired.Add(int64(removed))
	return removed
}

// Close stops the sweep loop. It is safe to call multiple times.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	return nil
}

func (m *MemoryStore) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(m.ctx); n > 0 {
				m.opts.logger.Debug("cache sweep removed expired entries", "removed", n)
			}
		}
	}
}

var _ Store = (*MemoryStore)(nil)
