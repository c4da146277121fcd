package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/stockcache/internal/metrics"
	"github.com/rickgao/stockcache/internal/model"
)

// ErrUnavailable reports that the catalog could not be loaded. Resolve
// absorbs it by falling back; it is surfaced only through logs and Load.
var ErrUnavailable = errors.New("instrument catalog unavailable")

// Source loads the raw instrument catalog.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]model.Instrument, error)
}

// Registry owns the instrument universe.
type Registry struct {
	source       Source
	fallback     []model.Instrument
	fetchTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time

	// loadMu serializes catalog loads; mu guards only the fields below so
	// Current never waits on a load.
	loadMu sync.Mutex

	mu      sync.Mutex
	current *Universe
	epoch   uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithFallback replaces the static fallback list.
func WithFallback(instruments []model.Instrument) Option {
	return func(r *Registry) {
		r.fallback = instruments
	}
}

// WithFetchTimeout bounds a single catalog load.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.fetchTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates a Registry over source. A nil source always uses the fallback.
func New(source Source, opts ...Option) *Registry {
	r := &Registry{
		source:       source,
		fallback:     DefaultFallback(),
		fetchTimeout: 30 * time.Second,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the current universe, loading it on first use. Concurrent
// callers during the first load wait for it rather than loading twice. The
// load is detached from ctx cancellation: an abandoned request must not pin
// the fallback list for the whole generation.
func (r *Registry) Resolve(ctx context.Context) *Universe {
	if u, ok := r.Current(); ok {
		return u
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	for {
		r.mu.Lock()
		if r.current != nil {
			u := r.current
			r.mu.Unlock()
			return u
		}
		epoch := r.epoch
		r.mu.Unlock()

		u := r.load(context.WithoutCancel(ctx))

		r.mu.Lock()
		if r.epoch != epoch {
			// Invalidated while loading; this result is already out of date.
			r.mu.Unlock()
			continue
		}
		r.current = u
		r.mu.Unlock()

		r.metrics.RegistryLoaded(u.Source, u.Fallback, u.Len())
		r.logger.Info("instrument universe loaded",
			"source", u.Source,
			"instruments", u.Len(),
			"fallback", u.Fallback,
			"generation", u.Generation.String(),
		)
		return u
	}
}

// Current returns the loaded universe without triggering a load. It does
// not wait for a load in progress.
func (r *Registry) Current() (*Universe, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.current != nil
}

// Invalidate drops the current universe; the next Resolve reloads it and
// starts a new generation. A load already in progress is discarded.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		r.logger.Info("instrument universe invalidated", "generation", r.current.Generation.String())
	}
	r.current = nil
	r.epoch++
}

func (r *Registry) load(ctx context.Context) *Universe {
	if r.source == nil {
		return newUniverse(r.fallback, SourceStatic, true, r.now())
	}

	rows, err := r.loadSource(ctx)
	if err == nil {
		u := newUniverse(rows, r.source.Name(), false, r.now())
		if u.Len() > 0 {
			return u
		}
		err = fmt.Errorf("%w: %s returned no usable rows", ErrUnavailable, r.source.Name())
	}

	r.logger.Warn("instrument catalog unavailable, using fallback list",
		"source", r.source.Name(),
		"fallback_size", len(r.fallback),
		"err", err,
	)
	return newUniverse(r.fallback, r.source.Name(), true, r.now())
}

func (r *Registry) loadSource(ctx context.Context) ([]model.Instrument, error) {
	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}

	rows, err := r.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, r.source.Name(), err)
	}
	return rows, nil
}
