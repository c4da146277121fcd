// Package gate implements the upstream session gate: the single chokepoint
// that paces every outbound upstream call and owns the handshake state.
package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/stockcache/internal/metrics"
	"github.com/rickgao/stockcache/internal/model"
)

// Primer performs the upstream handshake. *api.Client satisfies it; its
// requests take their turns through the pacer wired to AwaitTurn.
type Primer interface {
	Prime(ctx context.Context, delay time.Duration) error
}

// Gate serializes upstream turns and keeps the session alive.
//
// Pacing and session state are shared by every pipeline invocation.
type Gate struct {
	limiter *rate.Limiter
	primer  Primer

	primeDelay   time.Duration
	maxAge       time.Duration
	retries      int
	retryBackoff time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// handshakeMu is held for a whole handshake so concurrent pages share one.
	handshakeMu sync.Mutex

	mu            sync.Mutex
	lastRequestAt time.Time
	valid         bool
	establishedAt time.Time
	handshakes    int64
}

// Option configures a Gate.
type Option func(*Gate)

// WithSession configures the handshake: the delay between priming requests,
// the age after which a session is re-primed (0 keeps it until invalidated),
// and how many extra attempts a failed handshake gets.
func WithSession(primeDelay, maxAge time.Duration, retries int) Option {
	return func(g *Gate) {
		g.primeDelay = primeDelay
		g.maxAge = maxAge
		g.retries = max(0, retries)
	}
}

// WithRetryBackoff sets the pause between handshake attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(g *Gate) {
		g.retryBackoff = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithClock replaces time.Now for session age checks.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// New creates a Gate granting at most one turn per minInterval. A nil primer
// means the upstream needs no handshake. A non-positive interval disables
// pacing.
func New(minInterval time.Duration, primer Primer, opts ...Option) *Gate {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}

	g := &Gate{
		limiter:      rate.NewLimiter(limit, 1),
		primer:       primer,
		retryBackoff: time.Second,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AwaitTurn blocks until the next turn is granted or ctx is done. It returns
// an error without waiting when ctx cannot outlive the wait.
func (g *Gate) AwaitTurn(ctx context.Context) error {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	g.metrics.GateWaited(time.Since(start))

	g.mu.Lock()
	g.lastRequestAt = g.now()
	g.mu.Unlock()
	return nil
}

// EnsureSession establishes or re-validates the upstream session. It
// returns false when the handshake failed after its retry budget; the
// caller must then treat the fetch as unavailable.
func (g *Gate) EnsureSession(ctx context.Context) bool {
	if g.primer == nil || g.sessionLive() {
		return true
	}

	g.handshakeMu.Lock()
	defer g.handshakeMu.Unlock()

	// Another caller may have completed the handshake while we waited.
	if g.sessionLive() {
		return true
	}

	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(g.retryBackoff * time.Duration(attempt)):
			}
		}

		err := g.primer.Prime(ctx, g.primeDelay)
		g.metrics.Handshake(err)
		if err == nil {
			g.mu.Lock()
			g.valid = true
			g.establishedAt = g.now()
			g.handshakes++
			g.mu.Unlock()

			g.logger.Debug("upstream session established", "attempt", attempt+1)
			return true
		}

		g.logger.Warn("session handshake failed",
			"attempt", attempt+1,
			"max_attempts", g.retries+1,
			"err", err,
		)
	}

	return false
}

func (g *Gate) sessionLive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.valid {
		return false
	}
	if g.maxAge > 0 && g.now().Sub(g.establishedAt) >= g.maxAge {
		g.valid = false
		return false
	}
	return true
}

// Invalidate marks the session stale, for example after the upstream
// rejected a request. The next EnsureSession re-primes.
func (g *Gate) Invalidate() {
	g.mu.Lock()
	g.valid = false
	g.mu.Unlock()
}

// State returns a snapshot of pacing and session state.
func (g *Gate) State() model.SessionState {
	g.mu.Lock()
	defer g.mu.Unlock()

	return model.SessionState{
		LastRequestAt: g.lastRequestAt,
		EstablishedAt: g.establishedAt,
		Valid:         g.valid,
		Handshakes:    g.handshakes,
	}
}
