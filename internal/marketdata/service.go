package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/stockcache/internal/api"
	"github.com/rickgao/stockcache/internal/cache"
	"github.com/rickgao/stockcache/internal/config"
	"github.com/rickgao/stockcache/internal/metrics"
	"github.com/rickgao/stockcache/internal/model"
	"github.com/rickgao/stockcache/internal/normalize"
	"github.com/rickgao/stockcache/internal/registry"
)

var (
	// ErrNotFound is returned for symbols outside the universe or unknown to
	// the upstream.
	ErrNotFound = errors.New("symbol not found")

	// ErrUnavailable is returned when the upstream failed and no cached copy
	// could stand in.
	ErrUnavailable = errors.New("market data temporarily unavailable")

	// ErrInvalidRange is returned for a negative skip or non-positive limit.
	ErrInvalidRange = errors.New("invalid page range")
)

// Lookup kinds, used as metric labels.
const (
	kindPage    = "page"
	kindDetail  = "detail"
	kindIndices = "indices"
)

const (
	indicesKey  = "indices"
	stalePrefix = "stale:"
)

// PageKey is the cache key of one page.
func PageKey(skip, limit int) string {
	return fmt.Sprintf("page:%d:%d", skip, limit)
}

// DetailKey is the cache key of one symbol's detail quote.
func DetailKey(symbol string) string {
	return "detail:" + symbol
}

func staleKey(key string) string {
	return stalePrefix + key
}

// Fetcher is the ingestion surface. *pipeline.Pipeline satisfies it.
type Fetcher interface {
	FetchPage(ctx context.Context, skip, limit int) model.Page
	FetchDetail(ctx context.Context, symbol, displayName string) (model.Quote, error)
	FetchIndices(ctx context.Context) ([]model.Index, error)
}

// Universe is the instrument registry. *registry.Registry satisfies it.
type Universe interface {
	Resolve(ctx context.Context) *registry.Universe
	Current() (*registry.Universe, bool)
	Invalidate()
}

// SessionReporter exposes upstream session state. *gate.Gate satisfies it.
type SessionReporter interface {
	State() model.SessionState
}

// TTLs are the cache lifetimes per entry kind.
type TTLs struct {
	Page        time.Duration
	Partial     time.Duration
	Placeholder time.Duration
	Detail      time.Duration
	Indices     time.Duration
	Stale       time.Duration
}

// TTLsFromConfig maps cache configuration to TTLs. Unset lifetimes use
// cfg.DefaultTTL.
func TTLsFromConfig(cfg config.CacheConfig) TTLs {
	or := func(d time.Duration) time.Duration {
		if d > 0 {
			return d
		}
		return cfg.DefaultTTL
	}
	return TTLs{
		Page:        or(cfg.PageTTL),
		Partial:     or(cfg.PartialTTL),
		Placeholder: or(cfg.PlaceholderTTL),
		Detail:      or(cfg.DetailTTL),
		Indices:     or(cfg.IndicesTTL),
		Stale:       or(cfg.StaleTTL),
	}
}

// Detail is a detail quote and where it came from.
type Detail struct {
	Quote  model.Quote `json:"quote"`
	Source string      `json:"source"`
	Error  string      `json:"error,omitempty"`
}

// Indices is the configured index list and where it came from.
type Indices struct {
	Items  []model.Index `json:"items"`
	Source string        `json:"source"`
	Error  string        `json:"error,omitempty"`
}

// UniverseInfo describes one registry generation.
type UniverseInfo struct {
	Generation string    `json:"generation"`
	Source     string    `json:"source"`
	Fallback   bool      `json:"fallback"`
	Size       int       `json:"size"`
	LoadedAt   time.Time `json:"loaded_at"`
	Symbols    []string  `json:"symbols,omitempty"`
}

// Health is the service health report.
type Health struct {
	Status   string              `json:"status"` // ok or degraded
	Cache    CacheHealth         `json:"cache"`
	Registry *UniverseInfo       `json:"registry,omitempty"`
	Session  *model.SessionState `json:"session,omitempty"`
}

// CacheHealth describes the cache backend.
type CacheHealth struct {
	Backend string `json:"backend"`
	Healthy bool   `json:"healthy"`
}

// Option configures a Service.
type Option func(*Service)

// WithSession reports session state in Health.
func WithSession(s SessionReporter) Option {
	return func(svc *Service) {
		svc.session = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(svc *Service) {
		if logger != nil {
			svc.logger = logger
		}
	}
}

// WithMetrics records lookups and degraded responses.
func WithMetrics(m *metrics.Metrics) Option {
	return func(svc *Service) {
		svc.metrics = m
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		svc.now = now
	}
}

// Service serves pages, details and indices cache-aside.
type Service struct {
	store    cache.Store
	fetcher  Fetcher
	universe Universe
	session  SessionReporter
	ttl      TTLs
	flight   singleflight.Group
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// Page writes hold swapMu for reading and are dropped when a universe
	// refresh happened since their fetch started.
	swapMu sync.RWMutex
	epoch  uint64
}

// New creates a Service.
func New(store cache.Store, fetcher Fetcher, universe Universe, ttl TTLs, opts ...Option) *Service {
	s := &Service{
		store:    store,
		fetcher:  fetcher,
		universe: universe,
		ttl:      ttl,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetPage returns universe[skip:skip+limit]. Upstream failures are reported
// in Page.Error; the returned error is only ErrInvalidRange or the caller's
// context error.
func (s *Service) GetPage(ctx context.Context, skip, limit int) (model.Page, error) {
	if skip < 0 || limit <= 0 {
		return model.Page{}, fmt.Errorf("%w: skip=%d limit=%d", ErrInvalidRange, skip, limit)
	}

	key := PageKey(skip, limit)
	var page model.Page
	if s.load(ctx, key, &page) {
		s.metrics.CacheLookup(kindPage, metrics.OutcomeHit)
		return page, nil
	}
	s.metrics.CacheLookup(kindPage, metrics.OutcomeMiss)

	v, err := s.do(ctx, key, func(ctx context.Context) (any, error) {
		return s.fetchPage(ctx, key, skip, limit), nil
	})
	if err != nil {
		return model.Page{}, err
	}
	return v.(model.Page), nil
}

// RefreshPage fetches a page bypassing the cache read and stores it when the
// fetch succeeds. It never degrades.
func (s *Service) RefreshPage(ctx context.Context, skip, limit int) error {
	if skip < 0 || limit <= 0 {
		return fmt.Errorf("%w: skip=%d limit=%d", ErrInvalidRange, skip, limit)
	}
	epoch := s.pageEpoch()
	page := s.fetcher.FetchPage(ctx, skip, limit)
	if !page.OK() {
		return fmt.Errorf("%w: %s", ErrUnavailable, page.Error)
	}
	s.storePage(ctx, epoch, PageKey(skip, limit), page)
	return nil
}

func (s *Service) fetchPage(ctx context.Context, key string, skip, limit int) model.Page {
	epoch := s.pageEpoch()
	page := s.fetcher.FetchPage(ctx, skip, limit)
	if page.OK() {
		return s.storePage(ctx, epoch, key, page)
	}

	s.logger.Warn("page fetch failed", "skip", skip, "limit", limit, "err", page.Error)
	reason := ErrUnavailable.Error() + ": " + page.Error

	var stale model.Page
	if s.load(ctx, staleKey(key), &stale) {
		stale.Source = model.SourceStale
		stale.Error = reason
		s.metrics.CacheLookup(kindPage, metrics.OutcomeStale)
		s.metrics.DegradedResponse(kindPage, model.SourceStale)
		return stale
	}

	if skip == 0 {
		ph := s.putPage(ctx, epoch, key, placeholderPage(limit, s.now()), s.ttl.Placeholder)
		s.metrics.DegradedResponse(kindPage, model.SourcePlaceholder)
		s.logger.Warn("serving placeholder page", "limit", limit)
		return ph
	}

	s.metrics.DegradedResponse(kindPage, metrics.OutcomeError)
	page.Error = reason
	return page
}

// storePage caches a live page fetched during epoch. Partial pages get the
// short TTL and never become the stale copy.
func (s *Service) storePage(ctx context.Context, epoch uint64, key string, page model.Page) model.Page {
	ttl := s.ttl.Page
	if page.Partial {
		ttl = s.ttl.Partial
	}
	page = s.putPage(ctx, epoch, key, page, ttl)
	if !page.Partial {
		s.putPage(ctx, epoch, staleKey(key), page, s.ttl.Stale)
	}
	return page
}

func (s *Service) pageEpoch() uint64 {
	s.swapMu.RLock()
	defer s.swapMu.RUnlock()
	return s.epoch
}

// putPage caches page unless the universe was refreshed after epoch; the
// page then addresses offsets of a dropped generation.
func (s *Service) putPage(ctx context.Context, epoch uint64, key string, page model.Page, ttl time.Duration) model.Page {
	s.swapMu.RLock()
	defer s.swapMu.RUnlock()

	if s.epoch != epoch {
		s.logger.Debug("not caching page from previous universe", "key", key)
		return page
	}
	return put(ctx, s, key, page, ttl)
}

// GetDetail returns the detail quote for symbol.
func (s *Service) GetDetail(ctx context.Context, symbol string) (Detail, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return Detail{}, ErrNotFound
	}

	// The fallback list is a subset; let the upstream decide for symbols
	// outside it.
	u := s.universe.Resolve(ctx)
	name, known := u.Lookup(sym)
	if !known && !u.Fallback {
		return Detail{}, fmt.Errorf("%w: %s", ErrNotFound, sym)
	}

	key := DetailKey(sym)
	var d Detail
	if s.load(ctx, key, &d) {
		s.metrics.CacheLookup(kindDetail, metrics.OutcomeHit)
		return d, nil
	}
	s.metrics.CacheLookup(kindDetail, metrics.OutcomeMiss)

	v, err := s.do(ctx, key, func(ctx context.Context) (any, error) {
		return s.fetchDetail(ctx, key, sym, name)
	})
	if err != nil {
		return Detail{}, err
	}
	return v.(Detail), nil
}

func (s *Service) fetchDetail(ctx context.Context, key, symbol, name string) (Detail, error) {
	q, err := s.fetcher.FetchDetail(ctx, symbol, name)
	if err == nil {
		d := put(ctx, s, key, Detail{Quote: q, Source: model.SourceLive}, s.ttl.Detail)
		put(ctx, s, staleKey(key), d, s.ttl.Stale)
		return d, nil
	}
	if isNotFound(err) {
		return Detail{}, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}

	s.logger.Warn("detail fetch failed", "symbol", symbol, "err", err)
	var stale Detail
	if s.load(ctx, staleKey(key), &stale) {
		stale.Source = model.SourceStale
		stale.Error = ErrUnavailable.Error() + ": " + err.Error()
		s.metrics.CacheLookup(kindDetail, metrics.OutcomeStale)
		s.metrics.DegradedResponse(kindDetail, model.SourceStale)
		return stale, nil
	}
	s.metrics.DegradedResponse(kindDetail, metrics.OutcomeError)
	return Detail{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func isNotFound(err error) bool {
	if errors.Is(err, normalize.ErrNoInfo) {
		return true
	}
	var apiErr *api.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// GetIndices returns the configured market indices. There is no placeholder
// for indices: without a stale copy a failure is ErrUnavailable.
func (s *Service) GetIndices(ctx context.Context) (Indices, error) {
	var out Indices
	if s.load(ctx, indicesKey, &out) {
		s.metrics.CacheLookup(kindIndices, metrics.OutcomeHit)
		return out, nil
	}
	s.metrics.CacheLookup(kindIndices, metrics.OutcomeMiss)

	v, err := s.do(ctx, indicesKey, func(ctx context.Context) (any, error) {
		return s.fetchIndices(ctx)
	})
	if err != nil {
		return Indices{}, err
	}
	return v.(Indices), nil
}

func (s *Service) fetchIndices(ctx context.Context) (Indices, error) {
	items, err := s.fetcher.FetchIndices(ctx)
	if err == nil {
		out := put(ctx, s, indicesKey, Indices{Items: items, Source: model.SourceLive}, s.ttl.Indices)
		put(ctx, s, staleKey(indicesKey), out, s.ttl.Stale)
		return out, nil
	}

	s.logger.Warn("indices fetch failed", "err", err)
	var stale Indices
	if s.load(ctx, staleKey(indicesKey), &stale) {
		stale.Source = model.SourceStale
		stale.Error = ErrUnavailable.Error() + ": " + err.Error()
		s.metrics.CacheLookup(kindIndices, metrics.OutcomeStale)
		s.metrics.DegradedResponse(kindIndices, model.SourceStale)
		return stale, nil
	}
	s.metrics.DegradedResponse(kindIndices, metrics.OutcomeError)
	return Indices{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// CacheStats reports the cache backend statistics.
func (s *Service) CacheStats(ctx context.Context) cache.Stats {
	return s.store.Stats(ctx)
}

// Universe resolves the registry and describes the current generation,
// symbols included.
func (s *Service) Universe(ctx context.Context) UniverseInfo {
	u := s.universe.Resolve(ctx)
	info := describe(u)
	info.Symbols = u.Symbols(0, u.Len())
	return info
}

// RefreshUniverse starts a new registry generation. Cached pages address
// offsets into the old generation, so the cache is cleared once the new
// generation is in place. Page fetches that overlap the swap are served but
// not cached.
func (s *Service) RefreshUniverse(ctx context.Context) (UniverseInfo, error) {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	s.epoch++
	s.universe.Invalidate()
	info := describe(s.universe.Resolve(ctx))
	if err := s.store.Clear(ctx); err != nil {
		return UniverseInfo{}, fmt.Errorf("clear cache: %w", err)
	}
	s.logger.Info("universe refreshed", "generation", info.Generation, "size", info.Size)
	return info, nil
}

// Health reports cache, registry and session state. It does not load the
// registry.
func (s *Service) Health(ctx context.Context) Health {
	stats := s.store.Stats(ctx)
	h := Health{
		Status: "ok",
		Cache: CacheHealth{
			Backend: stats.Backend,
			Healthy: s.store.Health(ctx),
		},
	}
	if u, ok := s.universe.Current(); ok {
		info := describe(u)
		h.Registry = &info
		if u.Fallback {
			h.Status = "degraded"
		}
	}
	if s.session != nil {
		st := s.session.State()
		h.Session = &st
	}
	if !h.Cache.Healthy {
		h.Status = "degraded"
	}
	return h
}

func describe(u *registry.Universe) UniverseInfo {
	return UniverseInfo{
		Generation: u.Generation.String(),
		Source:     u.Source,
		Fallback:   u.Fallback,
		Size:       u.Len(),
		LoadedAt:   u.LoadedAt,
	}
}

// do runs fn once per key among concurrent callers. fn runs detached from
// the caller's cancellation so an abandoned request still populates the
// cache; the caller itself stops waiting when ctx is done.
func (s *Service) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := s.flight.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// load decodes the entry under key into out. Undecodable entries are
// deleted and reported as a miss.
func (s *Service) load(ctx context.Context, key string, out any) bool {
	b, ok := s.store.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		s.logger.Warn("discarding undecodable cache entry", "key", key, "err", err)
		_ = s.store.Delete(ctx, key)
		return false
	}
	return true
}

// put caches v under key and returns v as a later cache read will see it,
// so a fresh result and a cached one compare equal. Write failures are
// logged and otherwise ignored.
func put[T any](ctx context.Context, s *Service, key string, v T, ttl time.Duration) T {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encoding cache entry", "key", key, "err", err)
		return v
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		out = v
	}
	if err := s.store.Set(ctx, key, b, ttl); err != nil {
		s.logger.Warn("cache write failed", "key", key, "err", err)
	}
	return out
}
