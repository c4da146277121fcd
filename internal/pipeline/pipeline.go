package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/stockcache/internal/api"
	"github.com/rickgao/stockcache/internal/metrics"
	"github.com/rickgao/stockcache/internal/model"
	"github.com/rickgao/stockcache/internal/normalize"
	"github.com/rickgao/stockcache/internal/registry"
)

var (
	// ErrSessionUnavailable is returned when the gate could not establish
	// an upstream session.
	ErrSessionUnavailable = fmt.Errorf("%w: session could not be established", api.ErrRejected)

	// ErrNoIndices is returned when none of the configured indices were
	// present in the upstream response.
	ErrNoIndices = fmt.Errorf("%w: no configured index in response", api.ErrSchema)
)

// QuoteClient is the upstream surface used by the pipeline. *api.Client
// satisfies it.
type QuoteClient interface {
	GetQuotes(ctx context.Context, symbols []string) ([]api.RawRecord, error)
	GetQuoteDetail(ctx context.Context, symbol string) (api.RawRecord, error)
	GetIndices(ctx context.Context) ([]api.RawRecord, error)
}

// UniverseResolver provides the instrument universe. *registry.Registry
// satisfies it.
type UniverseResolver interface {
	Resolve(ctx context.Context) *registry.Universe
}

// Gate owns the upstream session. *gate.Gate satisfies it. Pacing happens
// inside the client, one turn per request attempt.
type Gate interface {
	EnsureSession(ctx context.Context) bool
	Invalidate()
}

// Config holds pipeline configuration.
type Config struct {
	ChunkSize   int           // Symbols per upstream request (default: 50)
	Concurrency int           // Max chunks in flight (default: 4)
	Timeout     time.Duration // Per-request timeout (default: 15s)
	Indices     []string      // Index keys reported by FetchIndices
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:   50,
		Concurrency: 4,
		Timeout:     15 * time.Second,
	}
}

// Pipeline fetches normalized pages from the upstream.
type Pipeline struct {
	cfg      Config
	client   QuoteClient
	universe UniverseResolver
	gate     Gate
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a Pipeline. Zero config fields take their defaults.
func New(cfg Config, client QuoteClient, universe UniverseResolver, gate Gate, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Pipeline{
		cfg:      cfg,
		client:   client,
		universe: universe,
		gate:     gate,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FetchPage fetches quotes for universe[skip:skip+limit]. It never returns
// an error: failures are reported in Page.Error.
func (p *Pipeline) FetchPage(ctx context.Context, skip, limit int) model.Page {
	start := time.Now()
	defer func() { p.metrics.PageFetched(time.Since(start)) }()

	u := p.universe.Resolve(ctx)
	total := u.Len()
	if skip >= total || limit <= 0 {
		return model.NewPage(skip, limit, total, nil)
	}
	end := min(skip+limit, total)
	chunks := Chunk(u.Symbols(skip, end), p.cfg.ChunkSize)

	if !p.gate.EnsureSession(ctx) {
		p.logger.Warn("page fetch skipped, no upstream session", "skip", skip, "limit", limit)
		return errorPage(skip, limit, total, ErrSessionUnavailable)
	}

	results := make([][]model.Quote, len(chunks))
	errs := make([]error, len(chunks))
	var failed, dropped atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, symbols := range chunks {
		g.Go(func() error {
			quotes, n, err := p.fetchChunk(ctx, symbols, u.Names())
			dropped.Add(int64(n))
			if err != nil {
				failed.Add(1)
				errs[i] = err
				p.metrics.ChunkFailed()
				p.logger.Warn("chunk fetch failed",
					"chunk", i,
					"symbols", len(symbols),
					"err", err,
				)
				// Isolated: other chunks carry on.
				return nil
			}
			results[i] = quotes
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Debug("page fetch complete",
		"skip", skip,
		"limit", limit,
		"chunks", len(chunks),
		"failed", failed.Load(),
		"dropped", dropped.Load(),
		"duration", time.Since(start),
	)

	if int(failed.Load()) == len(chunks) {
		return errorPage(skip, limit, total, fmt.Errorf("all %d chunks failed: %w", len(chunks), errs[0]))
	}

	items := make([]model.Quote, 0, end-skip)
	for _, r := range results {
		items = append(items, r...)
	}
	page := model.NewPage(skip, limit, total, items)
	page.Partial = failed.Load() > 0
	return page
}

// fetchChunk fetches one chunk. It returns the
// quotes in chunk order and the number of records dropped.
func (p *Pipeline) fetchChunk(ctx context.Context, symbols []string, names map[string]string) ([]model.Quote, int, error) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	recs, err := p.client.GetQuotes(cctx, symbols)
	p.metrics.UpstreamCall("quotes", err)
	if err != nil {
		p.invalidateOnReject(err)
		return nil, 0, err
	}

	res := normalize.Quotes(recs, names, p.now())
	p.metrics.Dropped(res.Dropped)

	// Upstream order is arbitrary; restore chunk order and ignore symbols
	// nobody asked for.
	bySymbol := make(map[string]model.Quote, len(res.Quotes))
	for _, q := range res.Quotes {
		if _, dup := bySymbol[q.Symbol]; !dup {
			bySymbol[q.Symbol] = q
		}
	}
	out := make([]model.Quote, 0, len(symbols))
	for _, s := range symbols {
		if q, ok := bySymbol[s]; ok {
			out = append(out, q)
		}
	}
	return out, res.Dropped, nil
}

// FetchDetail fetches the detail quote for one symbol. displayName, when
// non-empty, overrides the upstream company name.
func (p *Pipeline) FetchDetail(ctx context.Context, symbol, displayName string) (model.Quote, error) {
	if !p.gate.EnsureSession(ctx) {
		return model.Quote{}, ErrSessionUnavailable
	}

	cctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	doc, err := p.client.GetQuoteDetail(cctx, symbol)
	p.metrics.UpstreamCall("detail", err)
	if err != nil {
		p.invalidateOnReject(err)
		return model.Quote{}, err
	}

	q, err := normalize.Detail(doc, displayName, p.now())
	if err != nil {
		return model.Quote{}, fmt.Errorf("normalize detail %s: %w", symbol, err)
	}
	return q, nil
}

// FetchIndices fetches the configured market indices.
func (p *Pipeline) FetchIndices(ctx context.Context) ([]model.Index, error) {
	if !p.gate.EnsureSession(ctx) {
		return nil, ErrSessionUnavailable
	}

	cctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	recs, err := p.client.GetIndices(cctx)
	p.metrics.UpstreamCall("indices", err)
	if err != nil {
		p.invalidateOnReject(err)
		return nil, err
	}

	out := normalize.Indices(recs, p.cfg.Indices, p.now())
	if len(out) == 0 {
		return nil, ErrNoIndices
	}
	return out, nil
}

func (p *Pipeline) invalidateOnReject(err error) {
	if errors.Is(err, api.ErrRejected) {
		p.logger.Warn("upstream rejected session, invalidating", "err", err)
		p.gate.Invalidate()
	}
}

// Chunk splits symbols into consecutive groups of at most size.
func Chunk(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var out [][]string
	for start := 0; start < len(symbols); start += size {
		out = append(out, symbols[start:min(start+size, len(symbols))])
	}
	return out
}

func errorPage(skip, limit, total int, err error) model.Page {
	page := model.NewPage(skip, limit, total, nil)
	page.Error = err.Error()
	return page
}
