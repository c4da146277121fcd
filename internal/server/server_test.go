package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/stockcache/internal/cache"
	"github.com/rickgao/stockcache/internal/marketdata"
	"github.com/rickgao/stockcache/internal/metrics"
	"github.com/rickgao/stockcache/internal/model"
)

type stubService struct {
	page       model.Page
	pageErr    error
	gotSkip    int
	gotLimit   int
	detail     marketdata.Detail
	detailErr  error
	gotSymbol  string
	indices    marketdata.Indices
	indicesErr error
	refreshErr error
}

func (s *stubService) GetPage(_ context.Context, skip, limit int) (model.Page, error) {
	s.gotSkip, s.gotLimit = skip, limit
	return s.page, s.pageErr
}

func (s *stubService) GetDetail(_ context.Context, symbol string) (marketdata.Detail, error) {
	s.gotSymbol = symbol
	return s.detail, s.detailErr
}

func (s *stubService) GetIndices(context.Context) (marketdata.Indices, error) {
	return s.indices, s.indicesErr
}

func (s *stubService) CacheStats(context.Context) cache.Stats {
	return cache.Stats{Backend: cache.BackendMemory, Entries: 3}
}

func (s *stubService) Health(context.Context) marketdata.Health {
	return marketdata.Health{Status: "ok", Cache: marketdata.CacheHealth{Backend: cache.BackendMemory, Healthy: true}}
}

func (s *stubService) Universe(context.Context) marketdata.UniverseInfo {
	return marketdata.UniverseInfo{Generation: "gen-1", Source: "static", Size: 2, Symbols: []string{"AAA", "BBB"}}
}

func (s *stubService) RefreshUniverse(context.Context) (marketdata.UniverseInfo, error) {
	if s.refreshErr != nil {
		return marketdata.UniverseInfo{}, s.refreshErr
	}
	return marketdata.UniverseInfo{Generation: "gen-2", Source: "static", Size: 2}, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	srv := New(&stubService{})

	w := do(t, srv.Handler(), http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	require.Equal(t, "ok", body["status"])
	require.Contains(t, body, "build")
	require.Contains(t, body, "cache")
}

func TestListStocks_Defaults(t *testing.T) {
	svc := &stubService{page: model.NewPage(0, 20, 45, []model.Quote{{Symbol: "AAA"}})}
	srv := New(svc)

	w := do(t, srv.Handler(), http.MethodGet, "/stocks")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, svc.gotSkip)
	require.Equal(t, DefaultLimit, svc.gotLimit)

	page := decode[model.Page](t, w)
	require.Len(t, page.Items, 1)
	require.Equal(t, 45, page.TotalCount)
}

func TestListStocks_Params(t *testing.T) {
	svc := &stubService{page: model.NewPage(20, 20, 45, nil)}
	srv := New(svc)

	w := do(t, srv.Handler(), http.MethodGet, "/stocks?skip=20&limit=100")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 20, svc.gotSkip)
	require.Equal(t, 100, svc.gotLimit)
}

func TestListStocks_Validation(t *testing.T) {
	tests := []string{
		"/stocks?skip=-1",
		"/stocks?limit=0",
		"/stocks?limit=101",
		"/stocks?limit=abc",
		"/stocks?skip=1.5",
	}
	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			srv := New(&stubService{})
			w := do(t, srv.Handler(), http.MethodGet, target)
			require.Equal(t, http.StatusBadRequest, w.Code)

			body := decode[map[string]string](t, w)
			require.Contains(t, body["error"], fmt.Sprint(MaxLimit))
		})
	}
}

func TestListStocks_Degraded(t *testing.T) {
	failed := model.NewPage(20, 20, 45, nil)
	failed.Error = "market data temporarily unavailable: all 1 chunks failed"

	stale := model.NewPage(0, 20, 45, []model.Quote{{Symbol: "AAA"}})
	stale.Source = model.SourceStale
	stale.Error = "market data temporarily unavailable: upstream timeout"

	partial := model.NewPage(0, 20, 45, []model.Quote{{Symbol: "AAA"}})
	partial.Partial = true

	tests := []struct {
		name string
		page model.Page
		want int
	}{
		{"hard failure", failed, http.StatusServiceUnavailable},
		{"stale copy", stale, http.StatusOK},
		{"partial page", partial, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(&stubService{page: tt.page})
			w := do(t, srv.Handler(), http.MethodGet, "/stocks")
			require.Equal(t, tt.want, w.Code)

			page := decode[model.Page](t, w)
			require.Equal(t, tt.page.Error, page.Error)
			require.Equal(t, tt.page.Source, page.Source)
		})
	}
}

func TestGetStock(t *testing.T) {
	svc := &stubService{detail: marketdata.Detail{Quote: model.Quote{Symbol: "M&M"}, Source: model.SourceLive}}
	srv := New(svc)

	w := do(t, srv.Handler(), http.MethodGet, "/stocks/M%26M")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "M&M", svc.gotSymbol)

	d := decode[marketdata.Detail](t, w)
	require.Equal(t, "M&M", d.Quote.Symbol)
}

func TestGetStock_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("%w: NOPE", marketdata.ErrNotFound), http.StatusNotFound},
		{"unavailable", fmt.Errorf("%w: upstream timeout", marketdata.ErrUnavailable), http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(&stubService{detailErr: tt.err})
			w := do(t, srv.Handler(), http.MethodGet, "/stocks/NOPE")
			require.Equal(t, tt.want, w.Code)

			body := decode[map[string]string](t, w)
			require.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

func TestIndices(t *testing.T) {
	svc := &stubService{indices: marketdata.Indices{Items: []model.Index{{Key: "NIFTY 50"}}, Source: model.SourceLive}}
	w := do(t, New(svc).Handler(), http.MethodGet, "/indices")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "NIFTY 50", decode[marketdata.Indices](t, w).Items[0].Key)

	svc = &stubService{indicesErr: marketdata.ErrUnavailable}
	w = do(t, New(svc).Handler(), http.MethodGet, "/indices")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCacheStats(t *testing.T) {
	w := do(t, New(&stubService{}).Handler(), http.MethodGet, "/cache/stats")
	require.Equal(t, http.StatusOK, w.Code)

	stats := decode[cache.Stats](t, w)
	require.Equal(t, cache.BackendMemory, stats.Backend)
	require.Equal(t, 3, stats.Entries)
}

func TestDebugUniverse(t *testing.T) {
	srv := New(&stubService{})

	w := do(t, srv.Handler(), http.MethodGet, "/debug/universe")
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[marketdata.UniverseInfo](t, w)
	require.Equal(t, []string{"AAA", "BBB"}, info.Symbols)

	w = do(t, srv.Handler(), http.MethodPost, "/debug/universe/refresh")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gen-2", decode[marketdata.UniverseInfo](t, w).Generation)

	srv = New(&stubService{refreshErr: errors.New("clear cache: redis down")})
	w = do(t, srv.Handler(), http.MethodPost, "/debug/universe/refresh")
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestObserve_RecordsMetrics(t *testing.T) {
	m, err := metrics.New(nil)
	require.NoError(t, err)
	srv := New(&stubService{detailErr: marketdata.ErrNotFound}, WithMetrics(m))

	do(t, srv.Handler(), http.MethodGet, "/stocks/NOPE")
	do(t, srv.Handler(), http.MethodGet, "/stocks/NOPE")
	do(t, srv.Handler(), http.MethodGet, "/nowhere")

	require.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/stocks/:symbol", "4xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("unmatched", "4xx")))
}
