package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/stockcache/internal/api"
	"github.com/rickgao/stockcache/internal/model"
)

type fakeSource struct {
	rows  []model.Instrument
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Load(ctx context.Context) ([]model.Instrument, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.rows, f.err
}

func instruments(symbols ...string) []model.Instrument {
	out := make([]model.Instrument, len(symbols))
	for i, s := range symbols {
		out[i] = model.Instrument{Symbol: s, DisplayName: s + " Ltd"}
	}
	return out
}

func TestResolve_CleansRows(t *testing.T) {
	src := &fakeSource{rows: []model.Instrument{
		{Symbol: "TCS", DisplayName: "Tata Consultancy"},
		{Symbol: " infy ", DisplayName: "Infosys"},
		{Symbol: "", DisplayName: "No Symbol"},
		{Symbol: "TCS", DisplayName: "Duplicate"},
		{Symbol: "ITC"},
	}}

	u := New(src).Resolve(context.Background())

	if u.Fallback {
		t.Error("Fallback = true, want false")
	}
	want := []string{"TCS", "INFY", "ITC"}
	got := u.Symbols(0, u.Len())
	if len(got) != len(want) {
		t.Fatalf("symbols = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("symbols[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if name, _ := u.Lookup("TCS"); name != "Tata Consultancy" {
		t.Errorf("TCS name = %q, first occurrence should win", name)
	}
	if name, _ := u.Lookup("itc"); name != "ITC" {
		t.Errorf("ITC name = %q, want symbol as display name", name)
	}
	if _, ok := u.Lookup("NOPE"); ok {
		t.Error("unexpected lookup hit")
	}
}

func TestResolve_LoadsOnce(t *testing.T) {
	src := &fakeSource{rows: instruments("A", "B", "C"), delay: 20 * time.Millisecond}
	r := New(src)

	var wg sync.WaitGroup
	gens := make([]string, 10)
	for i := range gens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			gens[i] = r.Resolve(context.Background()).Generation.String()
		}(i)
	}
	wg.Wait()

	if n := src.calls.Load(); n != 1 {
		t.Errorf("source loads = %d, want 1", n)
	}
	for _, g := range gens {
		if g != gens[0] {
			t.Fatal("all callers should see the same generation")
		}
	}
}

func TestResolve_Invalidate(t *testing.T) {
	src := &fakeSource{rows: instruments("A", "B")}
	r := New(src)

	first := r.Resolve(context.Background())
	if _, ok := r.Current(); !ok {
		t.Fatal("Current() should report a loaded universe")
	}

	r.Invalidate()
	if _, ok := r.Current(); ok {
		t.Fatal("Current() should be empty after Invalidate")
	}

	src.rows = instruments("A", "B", "C")
	second := r.Resolve(context.Background())

	if second.Generation == first.Generation {
		t.Error("Invalidate should start a new generation")
	}
	if second.Len() != 3 {
		t.Errorf("Len() = %d, want 3", second.Len())
	}
	if src.calls.Load() != 2 {
		t.Errorf("source loads = %d, want 2", src.calls.Load())
	}
}

// blockingSource holds each Load until release is closed or fed.
type blockingSource struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingSource) Name() string { return "blocking" }

func (b *blockingSource) Load(ctx context.Context) ([]model.Instrument, error) {
	n := b.calls.Add(1)
	b.started <- struct{}{}
	<-b.release
	if n == 1 {
		return instruments("OLD"), nil
	}
	return instruments("NEW1", "NEW2"), nil
}

func TestCurrent_DoesNotWaitForLoad(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}, 1), release: make(chan struct{})}
	r := New(src)

	done := make(chan *Universe, 1)
	go func() { done <- r.Resolve(context.Background()) }()
	<-src.started

	returned := make(chan bool, 1)
	go func() {
		_, ok := r.Current()
		returned <- ok
	}()
	select {
	case ok := <-returned:
		if ok {
			t.Error("Current() reported a universe before the load finished")
		}
	case <-time.After(time.Second):
		t.Fatal("Current() blocked behind the catalog load")
	}

	close(src.release)
	if u := <-done; u.Len() != 1 {
		t.Errorf("Len() = %d, want 1", u.Len())
	}
	if _, ok := r.Current(); !ok {
		t.Error("Current() should report the loaded universe")
	}
}

func TestResolve_InvalidatedDuringLoad(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}, 2), release: make(chan struct{}, 2)}
	r := New(src)

	done := make(chan *Universe, 1)
	go func() { done <- r.Resolve(context.Background()) }()
	<-src.started

	r.Invalidate()
	src.release <- struct{}{}
	<-src.started
	src.release <- struct{}{}

	u := <-done
	if u.Len() != 2 {
		t.Errorf("Len() = %d, want the reloaded catalog of 2", u.Len())
	}
	if n := src.calls.Load(); n != 2 {
		t.Errorf("source loads = %d, want 2", n)
	}
}

func TestResolve_FallbackOnError(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	u := New(src).Resolve(context.Background())

	if !u.Fallback {
		t.Error("Fallback = false, want true")
	}
	if u.Len() != len(fallbackSymbols) {
		t.Errorf("Len() = %d, want %d", u.Len(), len(fallbackSymbols))
	}
	if u.Len() != 50 {
		t.Errorf("fallback cardinality = %d, want 50", u.Len())
	}
}

func TestResolve_FallbackOnEmptyCatalog(t *testing.T) {
	src := &fakeSource{rows: []model.Instrument{{Symbol: ""}, {Symbol: "  "}}}
	u := New(src, WithFallback(instruments("X", "Y"))).Resolve(context.Background())

	if !u.Fallback || u.Len() != 2 {
		t.Errorf("got fallback=%v len=%d, want fallback list of 2", u.Fallback, u.Len())
	}
}

func TestResolve_FallbackOnTimeout(t *testing.T) {
	src := &fakeSource{rows: instruments("A"), delay: time.Second}
	u := New(src, WithFetchTimeout(10*time.Millisecond)).Resolve(context.Background())

	if !u.Fallback {
		t.Error("slow catalog should fall back")
	}
}

func TestResolve_IgnoresCallerCancellation(t *testing.T) {
	src := &fakeSource{rows: instruments("A", "B"), delay: 20 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u := New(src).Resolve(ctx)
	if u.Fallback {
		t.Error("a cancelled caller must not pin the fallback list")
	}
}

func TestResolve_NilSource(t *testing.T) {
	u := New(nil).Resolve(context.Background())
	if !u.Fallback || u.Source != SourceStatic {
		t.Errorf("got fallback=%v source=%q", u.Fallback, u.Source)
	}
}

func TestUniverse_Symbols(t *testing.T) {
	u := newUniverse(instruments("A", "B", "C", "D", "E"), "fake", false, time.Now())

	tests := []struct {
		start, end int
		want       int
	}{
		{0, 2, 2},
		{3, 10, 2},
		{5, 10, 0},
		{10, 20, 0},
		{-1, 1, 1},
		{3, 1, 0},
	}
	for _, tt := range tests {
		if got := u.Symbols(tt.start, tt.end); len(got) != tt.want {
			t.Errorf("Symbols(%d, %d) = %v, want %d items", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestHTTPSource(t *testing.T) {
	const csvBody = "SYMBOL,NAME OF COMPANY, SERIES\n" +
		"RELIANCE,Reliance Industries Limited,EQ\n" +
		"SGBJUN31,Sovereign Gold Bond,GB\n" +
		"TCS,Tata Consultancy Services Limited,eq\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(csvBody))
	}))
	defer server.Close()

	client := api.NewClient(server.URL, api.WithCatalogURL(server.URL+"/EQUITY_L.csv"))

	rows, err := NewHTTPSource(client, "EQ").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rows) != 2 || rows[0].Symbol != "RELIANCE" || rows[1].Symbol != "TCS" {
		t.Errorf("rows = %+v, want RELIANCE and TCS", rows)
	}

	all, err := NewHTTPSource(client, "").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("unfiltered rows = %d, want 3", len(all))
	}
}

func TestHTTPSource_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := api.NewClient(server.URL,
		api.WithCatalogURL(server.URL),
		api.WithRetries(0, time.Millisecond),
	)
	u := New(NewHTTPSource(client, "EQ")).Resolve(context.Background())
	if !u.Fallback || u.Source != SourceHTTP {
		t.Errorf("got fallback=%v source=%q, want http fallback", u.Fallback, u.Source)
	}
}

type errQuerier struct{ err error }

func (q errQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, q.err
}

func TestPostgresSource(t *testing.T) {
	t.Run("query sanitizes table", func(t *testing.T) {
		tests := map[string]string{
			"instruments":        `SELECT symbol, display_name FROM "instruments" ORDER BY sort_order, symbol`,
			"market.instruments": `SELECT symbol, display_name FROM "market"."instruments" ORDER BY sort_order, symbol`,
			`bad"name`:           `SELECT symbol, display_name FROM "bad""name" ORDER BY sort_order, symbol`,
		}
		for table, want := range tests {
			if got := catalogQuery(table); got != want {
				t.Errorf("catalogQuery(%q) = %q, want %q", table, got, want)
			}
		}
	})

	t.Run("query error falls back", func(t *testing.T) {
		src := NewPostgresSource(errQuerier{err: errors.New("relation does not exist")}, "instruments")
		if _, err := src.Load(context.Background()); err == nil {
			t.Fatal("expected error")
		}

		u := New(src).Resolve(context.Background())
		if !u.Fallback || u.Source != SourcePostgres {
			t.Errorf("got fallback=%v source=%q", u.Fallback, u.Source)
		}
	})
}

func TestStaticSource(t *testing.T) {
	rows, err := NewStaticSource(nil).Load(context.Background())
	if err != nil || len(rows) != 50 {
		t.Fatalf("Load() = %d rows, %v", len(rows), err)
	}

	rows[0].Symbol = "MUTATED"
	again, _ := NewStaticSource(nil).Load(context.Background())
	if again[0].Symbol == "MUTATED" {
		t.Error("static source must return copies")
	}
}
