package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/stockcache/internal/api"
	"github.com/rickgao/stockcache/internal/cache"
	"github.com/rickgao/stockcache/internal/config"
	"github.com/rickgao/stockcache/internal/database"
	"github.com/rickgao/stockcache/internal/gate"
	"github.com/rickgao/stockcache/internal/logging"
	"github.com/rickgao/stockcache/internal/marketdata"
	"github.com/rickgao/stockcache/internal/metrics"
	"github.com/rickgao/stockcache/internal/pipeline"
	"github.com/rickgao/stockcache/internal/registry"
	"github.com/rickgao/stockcache/internal/server"
	"github.com/rickgao/stockcache/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting stockcache",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		logger.Error("failed to register metrics", "err", err)
		os.Exit(1)
	}

	store := cache.New(ctx, cfg.Cache, logger)
	defer store.Close()

	// The gate primes sessions through the client, and every client request
	// takes its turn from the gate.
	var g *gate.Gate
	client := api.NewClient(
		cfg.Upstream.BaseURL,
		api.WithPacer(func(ctx context.Context) error { return g.AwaitTurn(ctx) }),
		api.WithLogger(logger),
		api.WithTimeout(cfg.Upstream.Timeout),
		api.WithRetries(cfg.Upstream.MaxRetries, cfg.Upstream.RetryBackoff),
		api.WithPaths(cfg.Upstream.QuotesPath, cfg.Upstream.DetailPath, cfg.Upstream.IndicesPath),
		api.WithCatalogURL(cfg.Upstream.CatalogURL),
		api.WithBreaker(cfg.Upstream.Breaker.FailureThreshold, cfg.Upstream.Breaker.OpenTimeout),
	)

	g = gate.New(cfg.Upstream.MinInterval, client,
		gate.WithSession(cfg.Upstream.PrimeDelay, cfg.Upstream.SessionMaxAge, cfg.Upstream.HandshakeRetries),
		gate.WithLogger(logger),
		gate.WithMetrics(m),
	)

	source, closeSource := catalogSource(ctx, cfg, client, logger)
	defer closeSource()

	instruments := registry.New(source,
		registry.WithFetchTimeout(cfg.Registry.FetchTimeout),
		registry.WithLogger(logger),
		registry.WithMetrics(m),
	)

	pipe := pipeline.New(pipeline.Config{
		ChunkSize:   cfg.Pipeline.ChunkSize,
		Concurrency: cfg.Pipeline.MaxConcurrentChunks,
		Timeout:     cfg.Upstream.Timeout,
		Indices:     cfg.Upstream.Indices,
	}, client, instruments, g, logger, m)

	svc := marketdata.New(store, pipe, instruments, marketdata.TTLsFromConfig(cfg.Cache),
		marketdata.WithSession(g),
		marketdata.WithLogger(logger),
		marketdata.WithMetrics(m),
	)

	warmer := marketdata.NewWarmer(marketdata.WarmerConfig{
		Interval: cfg.Pipeline.WarmInterval,
		Limit:    cfg.Pipeline.WarmLimit,
	}, svc, logger)
	if err := warmer.Start(ctx); err != nil {
		logger.Error("failed to start page warmer", "err", err)
		os.Exit(1)
	}

	gin.SetMode(cfg.Server.Mode)
	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.New(svc, server.WithLogger(logger), server.WithMetrics(m)).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle(cfg.Metrics.Path, m.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go serve(apiServer, "api", logger, cancel)
	go serve(metricsServer, "metrics", logger, cancel)

	logger.Info("stockcache running",
		"api_url", fmt.Sprintf("http://localhost:%d/stocks", cfg.Server.Port),
		"metrics_url", fmt.Sprintf("http://localhost:%d%s", cfg.Metrics.Port, cfg.Metrics.Path),
		"cache_backend", store.Stats(ctx).Backend,
		"registry_source", cfg.Registry.Source,
	)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown", "err", err)
	}
	if err := warmer.Stop(shutdownCtx); err != nil {
		logger.Error("page warmer shutdown", "err", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "err", err)
	}

	logger.Info("stockcache stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.LoadAndValidate(path)
}

// serve runs srv until it is shut down. Any other exit stops the process.
func serve(srv *http.Server, name string, logger *slog.Logger, stop context.CancelFunc) {
	logger.Info("starting http server", "server", name, "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server error", "server", name, "err", err)
		stop()
	}
}

// catalogSource builds the configured catalog source. A postgres source that
// cannot connect degrades to the static list rather than failing startup.
func catalogSource(ctx context.Context, cfg *config.Config, client *api.Client, logger *slog.Logger) (registry.Source, func()) {
	switch cfg.Registry.Source {
	case registry.SourcePostgres:
		logger.Info("connecting to catalog database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Warn("catalog database unavailable, using static list", "err", err)
			return registry.NewStaticSource(nil), func() {}
		}
		return registry.NewPostgresSource(pool, cfg.Registry.Table), pool.Close
	case registry.SourceStatic:
		return registry.NewStaticSource(nil), func() {}
	default:
		return registry.NewHTTPSource(client, cfg.Registry.Series), func() {}
	}
}
