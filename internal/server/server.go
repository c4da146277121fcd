package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/stockcache/internal/cache"
	"github.com/rickgao/stockcache/internal/marketdata"
	"github.com/rickgao/stockcache/internal/metrics"
	"github.com/rickgao/stockcache/internal/model"
	"github.com/rickgao/stockcache/internal/version"
)

// Page size bounds for /stocks.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Service is the market data surface. *marketdata.Service satisfies it.
type Service interface {
	GetPage(ctx context.Context, skip, limit int) (model.Page, error)
	GetDetail(ctx context.Context, symbol string) (marketdata.Detail, error)
	GetIndices(ctx context.Context) (marketdata.Indices, error)
	CacheStats(ctx context.Context) cache.Stats
	Health(ctx context.Context) marketdata.Health
	Universe(ctx context.Context) marketdata.UniverseInfo
	RefreshUniverse(ctx context.Context) (marketdata.UniverseInfo, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records per-route request counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server routes HTTP requests to the service.
type Server struct {
	svc     Service
	engine  *gin.Engine
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New builds the gin engine and registers all routes.
func New(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := gin.New()
	e.Use(gin.Recovery(), s.observe())

	e.GET("/health", s.health)
	e.GET("/stocks", s.listStocks)
	e.GET("/stocks/:symbol", s.getStock)
	e.GET("/indices", s.indices)
	e.GET("/cache/stats", s.cacheStats)

	debug := e.Group("/debug")
	{
		debug.GET("/universe", s.universe)
		debug.POST("/universe/refresh", s.refreshUniverse)
	}

	s.engine = e
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// observe records metrics and logs each request once it completes.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		s.metrics.HTTPRequest(route, status, elapsed)

		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
		)
	}
}

type healthResponse struct {
	marketdata.Health
	Build version.Info `json:"build"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Health: s.svc.Health(c.Request.Context()),
		Build:  version.Get(),
	})
}

type pageQuery struct {
	Skip  int `form:"skip,default=0" binding:"min=0"`
	Limit int `form:"limit,default=20" binding:"min=1,max=100"`
}

func (s *Server) listStocks(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("skip must be >= 0 and limit between 1 and %d", MaxLimit),
		})
		return
	}

	page, err := s.svc.GetPage(c.Request.Context(), q.Skip, q.Limit)
	if err != nil {
		s.fail(c, err)
		return
	}

	// A live page with an error and no items is a hard failure; stale and
	// placeholder pages are still answers.
	status := http.StatusOK
	if !page.OK() && page.Source == model.SourceLive && len(page.Items) == 0 {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, page)
}

func (s *Server) getStock(c *gin.Context) {
	d, err := s.svc.GetDetail(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) indices(c *gin.Context) {
	out, err := s.svc.GetIndices(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) cacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.CacheStats(c.Request.Context()))
}

func (s *Server) universe(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Universe(c.Request.Context()))
}

func (s *Server) refreshUniverse(c *gin.Context) {
	info, err := s.svc.RefreshUniverse(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// fail maps service errors to HTTP status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, marketdata.ErrInvalidRange):
		status = http.StatusBadRequest
	case errors.Is(err, marketdata.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, marketdata.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
