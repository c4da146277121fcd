package marketdata

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PageRefresher refreshes one cached page. *Service satisfies it.
type PageRefresher interface {
	RefreshPage(ctx context.Context, skip, limit int) error
}

// WarmerConfig holds warmer configuration.
type WarmerConfig struct {
	Interval time.Duration // Refresh interval
	Limit    int           // First-page size to keep warm (default: 20)
}

// Warmer keeps the first page cached by refreshing it on a fixed interval.
type Warmer struct {
	cfg     WarmerConfig
	service PageRefresher
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWarmer creates a Warmer.
func NewWarmer(cfg WarmerConfig, service PageRefresher, logger *slog.Logger) *Warmer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 20
	}
	return &Warmer{
		cfg:     cfg,
		service: service,
		logger:  logger,
	}
}

// Start begins the refresh loop. A non-positive interval is a no-op.
func (w *Warmer) Start(ctx context.Context) error {
	if w.cfg.Interval <= 0 {
		w.logger.Debug("page warmer disabled")
		return nil
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("page warmer started",
		"interval", w.cfg.Interval,
		"limit", w.cfg.Limit,
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight refresh, bounded by ctx.
func (w *Warmer) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("page warmer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Warmer) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.warm()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.warm()
		}
	}
}

func (w *Warmer) warm() {
	start := time.Now()
	if err := w.service.RefreshPage(w.ctx, 0, w.cfg.Limit); err != nil {
		if w.ctx.Err() == nil {
			w.logger.Warn("page warm failed", "err", err)
		}
		return
	}
	w.logger.Debug("page warmed", "limit", w.cfg.Limit, "duration", time.Since(start))
}
