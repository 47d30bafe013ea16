// Package server runs the long-lived background components behind a watch session.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vmunix/reeldl/internal/metrics"
	"github.com/vmunix/reeldl/internal/tracker"
)

// Tracker is the part of tracker.Tracker the runner drives.
type Tracker interface {
	Run(ctx context.Context) error
	List() []tracker.View
	Refresh(ctx context.Context, id string) (tracker.View, error)
}

// Pruner deletes history older than a cutoff. history.Store implements it.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config for the runner. Zero intervals disable the matching component.
type Config struct {
	RefreshInterval  time.Duration // how often stale jobs are polled
	MetricsAddr      string        // empty disables /metrics
	HistoryRetention time.Duration
	PruneInterval    time.Duration
}

// Runner manages the background components.
type Runner struct {
	tracker Tracker
	pruner  Pruner
	config  Config
	logger  *slog.Logger

	mu          sync.Mutex
	metricsAddr string
}

// NewRunner creates a new runner. pruner may be nil.
func NewRunner(tr Tracker, pruner Pruner, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		tracker: tr,
		pruner:  pruner,
		config:  cfg,
		logger:  logger.With("component", "runner"),
	}
}

// Run starts every configured component.
// It blocks until the context is canceled or a component fails.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.tracker.Run(ctx) })
	if r.config.RefreshInterval > 0 {
		g.Go(func() error { return r.refreshLoop(ctx) })
	}
	if r.pruner != nil && r.config.HistoryRetention > 0 && r.config.PruneInterval > 0 {
		g.Go(func() error { return r.pruneLoop(ctx) })
	}
	if r.config.MetricsAddr != "" {
		g.Go(func() error { return r.serveMetrics(ctx) })
	}

	return g.Wait()
}

// MetricsAddr returns the address /metrics is listening on, once it is.
func (r *Runner) MetricsAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metricsAddr
}

func (r *Runner) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.refreshStale(ctx)
		}
	}
}

// refreshStale polls every stale job so its view catches up and its stream
// is reopened.
func (r *Runner) refreshStale(ctx context.Context) {
	for _, v := range r.tracker.List() {
		if !v.Stale {
			continue
		}
		if _, err := r.tracker.Refresh(ctx, v.ID); err != nil && !errors.Is(err, tracker.ErrNotTracked) {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("refresh failed", "job_id", v.ID, "error", err)
		}
	}
}

func (r *Runner) pruneLoop(ctx context.Context) error {
	r.prune(ctx)

	ticker := time.NewTicker(r.config.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Runner) prune(ctx context.Context) {
	n, err := r.pruner.Prune(ctx, time.Now().Add(-r.config.HistoryRetention))
	switch {
	case err != nil && ctx.Err() == nil:
		r.logger.Error("history prune failed", "error", err)
	case n > 0:
		r.logger.Info("pruned history", "records", n)
	}
}

func (r *Runner) serveMetrics(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", r.config.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	r.mu.Lock()
	r.metricsAddr = ln.Addr().String()
	r.mu.Unlock()
	r.logger.Info("serving metrics", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
