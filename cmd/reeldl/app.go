package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/vmunix/reeldl/internal/download"
	"github.com/vmunix/reeldl/internal/history"
	"github.com/vmunix/reeldl/internal/server"
	"github.com/vmunix/reeldl/internal/stream"
	"github.com/vmunix/reeldl/internal/tracker"
	"github.com/vmunix/reeldl/internal/transport"
)

func (a *app) api() *transport.Client {
	return transport.New(a.cfg.API.BaseURL,
		transport.WithTimeout(a.cfg.API.Timeout.Duration),
		transport.WithLogger(a.log),
	)
}

func (a *app) controller() download.Controller {
	return download.NewClient(a.api(), a.log)
}

func (a *app) dialer() stream.Dialer {
	if a.cfg.API.Transport == "websocket" {
		return stream.NewWebSocketDialer(a.cfg.API.BaseURL)
	}
	return stream.NewSSEDialer(a.cfg.API.BaseURL, nil)
}

func (a *app) streamPolicy() stream.Policy {
	return stream.Policy{
		MaxRetries:   a.cfg.Stream.MaxRetries,
		InitialDelay: a.cfg.Stream.InitialDelay.Duration,
		MaxDelay:     a.cfg.Stream.MaxDelay.Duration,
	}
}

func (a *app) trackerConfig() tracker.Config {
	t := a.cfg.Tracker
	return tracker.Config{
		CloseDelay:       t.CloseDelay.Duration,
		RetainFor:        t.RetainFor.Duration,
		StaleAfter:       t.StaleAfter.Duration,
		SweepInterval:    t.SweepInterval.Duration,
		ProgressInterval: t.ProgressInterval.Duration,
	}
}

// openHistory opens the history store, or returns nil when history is disabled.
func (a *app) openHistory() (*history.Store, error) {
	if !a.cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(a.cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

// session is a tracker streaming over the configured transport, with
// history recording when enabled.
type session struct {
	tracker *tracker.Tracker
	history *history.Store // nil when disabled
	log     *slog.Logger
}

func (a *app) newSession(ctrl download.Controller) (*session, error) {
	store, err := a.openHistory()
	if err != nil {
		return nil, err
	}

	streamer := stream.NewStreamer(a.dialer(), a.streamPolicy(), stream.WithLogger(a.log))
	opts := []tracker.Option{tracker.WithLogger(a.log)}
	if store != nil {
		opts = append(opts, tracker.WithRecorder(store))
	}
	return &session{
		tracker: tracker.New(ctrl, streamer, a.trackerConfig(), opts...),
		history: store,
		log:     a.log,
	}, nil
}

// Close closes every stream, then the history store.
func (s *session) Close() {
	s.tracker.Close()
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.log.Warn("closing history store", "error", err)
		}
	}
}

// runnerConfig configures the background components of a watch session.
func (a *app) runnerConfig(metricsAddr string) server.Config {
	return server.Config{
		RefreshInterval:  a.cfg.Tracker.SweepInterval.Duration,
		MetricsAddr:      metricsAddr,
		HistoryRetention: a.cfg.History.Retention.Duration,
		PruneInterval:    time.Hour,
	}
}
