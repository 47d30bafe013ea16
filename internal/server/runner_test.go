package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/reeldl/internal/download"
	"github.com/vmunix/reeldl/internal/tracker"
)

type mockTracker struct {
	mu        sync.Mutex
	views     []tracker.View
	refreshed []string
	refresh   func(id string) error
}

func (m *mockTracker) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (m *mockTracker) List() []tracker.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tracker.View(nil), m.views...)
}

func (m *mockTracker) Refresh(_ context.Context, id string) (tracker.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed = append(m.refreshed, id)
	if m.refresh != nil {
		return tracker.View{}, m.refresh(id)
	}
	return tracker.View{ID: id}, nil
}

func (m *mockTracker) refreshedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.refreshed...)
}

type mockPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (m *mockPruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return 1, nil
}

func (m *mockPruner) calls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.cutoffs...)
}

func runUntilCancelled(t *testing.T, r *Runner) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	return func() {
		cancelCtx()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for runner to stop")
		}
	}
}

func TestRunner_StartsAndStops(t *testing.T) {
	runner := NewRunner(&mockTracker{}, nil, Config{}, nil)
	stop := runUntilCancelled(t, runner)
	stop()
}

func TestNewRunner_DefaultLogger(t *testing.T) {
	runner := NewRunner(&mockTracker{}, nil, Config{}, nil)
	require.NotNil(t, runner)
	require.NotNil(t, runner.logger)
}

func TestRunner_RefreshesOnlyStaleJobs(t *testing.T) {
	tr := &mockTracker{views: []tracker.View{
		{ID: "fresh", Status: download.StatusActive},
		{ID: "stale", Status: download.StatusActive, Stale: true},
		{ID: "gone", Status: download.StatusActive, Stale: true},
	}}
	tr.refresh = func(id string) error {
		if id == "gone" {
			return tracker.ErrNotTracked
		}
		return nil
	}

	stop := runUntilCancelled(t, NewRunner(tr, nil, Config{RefreshInterval: 10 * time.Millisecond}, nil))
	require.Eventually(t, func() bool { return len(tr.refreshedIDs()) >= 2 }, time.Second, 5*time.Millisecond)
	stop()

	assert.NotContains(t, tr.refreshedIDs(), "fresh")
	assert.Contains(t, tr.refreshedIDs(), "stale")
}

func TestRunner_PrunesHistory(t *testing.T) {
	p := &mockPruner{}
	before := time.Now()

	stop := runUntilCancelled(t, NewRunner(&mockTracker{}, p, Config{
		HistoryRetention: 24 * time.Hour,
		PruneInterval:    time.Hour,
	}, nil))
	require.Eventually(t, func() bool { return len(p.calls()) == 1 }, time.Second, 5*time.Millisecond)
	stop()

	cutoff := p.calls()[0]
	assert.WithinDuration(t, before.Add(-24*time.Hour), cutoff, time.Second)
}

func TestRunner_NoPruneWithoutRetention(t *testing.T) {
	p := &mockPruner{}
	stop := runUntilCancelled(t, NewRunner(&mockTracker{}, p, Config{PruneInterval: time.Millisecond}, nil))
	time.Sleep(20 * time.Millisecond)
	stop()
	assert.Empty(t, p.calls())
}

func TestRunner_ServesMetrics(t *testing.T) {
	runner := NewRunner(&mockTracker{}, nil, Config{MetricsAddr: "127.0.0.1:0"}, nil)
	stop := runUntilCancelled(t, runner)
	defer stop()

	require.Eventually(t, func() bool { return runner.MetricsAddr() != "" }, time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + runner.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "reeldl_tracked_jobs")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRunner_MetricsListenError(t *testing.T) {
	runner := NewRunner(&mockTracker{}, nil, Config{MetricsAddr: "256.0.0.1:bad"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := runner.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics listener")
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
}
