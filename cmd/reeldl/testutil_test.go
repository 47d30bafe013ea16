package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vmunix/reeldl/internal/config"
	"github.com/vmunix/reeldl/internal/download"
	"github.com/vmunix/reeldl/internal/telemetry"
)

// fakeService is an in-memory download service speaking the real envelope
// format and pushing scripted events over SSE.
type fakeService struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	jobs     []*download.Job
	started  []download.StartRequest
	controls []string            // "op id"
	scripts  map[string][]string // job id -> event payloads
	failWith int                 // non-zero makes every API call fail with this status
}

func newFakeService(t *testing.T, jobs ...*download.Job) *fakeService {
	t.Helper()
	f := &fakeService{t: t, jobs: jobs, scripts: make(map[string][]string)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /download/incomplete", f.handleIncomplete)
	mux.HandleFunc("GET /download/status/{id}", f.handleStatus)
	mux.HandleFunc("POST /download/start", f.handleStart)
	mux.HandleFunc("POST /download/{op}", f.handleControl)
	mux.HandleFunc("GET /events/{id}", f.handleEvents)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeService) URL() string { return f.server.URL }

// script queues the events a stream for id delivers on every connect.
func (f *fakeService) script(id string, payloads ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[id] = payloads
}

func (f *fakeService) controlCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.controls...)
}

func (f *fakeService) startRequests() []download.StartRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]download.StartRequest(nil), f.started...)
}

func (f *fakeService) find(id string) *download.Job {
	for _, j := range f.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func (f *fakeService) failing(w http.ResponseWriter) bool {
	if f.failWith == 0 {
		return false
	}
	respondFailure(f.t, w, f.failWith, "service unavailable")
	return true
}

func (f *fakeService) handleIncomplete(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing(w) {
		return
	}
	jobs := []*download.Job{}
	for _, j := range f.jobs {
		if j.Status != download.StatusCompleted {
			jobs = append(jobs, j)
		}
	}
	respondData(f.t, w, jobs)
}

func (f *fakeService) handleStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing(w) {
		return
	}
	j := f.find(r.PathValue("id"))
	if j == nil {
		respondFailure(f.t, w, http.StatusNotFound, "job not found")
		return
	}
	respondData(f.t, w, j)
}

func (f *fakeService) handleStart(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing(w) {
		return
	}
	var req download.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(f.t, w, http.StatusBadRequest, err.Error())
		return
	}
	f.started = append(f.started, req)

	job := &download.Job{
		ID:        fmt.Sprintf("job-%d", len(f.jobs)+1),
		Status:    download.StatusQueued,
		Title:     req.Title,
		TMDBID:    req.TMDBID,
		MediaType: req.MediaType,
	}
	f.jobs = append(f.jobs, job)
	respondData(f.t, w, download.StartResponse{ID: job.ID, Status: job.Status})
}

func (f *fakeService) handleControl(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing(w) {
		return
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondFailure(f.t, w, http.StatusBadRequest, err.Error())
		return
	}
	op := r.PathValue("op")
	f.controls = append(f.controls, op+" "+body.ID)

	j := f.find(body.ID)
	if j == nil {
		respondFailure(f.t, w, http.StatusNotFound, "job not found")
		return
	}
	switch op {
	case "pause":
		j.Status = download.StatusPaused
	case "resume":
		j.Status = download.StatusActive
	case "cancel":
		j.Status = download.StatusCompleted
		respondData(f.t, w, download.StatusResponse{Status: "cancelled"})
		return
	default:
		respondFailure(f.t, w, http.StatusNotFound, "unknown operation")
		return
	}
	respondData(f.t, w, download.StatusResponse{Status: j.Status})
}

// handleEvents writes the scripted events, then holds the stream open until
// the client goes away.
func (f *fakeService) handleEvents(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	payloads := f.scripts[r.PathValue("id")]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, p := range payloads {
		_, _ = fmt.Fprintf(w, "data: %s\n\n", p)
	}
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
	<-r.Context().Done()
}

// respondData writes a successful envelope around v.
func respondData(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"success": true, "data": v}); err != nil {
		t.Fatalf("failed to encode JSON response: %v", err)
	}
}

func respondFailure(t *testing.T, w http.ResponseWriter, code int, message string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message}); err != nil {
		t.Fatalf("failed to encode JSON response: %v", err)
	}
}

// testCLI runs the root command against a temp config in an isolated
// working directory.
type testCLI struct {
	t       *testing.T
	dir     string
	cfgPath string
}

type cliOption func(*cliSettings)

type cliSettings struct {
	history bool
}

func withHistory() cliOption {
	return func(s *cliSettings) { s.history = true }
}

func newTestCLI(t *testing.T, baseURL string, opts ...cliOption) *testCLI {
	t.Helper()
	var s cliSettings
	for _, opt := range opts {
		opt(&s)
	}

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(telemetry.EnvEndpoint, "")

	cfg := fmt.Sprintf(`[api]
base_url = %q
timeout = "5s"

[stream]
max_retries = 2
initial_delay = "10ms"
max_delay = "20ms"

[tracker]
close_delay = "10ms"
progress_interval = "0s"

[history]
enabled = %t
path = %q
`, baseURL, s.history, filepath.Join(dir, "history.db"))

	path := filepath.Join(dir, "reeldl.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return &testCLI{t: t, dir: dir, cfgPath: path}
}

func (c *testCLI) historyPath() string {
	return filepath.Join(c.dir, "history.db")
}

// run executes reeldl with args and returns what it wrote to stdout.
func (c *testCLI) run(args ...string) (string, error) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", c.cfgPath}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func i64(v int64) *int64 { return &v }
