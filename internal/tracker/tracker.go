package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vmunix/reeldl/internal/clock"
	"github.com/vmunix/reeldl/internal/download"
	"github.com/vmunix/reeldl/internal/events"
	"github.com/vmunix/reeldl/internal/history"
	"github.com/vmunix/reeldl/internal/metrics"
	"github.com/vmunix/reeldl/internal/stream"
	"github.com/vmunix/reeldl/internal/transport"
)

var (
	// ErrNotTracked is returned for operations on a job outside the working set.
	ErrNotTracked = errors.New("job is not tracked")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("tracker is closed")
)

// Opener opens an event stream for one job.
type Opener interface {
	Open(ctx context.Context, jobID string, cb stream.Callbacks) stream.Subscription
}

// Recorder stores lifecycle history. history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, r history.Record) error
}

// Config controls tracker timing. Zero values take the defaults; a negative
// RetainFor or StaleAfter disables eviction or staleness detection.
type Config struct {
	CloseDelay       time.Duration // after completion, before the stream is closed
	RetainFor        time.Duration // how long terminal jobs stay in the working set
	StaleAfter       time.Duration // silence before a streaming job is marked stale
	SweepInterval    time.Duration
	ProgressInterval time.Duration // minimum gap between progress-only notifications per job
	RefreshWorkers   int
}

// DefaultConfig returns the default tracker timing.
func DefaultConfig() Config {
	return Config{
		CloseDelay:       time.Second,
		RetainFor:        10 * time.Minute,
		StaleAfter:       2 * time.Minute,
		SweepInterval:    time.Minute,
		ProgressInterval: 250 * time.Millisecond,
		RefreshWorkers:   4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CloseDelay == 0 {
		c.CloseDelay = d.CloseDelay
	}
	if c.RetainFor == 0 {
		c.RetainFor = d.RetainFor
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = d.ProgressInterval
	}
	if c.RefreshWorkers <= 0 {
		c.RefreshWorkers = d.RefreshWorkers
	}
	return c
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// WithRecorder enables history recording.
func WithRecorder(r Recorder) Option {
	return func(t *Tracker) { t.rec = r }
}

type entry struct {
	view         View
	sub          stream.Subscription
	gen          uint64 // bumped on every subscribe and close; callbacks from older streams are ignored
	live         bool   // counted in metrics.LiveSubscriptions
	lastActivity time.Time
	closeTimer   clock.Timer
	limiter      *rate.Limiter
}

// Tracker holds the working set of jobs and at most one stream per job.
// All methods are safe for concurrent use.
type Tracker struct {
	ctrl   download.Controller
	opener Opener
	cfg    Config
	clock  clock.Clock
	log    *slog.Logger
	rec    Recorder
	bus    *Bus

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	jobs   map[string]*entry
	closed bool

	recording sync.WaitGroup // history writes from stream callbacks in flight
}

// New creates a Tracker.
func New(ctrl download.Controller, opener Opener, cfg Config, opts ...Option) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		ctrl:   ctrl,
		opener: opener,
		cfg:    cfg.withDefaults(),
		clock:  clock.Real(),
		log:    slog.Default(),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With("component", "tracker")
	t.bus = NewBus(t.log)
	return t
}

// Updates returns the bus on which view changes are published.
func (t *Tracker) Updates() *Bus {
	return t.bus
}

// Start creates a job and begins tracking it.
func (t *Tracker) Start(ctx context.Context, req download.StartRequest) (View, error) {
	if t.isClosed() {
		return View{}, ErrClosed
	}
	resp, err := t.ctrl.Start(ctx, req)
	if err != nil {
		return View{}, err
	}

	now := t.clock.Now()
	v := View{ID: resp.ID, Title: req.Title, UpdatedAt: now}
	v = ApplyAck(v, OpStart, resp.Status, now)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return View{}, ErrClosed
	}
	e := t.newEntry(v, now)
	if old, ok := t.jobs[resp.ID]; ok {
		t.closeSubLocked(old)
		e.gen = old.gen
	}
	t.jobs[resp.ID] = e
	if v.Status.IsStreamable() {
		t.subscribeLocked(resp.ID, e)
	}
	t.publishLocked(UpdateAdded, e.view)
	t.updateGaugeLocked()
	t.mu.Unlock()

	t.record(v, history.ActionStarted, "")
	return v, nil
}

// Pause pauses a tracked job. Its stream is closed until Resume.
func (t *Tracker) Pause(ctx context.Context, id string) (View, error) {
	if err := t.requireTracked(id); err != nil {
		return View{}, err
	}
	resp, err := t.ctrl.Pause(ctx, id)
	if err != nil {
		return View{}, err
	}

	t.mu.Lock()
	e, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return View{}, fmt.Errorf("pause %s: %w", id, ErrNotTracked)
	}
	e.view = ApplyAck(e.view, OpPause, resp.Status, t.clock.Now())
	if !e.view.Status.IsStreamable() {
		t.closeSubLocked(e)
	}
	v := e.view
	t.publishLocked(UpdateUpdated, v)
	t.mu.Unlock()

	t.record(v, history.ActionPaused, "")
	return v, nil
}

// Resume resumes a tracked job and reopens its stream.
func (t *Tracker) Resume(ctx context.Context, id string) (View, error) {
	if err := t.requireTracked(id); err != nil {
		return View{}, err
	}
	resp, err := t.ctrl.Resume(ctx, id)
	if err != nil {
		return View{}, err
	}

	t.mu.Lock()
	e, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return View{}, fmt.Errorf("resume %s: %w", id, ErrNotTracked)
	}
	e.view = ApplyAck(e.view, OpResume, resp.Status, t.clock.Now())
	if e.view.Status.IsStreamable() && !hasLiveSub(e) {
		t.subscribeLocked(id, e)
	}
	v := e.view
	t.publishLocked(UpdateUpdated, v)
	t.mu.Unlock()

	t.record(v, history.ActionResumed, "")
	return v, nil
}

// Cancel cancels a tracked job and removes it from the working set.
func (t *Tracker) Cancel(ctx context.Context, id string) error {
	if err := t.requireTracked(id); err != nil {
		return err
	}
	if _, err := t.ctrl.Cancel(ctx, id); err != nil {
		return err
	}

	t.mu.Lock()
	e, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	v := e.view
	t.removeLocked(id, e)
	t.mu.Unlock()

	t.record(v, history.ActionCancelled, "")
	return nil
}

// Refresh polls the job's status and reconciles it into the view. A job the
// service no longer knows is dropped. A streamable job whose stream has
// ended is re-subscribed.
func (t *Tracker) Refresh(ctx context.Context, id string) (View, error) {
	if err := t.requireTracked(id); err != nil {
		return View{}, err
	}
	job, err := t.ctrl.Status(ctx, id)
	if err != nil {
		if transport.IsNotFound(err) {
			t.mu.Lock()
			if e, ok := t.jobs[id]; ok {
				t.removeLocked(id, e)
			}
			t.mu.Unlock()
		}
		return View{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.jobs[id]
	if !ok {
		return View{}, fmt.Errorf("refresh %s: %w", id, ErrNotTracked)
	}
	v, _ := t.reconcileLocked(id, e, job)
	return v, nil
}

// LoadIncomplete adds every incomplete job reported by the service to the
// working set and subscribes the streamable ones.
func (t *Tracker) LoadIncomplete(ctx context.Context) ([]View, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}
	jobs, err := t.ctrl.Incomplete(ctx)
	if err != nil {
		return nil, err
	}

	var views []View
	var added []View

	t.mu.Lock()
	for _, j := range jobs {
		if j == nil || j.ID == "" {
			continue
		}
		e, ok := t.jobs[j.ID]
		if !ok {
			now := t.clock.Now()
			e = t.newEntry(View{ID: j.ID}, now)
			t.jobs[j.ID] = e
		}
		v, _ := t.reconcileLocked(j.ID, e, j)
		if !ok {
			added = append(added, v)
		}
		views = append(views, v)
	}
	t.updateGaugeLocked()
	t.mu.Unlock()

	for _, v := range added {
		t.log.Info("tracking job", "job_id", v.ID, "status", v.Status, "percent", v.Percent)
	}
	return views, nil
}

// RefreshAll refreshes every tracked job that is not terminal, a few at a time.
func (t *Tracker) RefreshAll(ctx context.Context) error {
	var ids []string
	t.mu.Lock()
	for id, e := range t.jobs {
		if !e.view.IsTerminal() {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()

	g := new(errgroup.Group)
	g.SetLimit(t.cfg.RefreshWorkers)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := t.Refresh(ctx, id); err != nil && !errors.Is(err, ErrNotTracked) {
				return fmt.Errorf("refresh %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Get returns the view of one job.
func (t *Tracker) Get(id string) (View, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.jobs[id]
	if !ok {
		return View{}, false
	}
	return e.view, true
}

// List returns every tracked view ordered by title, then id.
func (t *Tracker) List() []View {
	t.mu.Lock()
	views := make([]View, 0, len(t.jobs))
	for _, e := range t.jobs {
		views = append(views, e.view)
	}
	t.mu.Unlock()

	slices.SortFunc(views, func(a, b View) int {
		if c := strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return views
}

// Subscriptions returns the stream state of every job holding a subscription.
func (t *Tracker) Subscriptions() map[string]stream.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]stream.State)
	for id, e := range t.jobs {
		if e.sub != nil {
			out[id] = e.sub.State()
		}
	}
	return out
}

// Sweep evicts terminal jobs past their retention and marks silent streaming
// jobs stale.
func (t *Tracker) Sweep() {
	now := t.clock.Now()
	var evicted []View

	t.mu.Lock()
	for id, e := range t.jobs {
		v := e.view
		if v.IsTerminal() {
			if t.cfg.RetainFor > 0 && !v.TerminalAt.IsZero() && now.Sub(v.TerminalAt) >= t.cfg.RetainFor {
				evicted = append(evicted, v)
				t.removeLocked(id, e)
			}
			continue
		}
		if !v.Status.IsStreamable() || v.Stale {
			continue
		}

		stale := !hasLiveSub(e)
		if !stale && t.cfg.StaleAfter > 0 && now.Sub(e.lastActivity) >= t.cfg.StaleAfter {
			stale = true
		}
		if stale {
			e.view.Stale = true
			e.view.UpdatedAt = now
			t.log.Warn("job has gone stale", "job_id", id, "last_activity", e.lastActivity)
			t.publishLocked(UpdateUpdated, e.view)
		}
	}
	t.mu.Unlock()

	for _, v := range evicted {
		t.log.Debug("evicted terminal job", "job_id", v.ID, "status", v.Status)
		t.record(v, history.ActionEvicted, "")
	}
}

// Run sweeps periodically until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	for {
		timer := t.clock.NewTimer(t.cfg.SweepInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C():
			t.Sweep()
		}
	}
}

// Close closes every stream and the update bus. It is idempotent.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	var subs []stream.Subscription
	for _, e := range t.jobs {
		if e.sub != nil {
			subs = append(subs, e.sub)
		}
		t.closeSubLocked(e)
	}
	t.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	t.recording.Wait()
	t.cancel()
	t.bus.Close()
}

func (t *Tracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Tracker) requireTracked(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if _, ok := t.jobs[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotTracked)
	}
	return nil
}

func (t *Tracker) newEntry(v View, now time.Time) *entry {
	limit := rate.Inf
	if t.cfg.ProgressInterval > 0 {
		limit = rate.Every(t.cfg.ProgressInterval)
	}
	return &entry{
		view:         v,
		lastActivity: now,
		limiter:      rate.NewLimiter(limit, 1),
	}
}

// reconcileLocked applies a polled job record and re-subscribes if needed.
func (t *Tracker) reconcileLocked(id string, e *entry, j *download.Job) (View, bool) {
	before := e.view
	e.view = ApplySnapshot(e.view, j, t.clock.Now())

	switch {
	case e.view.Status.IsStreamable():
		if !hasLiveSub(e) {
			t.subscribeLocked(id, e)
		}
	case e.view.Status == download.StatusCompleted:
		if e.sub != nil && e.closeTimer == nil {
			t.scheduleCloseLocked(id, e)
		}
	default:
		t.closeSubLocked(e)
	}

	typ := UpdateUpdated
	if before.Status == "" {
		typ = UpdateAdded
	}
	t.publishLocked(typ, e.view)
	return e.view, before.Status != e.view.Status
}

// subscribeLocked opens a stream for id, closing any previous one first so
// that a job never has two live streams.
func (t *Tracker) subscribeLocked(id string, e *entry) {
	t.closeSubLocked(e)

	e.gen++
	gen := e.gen
	e.lastActivity = t.clock.Now()
	e.sub = t.opener.Open(t.ctx, id, stream.Callbacks{
		OnMessage: func(ev events.Event) { t.handleEvent(id, gen, ev) },
		OnError: func(err error) {
			t.log.Debug("stream error", "job_id", id, "error", err)
		},
		OnState: func(st stream.State) { t.handleStreamState(id, gen, st) },
	})
	e.live = true
	metrics.LiveSubscriptions.Inc()
}

// closeSubLocked stops the job's stream and retires its generation, so any
// callback still in flight from it is ignored. Stop does not wait, which
// keeps it safe under t.mu and from inside the stream's own callback.
func (t *Tracker) closeSubLocked(e *entry) {
	e.gen++
	if e.closeTimer != nil {
		e.closeTimer.Stop()
		e.closeTimer = nil
	}
	if e.sub == nil {
		return
	}
	e.sub.Stop()
	e.sub = nil
	t.releaseLocked(e)
}

// releaseLocked uncounts a subscription that has stopped streaming.
func (t *Tracker) releaseLocked(e *entry) {
	if e.live {
		e.live = false
		metrics.LiveSubscriptions.Dec()
	}
}

func (t *Tracker) removeLocked(id string, e *entry) {
	t.closeSubLocked(e)
	delete(t.jobs, id)
	t.publishLocked(UpdateRemoved, e.view)
	t.updateGaugeLocked()
}

func (t *Tracker) handleEvent(id string, gen uint64, ev events.Event) {
	var action history.Action
	var message string

	t.mu.Lock()
	e, ok := t.jobs[id]
	if !ok || e.gen != gen || t.closed {
		t.mu.Unlock()
		return
	}

	now := t.clock.Now()
	e.lastActivity = now
	before := e.view
	next, changed := ApplyEvent(e.view, ev, now)
	e.view = next

	notify := changed
	if changed && before.Status == next.Status {
		if _, progressOnly := ev.(events.Progressed); progressOnly && !before.Stale {
			notify = e.limiter.AllowN(now, 1)
		}
	}

	if changed && before.Status != next.Status {
		switch next.Status {
		case download.StatusCompleted:
			action = history.ActionCompleted
			t.scheduleCloseLocked(id, e)
		case download.StatusError:
			action = history.ActionError
			message = next.Error
			t.closeSubLocked(e)
		}
	}
	if action != "" {
		t.recording.Add(1)
	}

	if notify {
		t.publishLocked(UpdateUpdated, next)
	}
	t.mu.Unlock()

	if action != "" {
		defer t.recording.Done()
		t.log.Info("job finished", "job_id", id, "status", next.Status, "error", next.Error)
		t.record(next, action, message)
	}
}

func (t *Tracker) handleStreamState(id string, gen uint64, st stream.State) {
	if st != stream.StateExhausted {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.jobs[id]
	if !ok || e.gen != gen || t.closed {
		return
	}
	t.releaseLocked(e)
	t.log.Warn("stream exhausted, job marked stale", "job_id", id)
	if !e.view.IsTerminal() && !e.view.Stale {
		e.view.Stale = true
		e.view.UpdatedAt = t.clock.Now()
		t.publishLocked(UpdateUpdated, e.view)
	}
}

// scheduleCloseLocked leaves the stream open briefly after completion so the
// final state can be painted.
func (t *Tracker) scheduleCloseLocked(id string, e *entry) {
	gen := e.gen
	e.closeTimer = t.clock.AfterFunc(t.cfg.CloseDelay, func() { t.closeStream(id, gen) })
}

func (t *Tracker) closeStream(id string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.jobs[id]
	if !ok || e.gen != gen {
		return
	}
	e.closeTimer = nil
	t.closeSubLocked(e)
}

func (t *Tracker) publishLocked(typ UpdateType, v View) {
	t.bus.Publish(Update{Type: typ, View: v, At: t.clock.Now()})
}

func (t *Tracker) updateGaugeLocked() {
	metrics.TrackedJobs.Set(float64(len(t.jobs)))
}

func (t *Tracker) record(v View, action history.Action, message string) {
	if t.rec == nil {
		return
	}
	r := history.Record{
		JobID:      v.ID,
		Title:      v.Title,
		Action:     action,
		Status:     v.Status,
		Percent:    v.Percent,
		Message:    message,
		OccurredAt: t.clock.Now(),
	}
	if err := t.rec.Record(t.ctx, r); err != nil {
		t.log.Error("failed to record history", "job_id", v.ID, "action", action, "error", err)
	}
}

func hasLiveSub(e *entry) bool {
	return e.sub != nil && e.sub.State() != stream.StateExhausted && e.sub.State() != stream.StateClosed
}
