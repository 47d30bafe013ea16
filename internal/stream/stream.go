// Package stream keeps a live, self-reconnecting channel of progress events
// open for a single download job.
package stream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vmunix/reeldl/internal/clock"
	"github.com/vmunix/reeldl/internal/events"
	"github.com/vmunix/reeldl/internal/metrics"
)

// Conn is one physical connection delivering raw event payloads.
type Conn interface {
	// Next blocks until the next payload arrives. Any error ends the connection.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a Conn for a job.
type Dialer interface {
	Dial(ctx context.Context, jobID string) (Conn, error)
}

// Callbacks receive stream output. All are optional and are invoked one at a
// time from the handle's own goroutine. A callback may call Stop but not
// Close.
type Callbacks struct {
	OnMessage func(events.Event)
	// OnError is called for each connection failure that will be retried or
	// that exhausts the retry budget. It is informational only.
	OnError func(error)
	// OnState is called on every state change driven by the connection.
	// Close does not invoke it.
	OnState func(State)
}

// Subscription is an open stream for one job.
type Subscription interface {
	JobID() string
	State() State
	// Close stops the stream and waits for a callback already in progress
	// to return. No callback runs after Close returns. It is idempotent and
	// must not be called from within a callback.
	Close()
	// Stop stops the stream without waiting. A callback already in progress
	// may still complete, but none starts after Stop returns other than that
	// one. It is idempotent and safe to call from within a callback.
	Stop()
	// Done is closed once the handle's goroutine has exited.
	Done() <-chan struct{}
}

// Streamer opens subscriptions with a shared dialer and policy.
// Each Open gets its own handle with its own retry state.
type Streamer struct {
	dialer Dialer
	policy Policy
	clock  clock.Clock
	log    *slog.Logger
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithClock sets the clock used for backoff timers.
func WithClock(c clock.Clock) Option {
	return func(s *Streamer) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Streamer) {
		if l != nil {
			s.log = l
		}
	}
}

// NewStreamer creates a Streamer.
func NewStreamer(dialer Dialer, policy Policy, opts ...Option) *Streamer {
	s := &Streamer{
		dialer: dialer,
		policy: policy.withDefaults(),
		clock:  clock.Real(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "stream")
	return s
}

// Open starts streaming events for jobID. The stream runs until Close is
// called, ctx is cancelled, or the retry budget is exhausted.
func (s *Streamer) Open(ctx context.Context, jobID string, cb Callbacks) Subscription {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		jobID:  jobID,
		dialer: s.dialer,
		clock:  s.clock,
		log:    s.log.With("job_id", jobID),
		cb:     cb,
		m:      newMachine(s.policy),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.run(ctx)
	return h
}

// Handle is the Subscription returned by Streamer.Open.
type Handle struct {
	jobID  string
	dialer Dialer
	clock  clock.Clock
	log    *slog.Logger
	cb     Callbacks

	mu     sync.Mutex
	m      machine
	closed bool

	// emitMu is held from the closed check through the callback.
	emitMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

var _ Subscription = (*Handle)(nil)

func (h *Handle) JobID() string { return h.jobID }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.m.state
}

func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Close() {
	h.Stop()
	h.emitMu.Lock()
	//nolint:staticcheck // waits for a running callback
	h.emitMu.Unlock()
}

func (h *Handle) Stop() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.m.step(inputClose)
	h.mu.Unlock()

	// Cancelling interrupts a blocked read, dial, or backoff wait.
	h.cancel()
}

func (h *Handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// step feeds the machine and reports the resulting state change, if any.
func (h *Handle) step(in input) action {
	h.mu.Lock()
	before := h.m.state
	act := h.m.step(in)
	after := h.m.state
	h.mu.Unlock()

	if after != before && h.cb.OnState != nil {
		h.emit(func() { h.cb.OnState(after) })
	}
	return act
}

// emit runs fn unless the handle is closed. The check and the call are atomic
// with respect to Close.
func (h *Handle) emit(fn func()) bool {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()
	if h.isClosed() {
		return false
	}
	fn()
	return true
}

func (h *Handle) run(ctx context.Context) {
	defer close(h.done)
	defer func() {
		if ctx.Err() != nil {
			h.Close()
			return
		}
		h.cancel()
	}()

	act := h.step(inputOpen)
	for {
		switch act.kind {
		case actDial:
			act = h.connect(ctx)
		case actWait:
			h.log.Info("stream reconnecting", "retry", act.retry, "delay_ms", act.delay.Milliseconds())
			act = h.wait(ctx, act)
		case actGiveUp:
			metrics.StreamGiveUpsTotal.Inc()
			h.log.Warn("stream gave up, no further reconnects")
			return
		default:
			return
		}
	}
}

func (h *Handle) connect(ctx context.Context) action {
	if h.isClosed() {
		return action{}
	}

	conn, err := h.dialer.Dial(ctx, h.jobID)
	if err != nil {
		return h.failed(ctx, err)
	}
	defer func() { _ = conn.Close() }()

	if h.isClosed() {
		return action{}
	}
	metrics.StreamConnectsTotal.Inc()
	h.step(inputConnected)
	h.log.Debug("stream connected")

	for {
		data, err := conn.Next(ctx)
		if err != nil {
			return h.failed(ctx, err)
		}

		ev, err := events.Decode(data)
		if err != nil {
			h.log.Warn("skipping malformed event", "error", err)
			continue
		}
		if !h.deliver(ev) {
			return action{}
		}
	}
}

func (h *Handle) deliver(ev events.Event) bool {
	return h.emit(func() {
		metrics.EventsReceivedTotal.WithLabelValues(string(ev.Kind())).Inc()
		if h.cb.OnMessage != nil {
			h.cb.OnMessage(ev)
		}
	})
}

// failed handles a dial or read error. A closed handle or cancelled context
// is a shutdown, not a failure.
func (h *Handle) failed(ctx context.Context, err error) action {
	if h.isClosed() || ctx.Err() != nil {
		return action{}
	}

	metrics.StreamFailuresTotal.Inc()
	h.log.Debug("stream connection failed", "error", err)
	if h.cb.OnError != nil {
		h.emit(func() { h.cb.OnError(err) })
	}
	return h.step(inputFailed)
}

func (h *Handle) wait(ctx context.Context, act action) action {
	timer := h.clock.NewTimer(act.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return action{}
	case <-timer.C():
	}

	if h.isClosed() {
		return action{}
	}
	return h.step(inputRetryDue)
}
