package tracker

import (
	"log/slog"
	"sync"
	"time"
)

// UpdateType says how the working set changed.
type UpdateType string

const (
	UpdateAdded   UpdateType = "added"
	UpdateUpdated UpdateType = "updated"
	UpdateRemoved UpdateType = "removed"
)

// Update is published whenever a tracked view changes.
type Update struct {
	Type UpdateType `json:"type"`
	View View       `json:"view"`
	At   time.Time  `json:"at"`
}

// Bus fans view updates out to observers.
type Bus struct {
	mu      sync.RWMutex
	jobSubs map[string][]chan Update // job id -> channels
	allSubs []chan Update
	logger  *slog.Logger
	closed  bool
}

// NewBus creates a new update bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		jobSubs: make(map[string][]chan Update),
		logger:  logger,
	}
}

// Publish delivers u to every matching subscriber without blocking.
// Slow subscribers miss updates rather than stall the tracker.
func (b *Bus) Publish(u Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, ch := range b.jobSubs[u.View.ID] {
		select {
		case ch <- u:
		default:
			b.logger.Warn("subscriber channel full, dropping update",
				"type", u.Type,
				"job_id", u.View.ID)
		}
	}

	for _, ch := range b.allSubs {
		select {
		case ch <- u:
		default:
			b.logger.Warn("all-subscriber channel full, dropping update",
				"type", u.Type)
		}
	}
}

// Subscribe returns a channel of updates for every job.
func (b *Bus) Subscribe(bufferSize int) <-chan Update {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Update, bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.allSubs = append(b.allSubs, ch)
	return ch
}

// SubscribeJob returns a channel of updates for one job.
func (b *Bus) SubscribeJob(jobID string, bufferSize int) <-chan Update {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Update, bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.jobSubs[jobID] = append(b.jobSubs[jobID], ch)
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (b *Bus) Unsubscribe(ch <-chan Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for jobID, subs := range b.jobSubs {
		for i, sub := range subs {
			if sub == ch {
				b.jobSubs[jobID] = append(subs[:i], subs[i+1:]...)
				if len(b.jobSubs[jobID]) == 0 {
					delete(b.jobSubs, jobID)
				}
				close(sub)
				return
			}
		}
	}

	for i, sub := range b.allSubs {
		if sub == ch {
			b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.jobSubs {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.jobSubs = nil

	for _, ch := range b.allSubs {
		close(ch)
	}
	b.allSubs = nil
}
