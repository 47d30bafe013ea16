package tracker

import (
	"time"

	"github.com/vmunix/reeldl/internal/download"
	"github.com/vmunix/reeldl/internal/events"
)

// Op is a job control operation whose acknowledgement changes a view.
type Op string

const (
	OpStart  Op = "start"
	OpPause  Op = "pause"
	OpResume Op = "resume"
)

// ApplyEvent folds a streamed event into v and reports whether anything changed.
// Completed and error views never change.
func ApplyEvent(v View, e events.Event, now time.Time) (View, bool) {
	if v.IsTerminal() {
		return v, false
	}
	before := v

	switch ev := e.(type) {
	case events.Started:
		v.Status = download.StatusActive
		if ev.Job != nil {
			mergeJobDetails(&v, ev.Job)
		}
	case events.Progressed:
		// Progress after a pause ack is late and carries stale rates.
		if v.Status == download.StatusPaused {
			return v, false
		}
		v.Status = download.StatusActive
		applyProgress(&v, ev.Progress)
	case events.Completed:
		if ev.Job != nil {
			mergeJobDetails(&v, ev.Job)
		}
		v = toStatus(v, download.StatusCompleted, now)
	case events.Failed:
		v = toStatus(v, download.StatusError, now)
		v.Error = ev.Message
	default:
		return v, false
	}

	v.Stale = false
	if viewEqual(before, v) {
		return before, false
	}
	v.UpdatedAt = now
	return v, true
}

// ApplyAck folds a control acknowledgement into v. The reported status wins
// when it is a known status; otherwise the operation's natural target is used.
func ApplyAck(v View, op Op, reported download.Status, now time.Time) View {
	if v.IsTerminal() {
		return v
	}

	target := reported
	if !target.Valid() {
		switch op {
		case OpPause:
			target = download.StatusPaused
		case OpResume:
			target = download.StatusActive
		default:
			target = download.StatusQueued
		}
	}

	v = toStatus(v, target, now)
	v.Stale = false
	v.UpdatedAt = now
	return v
}

// ApplySnapshot reconciles v with a polled job record. Completed views stay
// completed, and percent never moves backwards for the same job.
func ApplySnapshot(v View, j *download.Job, now time.Time) View {
	if v.Status == download.StatusCompleted {
		return v
	}
	if v.Status == download.StatusError {
		if j.ErrorState != "" {
			v.Error = j.ErrorState
		}
		return v
	}

	mergeJobDetails(&v, j)
	if j.SourceType != "" {
		v.SourceType = j.SourceType
	}
	v.Speed = j.Speed
	v.ETA = j.ETA
	v.Peers = j.Peers

	status := j.Status
	if !status.Valid() {
		status = v.Status
	}
	if status == "" {
		status = download.StatusQueued
	}
	v = toStatus(v, status, now)
	if status == download.StatusError {
		v.Error = j.ErrorState
	}

	v.Stale = false
	v.UpdatedAt = now
	return v
}

// toStatus moves v to status and applies the side effects of entering it.
func toStatus(v View, status download.Status, now time.Time) View {
	v.Status = status
	switch status {
	case download.StatusCompleted:
		v.Percent = 100
		v.Speed, v.ETA = nil, nil
		v.TerminalAt = now
	case download.StatusError:
		v.Speed, v.ETA = nil, nil
		v.TerminalAt = now
	case download.StatusPaused:
		v.Speed, v.ETA = nil, nil
	}
	return v
}

func applyProgress(v *View, p events.Progress) {
	if pct := clampPercent(p.Percent); pct > v.Percent {
		v.Percent = pct
	}
	if p.Speed != nil {
		v.Speed = p.Speed
	}
	if p.ETA != nil {
		v.ETA = p.ETA
	}
	if p.Downloaded != nil {
		v.Downloaded = p.Downloaded
	}
	if p.Total != nil {
		v.Total = p.Total
	}
	if p.Peers != nil {
		v.Peers = p.Peers
	}
}

func mergeJobDetails(v *View, j *download.Job) {
	if j.Title != "" {
		v.Title = j.Title
	}
	if pct := clampPercent(j.Progress); pct > v.Percent {
		v.Percent = pct
	}
	if j.Downloaded != nil {
		v.Downloaded = j.Downloaded
	}
	if j.Total != nil {
		v.Total = j.Total
	}
}

func viewEqual(a, b View) bool {
	return a.Status == b.Status &&
		a.Percent == b.Percent &&
		a.Error == b.Error &&
		a.Title == b.Title &&
		a.Stale == b.Stale &&
		eqPtr(a.Speed, b.Speed) &&
		eqPtr(a.ETA, b.ETA) &&
		eqPtr(a.Downloaded, b.Downloaded) &&
		eqPtr(a.Total, b.Total) &&
		eqPtr(a.Peers, b.Peers)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
