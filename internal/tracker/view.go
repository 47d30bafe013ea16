// Package tracker reconciles job control acknowledgements and streamed
// progress events into one view per job, and owns the per-job streams.
package tracker

import (
	"time"

	"github.com/vmunix/reeldl/internal/download"
)

// View is the client-side state of one job.
type View struct {
	ID         string              `json:"id"`
	Title      string              `json:"title,omitempty"`
	SourceType download.SourceType `json:"sourceType,omitempty"`
	Status     download.Status     `json:"status"`
	Percent    float64             `json:"percent"`
	Speed      *int64              `json:"speed,omitempty"`
	ETA        *int64              `json:"eta,omitempty"`
	Downloaded *int64              `json:"downloaded,omitempty"`
	Total      *int64              `json:"total,omitempty"`
	Peers      *int                `json:"peers,omitempty"`
	Error      string              `json:"error,omitempty"`

	// Stale is set when updates are expected but none are arriving.
	Stale      bool      `json:"stale,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
	TerminalAt time.Time `json:"terminalAt,omitzero"`
}

// ViewFromJob builds a view from a polled job record.
func ViewFromJob(j *download.Job, now time.Time) View {
	v := View{ID: j.ID}
	return ApplySnapshot(v, j, now)
}

// IsTerminal reports whether the view will receive no further updates.
func (v View) IsTerminal() bool {
	return v.Status.IsTerminal()
}

func clampPercent(p float64) float64 {
	switch {
	case p != p: // NaN
		return 0
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
