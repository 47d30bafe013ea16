// Package events defines the progress events pushed by the download service
// for a single job, and their wire encoding.
package events

import (
	"github.com/vmunix/reeldl/internal/download"
)

// Kind is the tag carried in the "event" field of every payload.
type Kind string

const (
	KindStarted   Kind = "started"
	KindProgress  Kind = "progress"
	KindCompleted Kind = "completed"
	KindError     Kind = "error"
)

// Event is one of Started, Progressed, Completed, or Failed.
// Consumers switch on the concrete type.
type Event interface {
	Kind() Kind
	event()
}

// Started reports that the service began transferring the job.
type Started struct {
	Job *download.Job // may be nil
}

// Progressed carries a progress sample.
type Progressed struct {
	Progress Progress
}

// Completed reports that the job finished.
type Completed struct {
	Job *download.Job // may be nil
}

// Failed reports that the job entered the error state.
type Failed struct {
	Message string
}

func (Started) Kind() Kind    { return KindStarted }
func (Progressed) Kind() Kind { return KindProgress }
func (Completed) Kind() Kind  { return KindCompleted }
func (Failed) Kind() Kind     { return KindError }

func (Started) event()    {}
func (Progressed) event() {}
func (Completed) event()  {}
func (Failed) event()     {}

// Progress is a single progress sample. Optional fields are nil when the
// service did not report them.
type Progress struct {
	Percent    float64 `json:"percent"`
	Speed      *int64  `json:"speed,omitempty"`      // bytes/sec
	ETA        *int64  `json:"eta,omitempty"`        // seconds
	Downloaded *int64  `json:"downloaded,omitempty"` // bytes
	Total      *int64  `json:"total,omitempty"`      // bytes
	Peers      *int    `json:"peers,omitempty"`
}
