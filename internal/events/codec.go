package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmunix/reeldl/internal/download"
)

var (
	// ErrUnknownKind is returned for payloads whose "event" tag is not recognised.
	ErrUnknownKind = errors.New("unknown event kind")

	// ErrMissingPayload is returned when a progress event carries no progress object.
	ErrMissingPayload = errors.New("event payload missing")
)

// DefaultFailureMessage is used when an error event carries no message.
const DefaultFailureMessage = "download failed"

// wireEvent is the JSON shape of one pushed message.
type wireEvent struct {
	Event    Kind          `json:"event"`
	Progress *Progress     `json:"progress,omitempty"`
	Job      *download.Job `json:"job,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Decode parses one message payload into an Event.
func Decode(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch w.Event {
	case KindStarted:
		return Started{Job: w.Job}, nil
	case KindProgress:
		if w.Progress == nil {
			return nil, fmt.Errorf("%s event: %w", w.Event, ErrMissingPayload)
		}
		return Progressed{Progress: *w.Progress}, nil
	case KindCompleted:
		return Completed{Job: w.Job}, nil
	case KindError:
		msg := w.Error
		if msg == "" && w.Job != nil {
			msg = w.Job.ErrorState
		}
		if msg == "" {
			msg = DefaultFailureMessage
		}
		return Failed{Message: msg}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, w.Event)
	}
}

// Encode renders an Event in wire form.
func Encode(e Event) ([]byte, error) {
	w := wireEvent{Event: e.Kind()}
	switch ev := e.(type) {
	case Started:
		w.Job = ev.Job
	case Progressed:
		p := ev.Progress
		w.Progress = &p
	case Completed:
		w.Job = ev.Job
	case Failed:
		w.Error = ev.Message
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, e)
	}
	return json.Marshal(w)
}
