package download

// validTransitions defines allowed state transitions.
// Key is the "from" status, value is list of valid "to" statuses.
// Only paused and active may move back and forth; completed and error are final.
var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusActive, StatusPaused, StatusCompleted, StatusError},
	StatusActive:    {StatusPaused, StatusCompleted, StatusError},
	StatusPaused:    {StatusActive, StatusCompleted, StatusError},
	StatusCompleted: {},
	StatusError:     {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s Status) CanTransitionTo(target Status) bool {
	valid, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, v := range valid {
		if v == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true for statuses that receive no further progress.
// Error jobs keep their record on the service but are not streamed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// IsStreamable returns true if progress events are expected for a job in this status.
func (s Status) IsStreamable() bool {
	return s == StatusQueued || s == StatusActive
}
