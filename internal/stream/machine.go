package stream

import "time"

// State is the lifecycle state of one stream handle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateBackoff
	StateExhausted // gave up after too many consecutive failures
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Live reports whether the handle may still deliver events.
func (s State) Live() bool {
	return s == StateConnecting || s == StateOpen || s == StateBackoff
}

type input int

const (
	inputOpen input = iota
	inputConnected
	inputFailed
	inputRetryDue
	inputClose
)

type actionKind int

const (
	actNone actionKind = iota
	actDial
	actWait
	actGiveUp
	actTeardown
)

type action struct {
	kind  actionKind
	delay time.Duration // for actWait
	retry int           // attempt number the wait precedes
}

// machine holds reconnect state for a single handle. step is the only
// place state changes. It is not safe for concurrent use.
type machine struct {
	policy     Policy
	state      State
	retryCount int
}

func newMachine(p Policy) machine {
	return machine{policy: p.withDefaults()}
}

func (m *machine) step(in input) action {
	if m.state == StateClosed {
		return action{}
	}
	if in == inputClose {
		m.state = StateClosed
		return action{kind: actTeardown}
	}

	switch m.state {
	case StateIdle:
		if in == inputOpen {
			m.state = StateConnecting
			return action{kind: actDial}
		}
	case StateConnecting:
		switch in {
		case inputConnected:
			m.state = StateOpen
			m.retryCount = 0
		case inputFailed:
			return m.fail()
		}
	case StateOpen:
		if in == inputFailed {
			return m.fail()
		}
	case StateBackoff:
		if in == inputRetryDue {
			m.state = StateConnecting
			return action{kind: actDial}
		}
	case StateExhausted:
		// Only close leaves Exhausted. Callers re-open with a new handle.
	}
	return action{}
}

func (m *machine) fail() action {
	if m.policy.MaxRetries >= 0 && m.retryCount >= m.policy.MaxRetries {
		m.state = StateExhausted
		return action{kind: actGiveUp}
	}
	delay := m.policy.Delay(m.retryCount)
	m.retryCount++
	m.state = StateBackoff
	return action{kind: actWait, delay: delay, retry: m.retryCount}
}
