package stream

import "errors"

// State is the lifecycle position of a streaming session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session can no longer change state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// faultLimit is how many protocol faults a session tolerates before it is
// failed outright. Repeated faults mean the transport or engine is broken,
// not glitching.
const faultLimit = 3

// ErrTooManyFaults fails a session after repeated protocol violations.
var ErrTooManyFaults = errors.New("too many protocol faults")

// session is one streaming attempt. The id is the manager's monotonic
// sequence number; any message carrying a stale id is discarded without
// touching shared state.
type session struct {
	id     uint64
	state  State
	faults int
	err    error
}
