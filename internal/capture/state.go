package capture

import (
	"errors"
	"time"
)

// ErrReconnectFailure marks a fatal outcome caused by a failed reopen after a trip.
var ErrReconnectFailure = errors.New("reconnect failed")

// State is a capture loop state.
type State int

// Loop states. Terminated has no transitions out.
const (
	StateInitializing State = iota
	StateAwaitingDevice
	StateOpening
	StateStreaming
	StateReconnecting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingDevice:
		return "awaiting_device"
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// OutcomeKind classifies how a run ended.
type OutcomeKind int

// Run outcomes.
const (
	Success OutcomeKind = iota
	Cancelled
	Fatal
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Cancelled:
		return "cancelled"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is returned by Loop.Run. Err is set for Fatal and Cancelled.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// ExitCode maps the outcome to a process exit status.
func (o Outcome) ExitCode() int {
	if o.Kind == Fatal {
		return 1
	}
	return 0
}

// Status is a point-in-time view of the loop for the API.
type Status struct {
	State      State
	Since      time.Time
	SessionID  string
	Device     string
	Frames     uint64
	Failures   int
	Reconnects int
	LastError  string
}
