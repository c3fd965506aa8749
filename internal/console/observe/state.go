package observe

import (
	"time"

	"github.com/Iron-Ham/serialwatch/internal/console/detect"
)

// State is the observation state machine's position.
type State int

const (
	// StateRunning is the only non-terminal state.
	StateRunning State = iota
	// StateSuccess means the completion marker was seen.
	StateSuccess
	// StateTimeout means the overall deadline passed first.
	StateTimeout
	// StateInterrupted means the operator cancelled the run.
	StateInterrupted
	// StateLinkLost means a read on the serial handle failed.
	StateLinkLost
)

// String returns a lower-case name for the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateTimeout:
		return "timeout"
	case StateInterrupted:
		return "interrupted"
	case StateLinkLost:
		return "link_lost"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends the run.
func (s State) Terminal() bool {
	return s != StateRunning
}

// ExitCode maps a terminal state to the process exit code.
func (s State) ExitCode() int {
	if s == StateSuccess {
		return 0
	}
	return 1
}

// Outcome summarizes a finished run.
type Outcome struct {
	State   State
	Elapsed time.Duration
	// Err explains every non-success state. It wraps one of the sentinel
	// errors in internal/errors.
	Err error
	// Bytes is the number of raw bytes received.
	Bytes int
	// Progress is the last reported progress pair, if any.
	Progress    detect.Progress
	HasProgress bool
}

// ExitCode returns the process exit code for the outcome.
func (o Outcome) ExitCode() int {
	return o.State.ExitCode()
}
