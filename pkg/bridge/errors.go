package bridge

import (
	"errors"
	"fmt"
)

// ErrSessionActive is returned by Start when the session is already running.
var ErrSessionActive = errors.New("bridge: session already active")

// StateError reports an operation invoked outside the required session
// state, e.g. submitting audio to a session that was never started or has
// already closed.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("bridge: %s: session not active (state %s)", e.Op, e.State)
}
