package engine

import "fmt"

// StateError reports an operation invoked outside its required lifecycle
// state, e.g. sending audio before the handshake completed.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("engine: %s: not connected (state %s)", e.Op, e.State)
}

// ConnectionError reports a terminal connection failure after the retry
// budget is exhausted.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: connection failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("engine: connection failed after %d attempts", e.Attempts)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// EngineError carries an error message reported by the engine itself over
// the wire (type byte 0x05).
type EngineError struct {
	Message string
}

func (e *EngineError) Error() string {
	return "engine: " + e.Message
}
