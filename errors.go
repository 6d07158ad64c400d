package wsipc

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned by Invoke when no reply arrived before the deadline
	ErrTimeout = errors.New("invoke timed out")

	// ErrAlreadyRunning is returned by Start when the instance is already serving
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning is returned by Kill, Invoke and Emit when the instance is not serving
	ErrNotRunning = errors.New("not running")

	// ErrHandlerNotFound is reported (logged, never returned to a peer) when no handler
	// resolves for an inbound event
	ErrHandlerNotFound = errors.New("handler not found")

	// ErrTooManyPending is returned by Invoke when Limits.MaxPending is reached
	ErrTooManyPending = errors.New("too many pending requests")

	// ErrClosed is returned when sending on a closed connection or transport
	ErrClosed = errors.New("connection closed")
)

// HandlerError wraps a failure (returned error or recovered panic) of a handler
// invoked by the dispatcher.
type HandlerError struct {
	Event string
	Room  string
	Err   error
}

func (e *HandlerError) Error() string {
	if e.Room != "" {
		return fmt.Sprintf("handler %q (room %q): %v", e.Event, e.Room, e.Err)
	}
	return fmt.Sprintf("handler %q: %v", e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// RemoteError is returned by Invoke when the peer's handler failed
type RemoteError struct {
	Event   string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %q: %s", e.Event, e.Message)
}

// panicError converts a recovered panic value into an error
func panicError(v interface{}) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
