package board

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMethod is wrapped by InvocationError when the component has no such operation
	ErrUnknownMethod = errors.New("unknown method")
	// ErrRegistryClosed is returned by EnsureBoard after Close
	ErrRegistryClosed = errors.New("board registry closed")
)

// ConnectError is returned when a board handshake fails. Every caller waiting
// on the same attempt receives the same error value.
type ConnectError struct {
	BoardID string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("board %s: connect failed: %v", e.BoardID, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Kind returns the wire name of the error
func (e *ConnectError) Kind() string { return "BoardConnectError" }

// ConstructError is returned when the hardware library rejects a component
type ConstructError struct {
	BoardID string
	Class   string
	Args    []any
	Err     error
}

func (e *ConstructError) Error() string {
	return fmt.Sprintf("board %s: cannot construct %s%s: %v", e.BoardID, e.Class, formatArgs(e.Args), e.Err)
}

func (e *ConstructError) Unwrap() error { return e.Err }

func (e *ConstructError) Kind() string { return "ComponentConstructError" }

// InvocationError is returned when a method is missing or fails
type InvocationError struct {
	Class  string
	Method string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Class, e.Method, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

func (e *InvocationError) Kind() string { return "InvocationError" }

// panicError turns a recovered panic value into an error
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
