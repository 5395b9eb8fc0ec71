package hardware

import (
	"context"
	"sort"
)

// --------------------------------------------------------------------------
// Board handshake
// --------------------------------------------------------------------------

// EventType is the outcome reported by a BoardHandle
type EventType uint8

const (
	EventReady EventType = iota + 1
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted exactly once per BoardHandle. Err is only set for EventError.
type Event struct {
	Type EventType
	Err  error
}

// BoardHandle is a board as seen by the hardware library
type BoardHandle interface {
	// ID returns the id the handle was opened with
	ID() string
	// Events delivers the single ready/error event of the handshake.
	// The channel may be closed afterwards.
	Events() <-chan Event
	// Close releases the underlying connection
	Close() error
}

// Driver opens board connections
type Driver interface {
	// Name returns the name of the driver (e.g. "sim")
	Name() string
	// OpenBoard starts connecting to the board with the given id.
	// An error is returned if the attempt cannot even be started, otherwise
	// the outcome is reported through the handle's Events channel.
	OpenBoard(id string) (BoardHandle, error)
}

// --------------------------------------------------------------------------
// Components
// --------------------------------------------------------------------------

// Method is a single named operation of a component. Args are the positional
// arguments as decoded from JSON (float64, string, bool, nil, []any, map[string]any).
type Method func(ctx context.Context, args []any) (any, error)

// MethodSet is the complete set of operations callable on a component
type MethodSet map[string]Method

// Names returns the sorted operation names
func (m MethodSet) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Component is an instantiated accessory attached to a board.
// Components holding resources may additionally implement io.Closer.
type Component interface {
	// Class returns the catalog class name the component was created from
	Class() string
	// Methods returns the operations clients may invoke
	Methods() MethodSet
}

// Factory constructs a component of one class on the given board
type Factory func(board BoardHandle, args []any) (Component, error)
