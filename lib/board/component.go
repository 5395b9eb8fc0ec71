package board

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/hwbridge/lib/hardware"
	"strings"
)

var errNilComponent = errors.New("factory returned no component")

// Component is a cached component instance. Invocations on one instance are
// serialized.
type Component struct {
	inst    hardware.Component
	methods hardware.MethodSet
	// sem is a one-slot lock that can be given up when ctx ends
	sem chan struct{}
}

func newComponent(inst hardware.Component) *Component {
	return &Component{
		inst:    inst,
		methods: inst.Methods(),
		sem:     make(chan struct{}, 1),
	}
}

// Class returns the class name of the component
func (c *Component) Class() string {
	return c.inst.Class()
}

// Instance returns the underlying hardware component
func (c *Component) Instance() hardware.Component {
	return c.inst
}

// Invoke calls the named operation with args and returns its result.
// A missing operation, a returned error and a panic all surface as *InvocationError.
// If ctx ends while an earlier invocation still holds the component, Invoke
// returns without calling the operation.
func (c *Component) Invoke(ctx context.Context, method string, args []any) (result any, err error) {
	fn, ok := c.methods[method]
	if !ok {
		return nil, &InvocationError{
			Class:  c.Class(),
			Method: method,
			Err:    fmt.Errorf("%w (available: %s)", ErrUnknownMethod, strings.Join(c.methods.Names(), ", ")),
		}
	}
	if args == nil {
		args = []any{}
	}

	select {
	case c.sem <- struct{}{}:
	default:
		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, &InvocationError{Class: c.Class(), Method: method, Err: fmt.Errorf("component busy: %w", ctx.Err())}
		}
	}
	defer func() { <-c.sem }()

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &InvocationError{Class: c.Class(), Method: method, Err: panicError(r)}
		}
	}()

	Logger.Debugf("call %s.%s%s", c.Class(), method, formatArgs(args))
	result, err = fn(ctx, args)
	if err != nil {
		return nil, &InvocationError{Class: c.Class(), Method: method, Err: err}
	}
	return result, nil
}
