package hwtesting

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/hwbridge/lib/hardware"
	"sync"
	"testing"
	"time"
)

const (
	// ClassLed is a stateful stub component (on, off, isOn, echo, fail, panic)
	ClassLed = "Led"
	// ClassBroken fails every construction
	ClassBroken = "Broken"
	// ClassPanicky panics during construction
	ClassPanicky = "Panicky"
)

// ErrStub is returned by the "fail" method and by ClassBroken
var ErrStub = errors.New("stub failure")

// Driver is a hardware.Driver whose handshakes are controlled by the test
type Driver struct {
	mu            sync.Mutex
	auto          bool
	failing       map[string]bool
	openErr       error
	opens         map[string]int
	pending       map[string][]*Handle
	handles       []*Handle
	constructions map[string]int
	closed        map[string]int

	// ConstructDelay slows down every construction (widens race windows)
	ConstructDelay time.Duration
}

// NewDriver creates a driver with manual handshakes (see Ready and Fail)
func NewDriver() *Driver {
	return &Driver{
		failing:       make(map[string]bool),
		opens:         make(map[string]int),
		pending:       make(map[string][]*Handle),
		constructions: make(map[string]int),
		closed:        make(map[string]int),
	}
}

// NewAutoDriver creates a driver that completes every handshake immediately.
// Boards listed in failing report an error.
func NewAutoDriver(failing ...string) *Driver {
	d := NewDriver()
	d.auto = true
	for _, id := range failing {
		d.failing[id] = true
	}
	return d
}

// --------------------------------------------------------------------------
// Interface Methods (docu see hardware.Driver)
// --------------------------------------------------------------------------

func (d *Driver) Name() string {
	return "stub"
}

func (d *Driver) OpenBoard(id string) (hardware.BoardHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.opens[id]++
	if d.openErr != nil {
		return nil, d.openErr
	}

	h := &Handle{id: id, driver: d, events: make(chan hardware.Event, 1)}
	d.handles = append(d.handles, h)

	switch {
	case d.auto && d.failing[id]:
		h.events <- hardware.Event{Type: hardware.EventError, Err: fmt.Errorf("board %s not found", id)}
	case d.auto:
		h.events <- hardware.Event{Type: hardware.EventReady}
	default:
		d.pending[id] = append(d.pending[id], h)
	}
	return h, nil
}

// --------------------------------------------------------------------------
// Test controls
// --------------------------------------------------------------------------

// SetOpenError makes every following OpenBoard call fail immediately (nil resets)
func (d *Driver) SetOpenError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// SetFailing changes whether auto handshakes for id fail
func (d *Driver) SetFailing(id string, failing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing[id] = failing
}

// Ready completes the oldest pending handshake for id. It returns false if none is pending.
func (d *Driver) Ready(id string) bool {
	return d.complete(id, hardware.Event{Type: hardware.EventReady})
}

// Fail fails the oldest pending handshake for id. It returns false if none is pending.
func (d *Driver) Fail(id string, err error) bool {
	if err == nil {
		err = fmt.Errorf("board %s not found", id)
	}
	return d.complete(id, hardware.Event{Type: hardware.EventError, Err: err})
}

func (d *Driver) complete(id string, ev hardware.Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	queue := d.pending[id]
	if len(queue) == 0 {
		return false
	}
	h := queue[0]
	d.pending[id] = queue[1:]
	h.events <- ev
	return true
}

// Opens returns how many times OpenBoard was called for id
func (d *Driver) Opens(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens[id]
}

// Closed returns how many handles of id were closed
func (d *Driver) Closed(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed[id]
}

// Constructions returns how many components of class were constructed successfully
func (d *Driver) Constructions(class string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.constructions[class]
}

// WaitOpens blocks until OpenBoard was called at least n times for id
func (d *Driver) WaitOpens(t testing.TB, id string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for d.Opens(id) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d opens of board %s (got %d)", n, id, d.Opens(id))
		}
		time.Sleep(time.Millisecond)
	}
}

// --------------------------------------------------------------------------
// Handle
// --------------------------------------------------------------------------

// Handle is the stub hardware.BoardHandle
type Handle struct {
	id     string
	driver *Driver
	events chan hardware.Event
	once   sync.Once
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Events() <-chan hardware.Event {
	return h.events
}

func (h *Handle) Close() error {
	h.once.Do(func() {
		h.driver.mu.Lock()
		h.driver.closed[h.id]++
		h.driver.mu.Unlock()
	})
	return nil
}

// --------------------------------------------------------------------------
// Catalog + components
// --------------------------------------------------------------------------

// Catalog returns the stub classes; constructions are counted on d
func (d *Driver) Catalog() *hardware.Catalog {
	return hardware.NewCatalog().
		MustRegister(ClassLed, func(board hardware.BoardHandle, args []any) (hardware.Component, error) {
			if d.ConstructDelay > 0 {
				time.Sleep(d.ConstructDelay)
			}
			d.mu.Lock()
			d.constructions[ClassLed]++
			d.mu.Unlock()
			return &Led{board: board.ID(), args: args}, nil
		}).
		MustRegister(ClassBroken, func(hardware.BoardHandle, []any) (hardware.Component, error) {
			return nil, ErrStub
		}).
		MustRegister(ClassPanicky, func(hardware.BoardHandle, []any) (hardware.Component, error) {
			panic("constructor exploded")
		})
}

// Led is a stateful stub component
type Led struct {
	board  string
	args   []any
	mu     sync.Mutex
	on     bool
	calls  int
	closed bool
}

func (l *Led) Class() string {
	return ClassLed
}

func (l *Led) Methods() hardware.MethodSet {
	count := func() {
		l.mu.Lock()
		l.calls++
		l.mu.Unlock()
	}
	return hardware.MethodSet{
		"on": func(context.Context, []any) (any, error) {
			count()
			l.mu.Lock()
			defer l.mu.Unlock()
			l.on = true
			return nil, nil
		},
		"off": func(context.Context, []any) (any, error) {
			count()
			l.mu.Lock()
			defer l.mu.Unlock()
			l.on = false
			return nil, nil
		},
		"isOn": func(context.Context, []any) (any, error) {
			count()
			l.mu.Lock()
			defer l.mu.Unlock()
			return l.on, nil
		},
		"calls": func(context.Context, []any) (any, error) {
			count()
			l.mu.Lock()
			defer l.mu.Unlock()
			return l.calls, nil
		},
		"echo": func(_ context.Context, args []any) (any, error) {
			count()
			return args, nil
		},
		"fail": func(context.Context, []any) (any, error) {
			count()
			return nil, ErrStub
		},
		"panic": func(context.Context, []any) (any, error) {
			count()
			panic("method exploded")
		},
		"block": func(ctx context.Context, _ []any) (any, error) {
			count()
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

// Args returns the constructor arguments
func (l *Led) Args() []any {
	return l.args
}

// IsClosed reports whether Close was called
func (l *Led) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Led) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
