package sim

import (
	"fmt"
	"github.com/ValentinKolb/hwbridge/lib/hardware"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
	"time"
)

var Logger = logger.GetLogger("hardware")

const (
	// DefaultPins is the pin count of a simulated board (Arduino Uno digital + analog pins)
	DefaultPins = 20
)

// Config configures the simulated driver
type Config struct {
	// HandshakeDelay is how long a board takes to become ready
	HandshakeDelay time.Duration
	// FailBoards lists board ids whose handshake fails
	FailBoards []string
	// Pins is the number of pins per board (DefaultPins if <= 0)
	Pins int
}

// Driver is a simulated hardware.Driver
type Driver struct {
	config Config
	fail   map[string]struct{}
}

// NewDriver creates a simulated driver
func NewDriver(config Config) *Driver {
	if config.Pins <= 0 {
		config.Pins = DefaultPins
	}
	fail := make(map[string]struct{}, len(config.FailBoards))
	for _, id := range config.FailBoards {
		fail[id] = struct{}{}
	}
	return &Driver{
		config: config,
		fail:   fail,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see hardware.Driver)
// --------------------------------------------------------------------------

func (d *Driver) Name() string {
	return "sim"
}

func (d *Driver) OpenBoard(id string) (hardware.BoardHandle, error) {
	b := &Board{
		id:     id,
		pins:   make(map[int]string),
		npins:  d.config.Pins,
		events: make(chan hardware.Event, 1),
		closed: make(chan struct{}),
	}

	_, fails := d.fail[id]
	Logger.Debugf("opening simulated board %s (handshake %s)", id, d.config.HandshakeDelay)

	go func() {
		timer := time.NewTimer(d.config.HandshakeDelay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-b.closed:
			b.events <- hardware.Event{Type: hardware.EventError, Err: fmt.Errorf("board %s closed during handshake", id)}
			return
		}

		if fails {
			b.events <- hardware.Event{Type: hardware.EventError, Err: fmt.Errorf("board %s not found", id)}
			return
		}
		b.events <- hardware.Event{Type: hardware.EventReady}
	}()

	return b, nil
}

// --------------------------------------------------------------------------
// Board
// --------------------------------------------------------------------------

// Board is a simulated board handle. It tracks which pins are claimed.
type Board struct {
	id        string
	npins     int
	mu        sync.Mutex
	pins      map[int]string
	events    chan hardware.Event
	closed    chan struct{}
	closeOnce sync.Once
}

func (b *Board) ID() string {
	return b.id
}

func (b *Board) Events() <-chan hardware.Event {
	return b.events
}

func (b *Board) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
	})
	return nil
}

// Pins returns the number of pins of the board
func (b *Board) Pins() int {
	return b.npins
}

// Claim reserves a pin for a component class
func (b *Board) Claim(pin int, class string) error {
	if pin < 0 || pin >= b.npins {
		return fmt.Errorf("%w: pin %d out of range (board %s has %d pins)", hardware.ErrInvalidArgument, pin, b.id, b.npins)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if owner, ok := b.pins[pin]; ok {
		return fmt.Errorf("pin %d of board %s already in use by %s", pin, b.id, owner)
	}
	b.pins[pin] = class
	return nil
}

// Release frees a claimed pin
func (b *Board) Release(pin int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pins, pin)
}

// --------------------------------------------------------------------------
// Catalog
// --------------------------------------------------------------------------

// NewCatalog returns a catalog with every simulated class
func NewCatalog() *hardware.Catalog {
	return hardware.NewCatalog().
		MustRegister(ClassLed, newLed).
		MustRegister(ClassServo, newServo).
		MustRegister(ClassMotor, newMotor).
		MustRegister(ClassSensor, newSensor)
}

// claimPin is shared by all factories: it checks that board is simulated,
// decodes the pin from args[0] and claims it
func claimPin(board hardware.BoardHandle, args []any, class string) (*Board, int, error) {
	b, ok := board.(*Board)
	if !ok {
		return nil, 0, fmt.Errorf("%s requires a simulated board, got %T", class, board)
	}
	if err := hardware.ArgCount(args, 1, 1); err != nil {
		return nil, 0, err
	}
	pin, err := hardware.ArgInt(args, 0)
	if err != nil {
		return nil, 0, err
	}
	if err := b.Claim(pin, class); err != nil {
		return nil, 0, err
	}
	return b, pin, nil
}
