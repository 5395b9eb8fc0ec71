package sim

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/hwbridge/lib/hardware"
	"sync"
	"time"
)

const (
	ClassLed = "Led"

	defaultBlinkMillisecond = 100
)

// Led is a simulated LED on a digital (optionally PWM) pin
type Led struct {
	board      *Board
	pin        int
	mu         sync.Mutex
	on         bool
	brightness int
	stopBlink  chan struct{}
}

func newLed(board hardware.BoardHandle, args []any) (hardware.Component, error) {
	b, pin, err := claimPin(board, args, ClassLed)
	if err != nil {
		return nil, err
	}
	return &Led{board: b, pin: pin, brightness: 255}, nil
}

func (l *Led) Class() string {
	return ClassLed
}

func (l *Led) Methods() hardware.MethodSet {
	return hardware.MethodSet{
		"on": func(context.Context, []any) (any, error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.stopBlinkLocked()
			l.on = true
			return nil, nil
		},
		"off": func(context.Context, []any) (any, error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.stopBlinkLocked()
			l.on = false
			return nil, nil
		},
		"toggle": func(context.Context, []any) (any, error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.stopBlinkLocked()
			l.on = !l.on
			return l.on, nil
		},
		"blink": func(_ context.Context, args []any) (any, error) {
			ms, err := hardware.ArgIntOr(args, 0, defaultBlinkMillisecond)
			if err != nil {
				return nil, err
			}
			if ms <= 0 {
				return nil, fmt.Errorf("%w: blink interval must be positive, got %d", hardware.ErrInvalidArgument, ms)
			}
			l.startBlink(time.Duration(ms) * time.Millisecond)
			return nil, nil
		},
		"stop": func(context.Context, []any) (any, error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.stopBlinkLocked()
			return nil, nil
		},
		"brightness": func(_ context.Context, args []any) (any, error) {
			v, err := hardware.ArgInt(args, 0)
			if err != nil {
				return nil, err
			}
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: brightness must be within 0..255, got %d", hardware.ErrInvalidArgument, v)
			}
			l.mu.Lock()
			defer l.mu.Unlock()
			l.brightness = v
			l.on = v > 0
			return nil, nil
		},
		"isOn": func(context.Context, []any) (any, error) {
			return l.IsOn(), nil
		},
	}
}

// IsOn reports whether the LED is currently lit
func (l *Led) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Blinking reports whether a blink loop is running
func (l *Led) Blinking() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopBlink != nil
}

// Close stops blinking and releases the pin
func (l *Led) Close() error {
	l.mu.Lock()
	l.stopBlinkLocked()
	l.mu.Unlock()
	l.board.Release(l.pin)
	return nil
}

func (l *Led) startBlink(interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopBlinkLocked()
	stop := make(chan struct{})
	l.stopBlink = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.mu.Lock()
				l.on = !l.on
				l.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// stopBlinkLocked must be called with l.mu held
func (l *Led) stopBlinkLocked() {
	if l.stopBlink != nil {
		close(l.stopBlink)
		l.stopBlink = nil
	}
}
