package sim

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/hwbridge/lib/hardware"
	"sync"
)

const (
	ClassServo  = "Servo"
	ClassMotor  = "Motor"
	ClassSensor = "Sensor"

	servoMin = 0
	servoMax = 180

	defaultMotorSpeed = 128
	sensorResolution  = 1024
)

// --------------------------------------------------------------------------
// Servo
// --------------------------------------------------------------------------

// Servo is a simulated hobby servo with a 0..180 degree range
type Servo struct {
	board    *Board
	pin      int
	mu       sync.Mutex
	position float64
	sweeping bool
}

func newServo(board hardware.BoardHandle, args []any) (hardware.Component, error) {
	b, pin, err := claimPin(board, args, ClassServo)
	if err != nil {
		return nil, err
	}
	return &Servo{board: b, pin: pin, position: (servoMin + servoMax) / 2}, nil
}

func (s *Servo) Class() string {
	return ClassServo
}

func (s *Servo) Methods() hardware.MethodSet {
	return hardware.MethodSet{
		"to": func(_ context.Context, args []any) (any, error) {
			deg, err := hardware.ArgFloat(args, 0)
			if err != nil {
				return nil, err
			}
			if deg < servoMin || deg > servoMax {
				return nil, fmt.Errorf("%w: servo position must be within %d..%d, got %v", hardware.ErrInvalidArgument, servoMin, servoMax, deg)
			}
			return s.moveTo(deg), nil
		},
		"center": func(context.Context, []any) (any, error) {
			return s.moveTo((servoMin + servoMax) / 2), nil
		},
		"min": func(context.Context, []any) (any, error) {
			return s.moveTo(servoMin), nil
		},
		"max": func(context.Context, []any) (any, error) {
			return s.moveTo(servoMax), nil
		},
		"sweep": func(context.Context, []any) (any, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.sweeping = true
			return nil, nil
		},
		"stop": func(context.Context, []any) (any, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.sweeping = false
			return s.position, nil
		},
		"position": func(context.Context, []any) (any, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.position, nil
		},
	}
}

func (s *Servo) moveTo(deg float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeping = false
	s.position = deg
	return s.position
}

// Close releases the pin
func (s *Servo) Close() error {
	s.board.Release(s.pin)
	return nil
}

// --------------------------------------------------------------------------
// Motor
// --------------------------------------------------------------------------

// Motor is a simulated DC motor with a 0..255 speed range and a direction
type Motor struct {
	board    *Board
	pin      int
	mu       sync.Mutex
	speed    int
	reversed bool
}

func newMotor(board hardware.BoardHandle, args []any) (hardware.Component, error) {
	b, pin, err := claimPin(board, args, ClassMotor)
	if err != nil {
		return nil, err
	}
	return &Motor{board: b, pin: pin}, nil
}

func (m *Motor) Class() string {
	return ClassMotor
}

func (m *Motor) Methods() hardware.MethodSet {
	run := func(args []any, reversed bool, def int) (any, error) {
		speed, err := hardware.ArgIntOr(args, 0, def)
		if err != nil {
			return nil, err
		}
		if speed < 0 || speed > 255 {
			return nil, fmt.Errorf("%w: motor speed must be within 0..255, got %d", hardware.ErrInvalidArgument, speed)
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.speed = speed
		m.reversed = reversed
		return m.speed, nil
	}

	return hardware.MethodSet{
		"start": func(_ context.Context, args []any) (any, error) {
			m.mu.Lock()
			reversed := m.reversed
			m.mu.Unlock()
			return run(args, reversed, defaultMotorSpeed)
		},
		"forward": func(_ context.Context, args []any) (any, error) {
			return run(args, false, defaultMotorSpeed)
		},
		"reverse": func(_ context.Context, args []any) (any, error) {
			return run(args, true, defaultMotorSpeed)
		},
		"stop": func(context.Context, []any) (any, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.speed = 0
			return nil, nil
		},
		"speed": func(context.Context, []any) (any, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.reversed {
				return -m.speed, nil
			}
			return m.speed, nil
		},
		"isRunning": func(context.Context, []any) (any, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			return m.speed > 0, nil
		},
	}
}

// Close stops the motor and releases the pin
func (m *Motor) Close() error {
	m.mu.Lock()
	m.speed = 0
	m.mu.Unlock()
	m.board.Release(m.pin)
	return nil
}

// --------------------------------------------------------------------------
// Sensor
// --------------------------------------------------------------------------

// Sensor is a simulated analog sensor producing a deterministic 10 bit
// reading sequence per pin
type Sensor struct {
	board     *Board
	pin       int
	mu        sync.Mutex
	reads     int
	low, high float64
	scaled    bool
}

func newSensor(board hardware.BoardHandle, args []any) (hardware.Component, error) {
	b, pin, err := claimPin(board, args, ClassSensor)
	if err != nil {
		return nil, err
	}
	return &Sensor{board: b, pin: pin}, nil
}

func (s *Sensor) Class() string {
	return ClassSensor
}

func (s *Sensor) Methods() hardware.MethodSet {
	value := func(context.Context, []any) (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		raw := s.nextLocked()
		if !s.scaled {
			return raw, nil
		}
		return s.low + (s.high-s.low)*float64(raw)/float64(sensorResolution-1), nil
	}

	return hardware.MethodSet{
		"value": value,
		"read":  value,
		"raw": func(context.Context, []any) (any, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.nextLocked(), nil
		},
		"scale": func(_ context.Context, args []any) (any, error) {
			if err := hardware.ArgCount(args, 2, 2); err != nil {
				return nil, err
			}
			low, err := hardware.ArgFloat(args, 0)
			if err != nil {
				return nil, err
			}
			high, err := hardware.ArgFloat(args, 1)
			if err != nil {
				return nil, err
			}
			if low >= high {
				return nil, fmt.Errorf("%w: scale low (%v) must be below high (%v)", hardware.ErrInvalidArgument, low, high)
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			s.low, s.high, s.scaled = low, high, true
			return nil, nil
		},
	}
}

// nextLocked must be called with s.mu held
func (s *Sensor) nextLocked() int {
	raw := (s.pin*97 + s.reads*31) % sensorResolution
	s.reads++
	return raw
}

// Close releases the pin
func (s *Sensor) Close() error {
	s.board.Release(s.pin)
	return nil
}
