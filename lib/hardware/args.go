package hardware

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidArgument is wrapped by every argument decoding error
var ErrInvalidArgument = errors.New("invalid argument")

// ArgCount checks that between min and max arguments were passed (max < 0 means unbounded)
func ArgCount(args []any, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		if min == max {
			return fmt.Errorf("%w: expected %d arguments, got %d", ErrInvalidArgument, min, len(args))
		}
		return fmt.Errorf("%w: expected %d to %d arguments, got %d", ErrInvalidArgument, min, max, len(args))
	}
	return nil
}

// ArgFloat returns args[i] as a number
func ArgFloat(args []any, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing argument %d", ErrInvalidArgument, i)
	}
	switch v := args[i].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%w: argument %d must be a number, got %T", ErrInvalidArgument, i, args[i])
	}
}

// ArgInt returns args[i] as an integer. Numbers with a fractional part are rejected.
func ArgInt(args []any, i int) (int, error) {
	f, err := ArgFloat(args, i)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: argument %d must be an integer, got %v", ErrInvalidArgument, i, f)
	}
	return int(f), nil
}

// ArgIntOr returns args[i] as an integer or def if the argument was not passed
func ArgIntOr(args []any, i int, def int) (int, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	return ArgInt(args, i)
}

// ArgString returns args[i] as a string
func ArgString(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing argument %d", ErrInvalidArgument, i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %d must be a string, got %T", ErrInvalidArgument, i, args[i])
	}
	return s, nil
}

// ArgBool returns args[i] as a bool
func ArgBool(args []any, i int) (bool, error) {
	if i >= len(args) {
		return false, fmt.Errorf("%w: missing argument %d", ErrInvalidArgument, i)
	}
	b, ok := args[i].(bool)
	if !ok {
		return false, fmt.Errorf("%w: argument %d must be a bool, got %T", ErrInvalidArgument, i, args[i])
	}
	return b, nil
}
