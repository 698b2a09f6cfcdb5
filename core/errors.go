package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for a bad color, an out of range
	// interval or unexpected extra arguments. It is always detected before
	// any register I/O.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrHardware matches every failure that came from the bus.
	ErrHardware = errors.New("hardware error")

	ErrTimeout      = errors.New("bus transaction timed out")
	ErrNACK         = errors.New("device did not acknowledge")
	ErrUnknownTimer = errors.New("unknown timer")
)

// BusError reports a failed register transaction.
type BusError struct {
	Op   string // "read", "write" or "open"
	Addr uint16
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("i2c %s at 0x%02x: %v", e.Op, e.Addr, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// Is makes every BusError match ErrHardware.
func (e *BusError) Is(target error) bool {
	return target == ErrHardware
}

// IsHardware reports whether err originated on the bus.
func IsHardware(err error) bool {
	return errors.Is(err, ErrHardware)
}

func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}
