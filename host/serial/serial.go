// Package serial opens the serial link to a bridge MCU.
package serial

import (
	"io"
	"time"
)

// DefaultBaud is the rate Klipper firmware listens on. USB CDC ignores it.
const DefaultBaud = 250000

// Port is an open serial link.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// Config describes the port to open.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// DefaultConfig returns settings for a Klipper MCU on device.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
	}
}
