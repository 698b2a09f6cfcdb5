//go:build !wasm

package serial

import (
	"errors"
	"fmt"

	"github.com/tarm/serial"

	"ledtools/logging"
)

// NativePort wraps a tarm/serial port.
type NativePort struct {
	port *serial.Port
	cfg  Config
}

// Open opens cfg.Device. A zero Baud falls back to DefaultBaud.
func Open(cfg *Config) (Port, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, errors.New("serial: no device configured")
	}
	c := *cfg
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        c.Device,
		Baud:        c.Baud,
		ReadTimeout: c.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", c.Device, err)
	}
	logging.GetLogger("serial").Info("Serial port opened", "device", c.Device, "baud", c.Baud)

	return &NativePort{port: port, cfg: c}, nil
}

func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *NativePort) Close() error {
	return p.port.Close()
}

// Flush discards unread input.
func (p *NativePort) Flush() error {
	return p.port.Flush()
}

// String returns the device path.
func (p *NativePort) String() string {
	return p.cfg.Device
}
