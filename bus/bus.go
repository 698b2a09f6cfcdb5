// Package bus provides the I2C backends the expander can run on: a Linux
// i2c-dev adapter, a Klipper MCU acting as a USB to I2C bridge, and an
// in-memory simulator.
package bus

import (
	"context"
	"errors"
	"fmt"
	"io"

	"ledtools/core"
	"ledtools/host/mcu"
	"ledtools/host/serial"
)

// Backend names accepted in Config.Driver.
const (
	DriverPeriph = "periph"
	DriverMCU    = "mcu"
	DriverSim    = "sim"
)

var errSessionClosed = errors.New("i2c session already closed")

// Config selects and parameterizes a backend.
type Config struct {
	Driver      string
	Name        string // periph adapter name
	Address     uint16
	FrequencyHz int
	MCU         MCUConfig
}

// MCUConfig locates the bridge MCU and the I2C bus on it.
type MCUConfig struct {
	Device string
	Baud   int
	I2CBus string
	OID    uint8
}

// New opens the backend cfg names. The returned closer releases whatever
// the backend holds open for its lifetime.
func New(ctx context.Context, cfg Config) (core.I2CDriver, io.Closer, error) {
	switch cfg.Driver {
	case DriverPeriph:
		p, err := NewPeriph(cfg.Name, cfg.FrequencyHz)
		if err != nil {
			return nil, nil, err
		}
		return p, nopCloser{}, nil

	case DriverSim, "":
		return NewSim(cfg.Address), nopCloser{}, nil

	case DriverMCU:
		sc := serial.DefaultConfig(cfg.MCU.Device)
		if cfg.MCU.Baud > 0 {
			sc.Baud = cfg.MCU.Baud
		}
		m, err := mcu.Connect(sc)
		if err != nil {
			return nil, nil, err
		}
		bridge, err := NewMCUBridge(ctx, m, mcu.I2CConfig{
			OID:     cfg.MCU.OID,
			Bus:     cfg.MCU.I2CBus,
			RateHz:  uint32(cfg.FrequencyHz),
			Address: cfg.Address,
		})
		if err != nil {
			m.Close()
			return nil, nil, err
		}
		return bridge, m, nil
	}
	return nil, nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
