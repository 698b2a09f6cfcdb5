package bus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"ledtools/core"
	"ledtools/logging"
)

var (
	hostOnce sync.Once
	hostErr  error
)

func initHost() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	return hostErr
}

// Periph opens a Linux I2C adapter through periph.io for every session.
type Periph struct {
	name string
	freq physic.Frequency

	speedOnce sync.Once
}

// NewPeriph prepares the adapter called name ("1", "/dev/i2c-1", or "" for
// the first one found). frequencyHz of 0 keeps the adapter's rate.
func NewPeriph(name string, frequencyHz int) (*Periph, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	return &Periph{
		name: name,
		freq: physic.Frequency(frequencyHz) * physic.Hertz,
	}, nil
}

// Open implements core.I2CDriver. The returned i2c.BusCloser already has
// the Tx and Close methods of a session.
func (p *Periph) Open() (core.I2CSession, error) {
	b, err := i2creg.Open(p.name)
	if err != nil {
		return nil, err
	}
	if p.freq > 0 {
		if err := b.SetSpeed(p.freq); err != nil {
			// i2c-dev adapters usually fix the rate in the device tree.
			p.speedOnce.Do(func() {
				logging.GetLogger("bus").Warn("Cannot set I2C bus speed", "bus", p.name, "frequency", p.freq.String(), "error", err)
			})
		}
	}
	return b, nil
}

func (p *Periph) String() string {
	return "periph:" + p.name
}
