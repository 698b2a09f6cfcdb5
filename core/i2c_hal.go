package core

import "tinygo.org/x/drivers"

// DefaultAddress is the fixed 7-bit address of the PCA9570 expander.
const DefaultAddress uint16 = 0x24

// I2CSession is one open bus transaction. Tx follows drivers.I2C, so a
// machine.I2C or any TinyGo driver bus can back it directly.
type I2CSession interface {
	drivers.I2C

	// Close releases the session. It is called exactly once per Open,
	// including after a failed Tx.
	Close() error
}

// I2CDriver is the abstract bus that core code uses. Each register access
// opens a fresh session and closes it before returning.
type I2CDriver interface {
	Open() (I2CSession, error)
}

// NopCloser adapts a bus that needs no per-transaction teardown.
func NopCloser(bus drivers.I2C) I2CSession {
	return nopSession{bus}
}

type nopSession struct {
	drivers.I2C
}

func (nopSession) Close() error { return nil }

// StaticDriver hands out sessions on a bus that stays configured, such as
// machine.I2C0 on a microcontroller.
type StaticDriver struct {
	Bus drivers.I2C
}

func (d StaticDriver) Open() (I2CSession, error) {
	return NopCloser(d.Bus), nil
}
