package bus

import (
	"context"
	"fmt"
	"time"

	"ledtools/core"
	"ledtools/host/mcu"
)

// bridgeTimeout bounds one forwarded transaction. The expander applies its
// own, usually shorter, deadline on top.
const bridgeTimeout = 2 * time.Second

// MCUBridge forwards register transactions to an I2C device configured on
// a Klipper MCU.
type MCUBridge struct {
	mcu  *mcu.MCU
	oid  uint8
	addr uint16
}

// NewMCUBridge loads the MCU dictionary and configures cfg on it.
func NewMCUBridge(ctx context.Context, m *mcu.MCU, cfg mcu.I2CConfig) (*MCUBridge, error) {
	if err := m.RetrieveDictionary(ctx); err != nil {
		return nil, err
	}
	if err := m.ConfigureI2C(ctx, cfg); err != nil {
		return nil, err
	}
	return &MCUBridge{mcu: m, oid: cfg.OID, addr: cfg.Address}, nil
}

// Open implements core.I2CDriver. The MCU link stays up between sessions.
func (b *MCUBridge) Open() (core.I2CSession, error) {
	return &bridgeSession{bridge: b}, nil
}

func (b *MCUBridge) String() string {
	return fmt.Sprintf("mcu:oid%d", b.oid)
}

type bridgeSession struct {
	bridge *MCUBridge
	closed bool
}

// Tx writes w and then reads len(r) bytes. The device address is fixed
// when the bus is configured, so any other address is not acknowledged.
func (s *bridgeSession) Tx(addr uint16, w, r []byte) error {
	if s.closed {
		return errSessionClosed
	}
	b := s.bridge
	if addr != b.addr {
		return core.ErrNACK
	}

	ctx, cancel := context.WithTimeout(context.Background(), bridgeTimeout)
	defer cancel()

	if len(r) > 0 {
		data, err := b.mcu.I2CRead(ctx, b.oid, w, len(r))
		if err != nil {
			return err
		}
		copy(r, data)
		return nil
	}
	return b.mcu.I2CWrite(ctx, b.oid, w)
}

func (s *bridgeSession) Close() error {
	if s.closed {
		return errSessionClosed
	}
	s.closed = true
	return nil
}
