package mcu

import (
	"context"
	"fmt"

	"ledtools/protocol"
)

// I2CConfig describes one I2C device behind the MCU.
type I2CConfig struct {
	OID     uint8
	Bus     string // enumeration name such as "i2c0a", or a number
	RateHz  uint32
	Address uint16
}

// ConfigureI2C sets up an I2C object on the MCU. An MCU that already
// runs the same configuration is left alone.
func (m *MCU) ConfigureI2C(ctx context.Context, cfg I2CConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bus, err := m.enumeration("i2c_bus", cfg.Bus)
	if err != nil {
		return err
	}
	crc := configCRC([]string{
		fmt.Sprintf("allocate_oids count=%d", cfg.OID+1),
		fmt.Sprintf("config_i2c oid=%d", cfg.OID),
		fmt.Sprintf("i2c_set_bus oid=%d i2c_bus=%d rate=%d address=%d", cfg.OID, bus, cfg.RateHz, cfg.Address),
	})

	configured, current, err := m.getConfig(ctx)
	if err != nil {
		return err
	}
	if configured {
		if current != crc {
			return ErrAlreadyConfigured
		}
		m.logger.Info("MCU already configured", "crc", crc)
		return nil
	}

	steps := []struct {
		name string
		args func(out protocol.OutputBuffer)
	}{
		{"allocate_oids", func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, uint32(cfg.OID)+1)
		}},
		{"config_i2c", func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, uint32(cfg.OID))
		}},
		{"i2c_set_bus", func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, uint32(cfg.OID))
			protocol.EncodeVLQUint(out, bus)
			protocol.EncodeVLQUint(out, cfg.RateHz)
			protocol.EncodeVLQUint(out, uint32(cfg.Address))
		}},
		{"finalize_config", func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, crc)
		}},
	}
	for _, step := range steps {
		if err := m.send(ctx, step.name, step.args); err != nil {
			return fmt.Errorf("configure i2c: %w", err)
		}
	}

	m.logger.Info("I2C configured",
		"oid", cfg.OID, "bus", cfg.Bus, "rate", cfg.RateHz,
		"address", fmt.Sprintf("0x%02x", cfg.Address))
	return nil
}

func (m *MCU) getConfig(ctx context.Context) (configured bool, crc uint32, err error) {
	args, err := m.query(ctx, "get_config", nil, "config_response")
	if err != nil {
		return false, 0, err
	}
	isConfig, err := protocol.DecodeVLQUint(&args)
	if err != nil {
		return false, 0, err
	}
	crc, err = protocol.DecodeVLQUint(&args)
	if err != nil {
		return false, 0, err
	}
	return isConfig != 0, crc, nil
}

// I2CWrite writes data to the device behind oid.
func (m *MCU) I2CWrite(ctx context.Context, oid uint8, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.send(ctx, "i2c_write", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(oid))
		protocol.EncodeVLQBytes(out, data)
	})
}

// I2CRead writes reg, then reads n bytes from the device behind oid.
func (m *MCU) I2CRead(ctx context.Context, oid uint8, reg []byte, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	args, err := m.query(ctx, "i2c_read", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(oid))
		protocol.EncodeVLQBytes(out, reg)
		protocol.EncodeVLQUint(out, uint32(n))
	}, "i2c_read_response")
	if err != nil {
		return nil, err
	}

	respOID, err := protocol.DecodeVLQUint(&args)
	if err != nil {
		return nil, err
	}
	if respOID != uint32(oid) {
		return nil, fmt.Errorf("i2c_read_response for oid %d, want %d", respOID, oid)
	}
	data, err := protocol.DecodeVLQBytes(&args)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("i2c_read_response: got %d bytes, want %d", len(data), n)
	}
	return data, nil
}
