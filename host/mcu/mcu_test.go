package mcu_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"ledtools/host/mcu"
	"ledtools/host/mcu/mcutest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func connect(t *testing.T, initial byte) (*mcu.MCU, *mcutest.Bridge, context.Context) {
	t.Helper()

	bridge := mcutest.NewBridge(initial)
	m := mcu.New(bridge.Port())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(func() {
		cancel()
		m.Close()
		bridge.Wait()
	})

	if err := m.RetrieveDictionary(ctx); err != nil {
		t.Fatalf("RetrieveDictionary: %v", err)
	}
	return m, bridge, ctx
}

func TestRetrieveDictionary(t *testing.T) {
	m, _, _ := connect(t, 0xFF)

	dict := m.Dictionary()
	if dict.Version != "v0.12.0-test" {
		t.Errorf("Version = %q", dict.Version)
	}

	tests := []struct {
		name string
		want uint16
	}{
		{"identify", mcutest.Identify},
		{"i2c_set_bus", mcutest.I2CSetBus},
		{"i2c_read", mcutest.I2CRead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := m.CommandID(tt.name)
			if err != nil || id != tt.want {
				t.Errorf("CommandID(%q) = %d, %v; want %d", tt.name, id, err, tt.want)
			}
		})
	}

	if id, err := m.ResponseID("i2c_read_response"); err != nil || id != mcutest.I2CReadResponse {
		t.Errorf("ResponseID = %d, %v", id, err)
	}
	if _, err := m.CommandID("queue_step"); !errors.Is(err, mcu.ErrUnknownCommand) {
		t.Errorf("unknown command err = %v", err)
	}

	if raw := m.RawDictionary(); !bytes.Contains(raw, []byte(`"i2c_bus"`)) {
		t.Errorf("raw dictionary = %s", raw)
	}

	var summary bytes.Buffer
	m.WriteSummary(&summary)
	if !strings.Contains(summary.String(), "[5] i2c_set_bus oid=%c") {
		t.Errorf("summary missing i2c_set_bus:\n%s", summary.String())
	}
}

func TestCommandBeforeDictionary(t *testing.T) {
	bridge := mcutest.NewBridge(0)
	m := mcu.New(bridge.Port())
	defer func() {
		m.Close()
		bridge.Wait()
	}()

	err := m.I2CWrite(context.Background(), 0, []byte{1})
	if !errors.Is(err, mcu.ErrNoDictionary) {
		t.Errorf("I2CWrite without dictionary = %v", err)
	}
}

func TestConfigureI2C(t *testing.T) {
	m, bridge, ctx := connect(t, 0xFF)

	cfg := mcu.I2CConfig{OID: 0, Bus: "i2c0b", RateHz: 1000000, Address: 0x24}
	if err := m.ConfigureI2C(ctx, cfg); err != nil {
		t.Fatalf("ConfigureI2C: %v", err)
	}
	setup := bridge.Setup()
	want := mcutest.Setup{Configured: true, Bus: 1, Rate: 1000000, Address: 0x24}
	if setup != want {
		t.Errorf("setup = %+v, want %+v", setup, want)
	}

	// same setup again is accepted without reconfiguring
	before := len(bridge.Commands())
	if err := m.ConfigureI2C(ctx, cfg); err != nil {
		t.Fatalf("second ConfigureI2C: %v", err)
	}
	if n := len(bridge.Commands()) - before; n != 1 {
		t.Errorf("second ConfigureI2C sent %d commands, want only get_config", n)
	}

	cfg.Address = 0x25
	if err := m.ConfigureI2C(ctx, cfg); !errors.Is(err, mcu.ErrAlreadyConfigured) {
		t.Errorf("changed setup err = %v, want ErrAlreadyConfigured", err)
	}
}

func TestConfigureI2CUnknownBus(t *testing.T) {
	m, _, ctx := connect(t, 0xFF)

	if err := m.ConfigureI2C(ctx, mcu.I2CConfig{Bus: "spi0"}); err == nil {
		t.Error("ConfigureI2C accepted an unknown bus")
	}
	// numeric names bypass the enumeration
	if err := m.ConfigureI2C(ctx, mcu.I2CConfig{Bus: "2", RateHz: 100000, Address: 0x24}); err != nil {
		t.Errorf("numeric bus: %v", err)
	}
}

func TestI2CWriteRead(t *testing.T) {
	m, bridge, ctx := connect(t, 0xFF)

	if err := m.ConfigureI2C(ctx, mcu.I2CConfig{Bus: "i2c0a", RateHz: 400000, Address: 0x24}); err != nil {
		t.Fatal(err)
	}
	if err := m.I2CWrite(ctx, 0, []byte{0xFA}); err != nil {
		t.Fatalf("I2CWrite: %v", err)
	}
	if got := bridge.Register(); got != 0xFA {
		t.Errorf("bridge register = %#x, want 0xfa", got)
	}

	data, err := m.I2CRead(ctx, 0, nil, 1)
	if err != nil {
		t.Fatalf("I2CRead: %v", err)
	}
	if !bytes.Equal(data, []byte{0xFA}) {
		t.Errorf("I2CRead = % x", data)
	}
}
