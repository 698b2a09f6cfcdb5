// Package mcutest emulates a Klipper MCU with one I2C register device
// attached, for tests of code that drives the bridge.
package mcutest

import (
	"bytes"
	"sync"

	"ledtools/protocol"
	"ledtools/protocol/protocoltest"
)

// Message ids of the emulated firmware, in registration order.
const (
	IdentifyResponse = 0
	Identify         = 1
	GetConfig        = 2
	AllocateOIDs     = 3
	ConfigI2C        = 4
	I2CSetBus        = 5
	FinalizeConfig   = 6
	I2CWrite         = 7
	I2CRead          = 8
	ConfigResponse   = 9
	I2CReadResponse  = 10
)

// Bridge is the emulated firmware state.
type Bridge struct {
	*protocoltest.FakeMCU

	firmware *Firmware

	mu         sync.Mutex
	configured bool
	crc        uint32
	bus        uint32
	rate       uint32
	address    uint32
	oids       map[uint32]bool
	register   byte
}

// NewBridge starts an unconfigured bridge whose device register holds
// initial.
func NewBridge(initial byte) *Bridge {
	b := &Bridge{
		firmware: NewFirmware("v0.12.0-test", "gcc: test"),
		oids:     make(map[uint32]bool),
		register: initial,
	}

	fw := b.firmware
	fw.RegisterResponse("identify_response", "offset=%u data=%.*s")
	fw.RegisterCommand("identify", "offset=%u count=%c", b.identify)
	fw.RegisterCommand("get_config", "", b.getConfig)
	fw.RegisterCommand("allocate_oids", "count=%c", b.allocateOIDs)
	fw.RegisterCommand("config_i2c", "oid=%c", b.configI2C)
	fw.RegisterCommand("i2c_set_bus", "oid=%c i2c_bus=%u rate=%u address=%u", b.setBus)
	fw.RegisterCommand("finalize_config", "crc=%u", b.finalizeConfig)
	fw.RegisterCommand("i2c_write", "oid=%c data=%*s", b.i2cWrite)
	fw.RegisterCommand("i2c_read", "oid=%c reg=%*s read_len=%u", b.i2cRead)
	fw.RegisterResponse("config_response", "is_config=%c crc=%u is_shutdown=%c move_count=%hu")
	fw.RegisterResponse("i2c_read_response", "oid=%c response=%*s")

	fw.AddConstant("MCU", "rp2040")
	fw.AddConstant("CLOCK_FREQ", 12000000)
	fw.AddEnumeration("i2c_bus", "i2c0a", "i2c0b", "i2c1a")

	b.FakeMCU = protocoltest.New(b.handle)
	return b
}

// Firmware returns the message table the bridge runs.
func (b *Bridge) Firmware() *Firmware {
	return b.firmware
}

// Register returns the device register.
func (b *Bridge) Register() byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.register
}

// Setup is what the host configured on the bridge.
type Setup struct {
	Configured bool
	Bus        uint32
	Rate       uint32
	Address    uint32
}

// Setup returns the current configuration.
func (b *Bridge) Setup() Setup {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Setup{Configured: b.configured, Bus: b.bus, Rate: b.rate, Address: b.address}
}

func (b *Bridge) handle(cmdID uint32, args []byte) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	resp, err := b.firmware.Dispatch(uint16(cmdID), &args)
	if err != nil {
		return nil
	}
	return resp
}

func next(args *[]byte) uint32 {
	v, _ := protocol.DecodeVLQUint(args)
	return v
}

func (b *Bridge) identify(args *[]byte) [][]byte {
	offset, count := next(args), next(args)
	chunk := b.firmware.Chunk(offset, count)
	return [][]byte{protocol.EncodeCommand(IdentifyResponse, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQBytes(out, chunk)
	})}
}

func (b *Bridge) getConfig(*[]byte) [][]byte {
	return [][]byte{protocol.EncodeCommand(ConfigResponse, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, boolToUint(b.configured))
		protocol.EncodeVLQUint(out, b.crc)
		protocol.EncodeVLQUint(out, 0)
		protocol.EncodeVLQUint(out, 0)
	})}
}

func (b *Bridge) allocateOIDs(*[]byte) [][]byte {
	return nil
}

func (b *Bridge) configI2C(args *[]byte) [][]byte {
	b.oids[next(args)] = true
	return nil
}

func (b *Bridge) setBus(args *[]byte) [][]byte {
	next(args)
	b.bus = next(args)
	b.rate = next(args)
	b.address = next(args)
	return nil
}

func (b *Bridge) finalizeConfig(args *[]byte) [][]byte {
	b.crc = next(args)
	b.configured = true
	return nil
}

func (b *Bridge) i2cWrite(args *[]byte) [][]byte {
	oid := next(args)
	data, _ := protocol.DecodeVLQBytes(args)
	if b.oids[oid] && len(data) > 0 {
		b.register = data[len(data)-1]
	}
	return nil
}

func (b *Bridge) i2cRead(args *[]byte) [][]byte {
	oid := next(args)
	protocol.DecodeVLQBytes(args)
	n := next(args)
	resp := bytes.Repeat([]byte{b.register}, int(n))
	return [][]byte{protocol.EncodeCommand(I2CReadResponse, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, oid)
		protocol.EncodeVLQBytes(out, resp)
	})}
}

func boolToUint(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
