package core

import (
	"errors"
	"testing"
	"time"
)

func TestExpanderWriteThenRead(t *testing.T) {
	bus := newFakeBus(0x00)
	exp := NewExpander(bus)

	if err := exp.WriteRegister(0b111); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	v, err := exp.ReadRegister()
	if err != nil {
		t.Fatalf("ReadRegister: %v", err)
	}
	if v&AllOffMask != 0b111 {
		t.Errorf("read back %#b, want low bits 0b111", v)
	}
	if bus.lastTx != DefaultAddress {
		t.Errorf("addressed 0x%02x, want 0x%02x", bus.lastTx, DefaultAddress)
	}

	opens, closes, reads, writes := bus.counts()
	if opens != 2 || closes != 2 {
		t.Errorf("sessions opened/closed %d/%d, want 2/2", opens, closes)
	}
	if reads != 1 || writes != 1 {
		t.Errorf("reads/writes %d/%d, want 1/1", reads, writes)
	}
}

func TestExpanderClosesOnFailure(t *testing.T) {
	bus := newFakeBus(0xFF)
	bus.txErr = ErrNACK
	exp := NewExpander(bus, WithAddress(0x27))

	_, err := exp.ReadRegister()
	var busErr *BusError
	if !errors.As(err, &busErr) {
		t.Fatalf("error = %v, want *BusError", err)
	}
	if busErr.Op != "read" || busErr.Addr != 0x27 {
		t.Errorf("BusError = %+v", busErr)
	}
	if !errors.Is(err, ErrNACK) || !errors.Is(err, ErrHardware) {
		t.Errorf("error %v should match ErrNACK and ErrHardware", err)
	}

	opens, closes, _, _ := bus.counts()
	if opens != 1 || closes != 1 {
		t.Errorf("sessions opened/closed %d/%d, want 1/1", opens, closes)
	}
}

func TestExpanderOpenFailure(t *testing.T) {
	bus := newFakeBus(0xFF)
	bus.openErr = errors.New("no such bus")
	exp := NewExpander(bus)

	var ops []string
	exp.OnTransaction = func(op string, err error) {
		if err != nil {
			ops = append(ops, op)
		}
	}

	err := exp.WriteRegister(0)
	if !IsHardware(err) {
		t.Errorf("WriteRegister error = %v, want hardware error", err)
	}
	var busErr *BusError
	if !errors.As(err, &busErr) || busErr.Op != "open" || busErr.Err != bus.openErr {
		t.Errorf("WriteRegister error = %#v, want open failure", err)
	}
	if len(ops) != 1 || ops[0] != "write" {
		t.Errorf("OnTransaction saw %v", ops)
	}
}

func TestExpanderTimeout(t *testing.T) {
	bus := newFakeBus(0xFF)
	bus.block = make(chan struct{})
	exp := NewExpander(bus, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := exp.ReadRegister()
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}

	// The stuck transaction still holds the bus.
	if err := exp.WriteRegister(0); !errors.Is(err, ErrTimeout) {
		t.Errorf("second transaction error = %v, want ErrTimeout", err)
	}

	bus.mu.Lock()
	stuck := bus.block
	bus.block = nil
	bus.mu.Unlock()
	close(stuck)

	deadline := time.Now().Add(time.Second)
	for {
		if err := exp.WriteRegister(0x55); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("bus never recovered after the stuck transaction finished")
		}
	}
	if bus.value() != 0x55 {
		t.Errorf("register = %#x, want 0x55", bus.value())
	}
}
