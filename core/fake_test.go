package core

import (
	"errors"
	"sync"
)

// fakeBus is an in-memory expander behind the I2CDriver interface.
type fakeBus struct {
	mu      sync.Mutex
	reg     byte
	opens   int
	closes  int
	reads   int
	writes  int
	txErr   error
	openErr error
	block   chan struct{} // when set, Tx waits on it
	lastTx  uint16
}

func newFakeBus(initial byte) *fakeBus {
	return &fakeBus{reg: initial}
}

func (b *fakeBus) Open() (I2CSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opens++
	return &fakeSession{bus: b}, nil
}

func (b *fakeBus) counts() (opens, closes, reads, writes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens, b.closes, b.reads, b.writes
}

func (b *fakeBus) value() byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reg
}

type fakeSession struct {
	bus    *fakeBus
	closed bool
}

func (s *fakeSession) Tx(addr uint16, w, r []byte) error {
	b := s.bus
	b.mu.Lock()
	block := b.block
	b.mu.Unlock()
	if block != nil {
		<-block
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return errors.New("tx on closed session")
	}
	b.lastTx = addr
	if b.txErr != nil {
		return b.txErr
	}
	if len(w) > 0 {
		b.writes++
		b.reg = w[len(w)-1]
	}
	if len(r) > 0 {
		b.reads++
		for i := range r {
			r[i] = b.reg
		}
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closed = true
	s.bus.closes++
	return nil
}

// countingRegister records register I/O without a bus.
type countingRegister struct {
	value  byte
	reads  int
	writes int
	err    error
}

func (r *countingRegister) ReadRegister() (byte, error) {
	r.reads++
	if r.err != nil {
		return 0, r.err
	}
	return r.value, nil
}

func (r *countingRegister) WriteRegister(v byte) error {
	r.writes++
	if r.err != nil {
		return r.err
	}
	r.value = v
	return nil
}
