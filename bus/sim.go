package bus

import (
	"sync"
	"time"

	"ledtools/core"
)

// PowerOnState is the PCA9570 output register after reset: all outputs
// high, so every active-low LED is off.
const PowerOnState byte = 0xFF

// SimStats counts what the simulated bus has seen.
type SimStats struct {
	Opens  int
	Closes int
	Reads  int
	Writes int
	Failed int
}

// Sim is an in-memory PCA9570. It answers only at its own address and can
// be told to fail or stall transactions.
type Sim struct {
	mu       sync.Mutex
	addr     uint16
	reg      byte
	stats    SimStats
	history  []byte
	failErr  error
	failLeft int
	delay    time.Duration
}

// NewSim creates a simulator at addr in its power-on state.
func NewSim(addr uint16) *Sim {
	return &Sim{addr: addr, reg: PowerOnState}
}

// Open implements core.I2CDriver.
func (s *Sim) Open() (core.I2CSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Opens++
	return &simSession{sim: s}, nil
}

// Register returns the output register.
func (s *Sim) Register() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg
}

// SetRegister forces the output register without counting a write.
func (s *Sim) SetRegister(v byte) {
	s.mu.Lock()
	s.reg = v
	s.mu.Unlock()
}

// Stats returns a copy of the counters.
func (s *Sim) Stats() SimStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// History returns every value written, oldest first.
func (s *Sim) History() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.history))
	copy(out, s.history)
	return out
}

// FailNext makes the next n transactions return err. A negative n fails
// until FailNext is called again with n == 0.
func (s *Sim) FailNext(err error, n int) {
	s.mu.Lock()
	s.failErr = err
	s.failLeft = n
	s.mu.Unlock()
}

// SetDelay stalls every transaction by d.
func (s *Sim) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

type simSession struct {
	sim    *Sim
	closed bool
}

func (ss *simSession) Tx(addr uint16, w, r []byte) error {
	s := ss.sim
	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ss.closed {
		return errSessionClosed
	}
	if s.failLeft != 0 {
		if s.failLeft > 0 {
			s.failLeft--
		}
		s.stats.Failed++
		return s.failErr
	}
	if addr != s.addr {
		s.stats.Failed++
		return core.ErrNACK
	}

	// The PCA9570 has a single register: every written byte replaces the
	// outputs and every read returns them.
	for _, b := range w {
		s.reg = b
		s.history = append(s.history, b)
	}
	if len(w) > 0 {
		s.stats.Writes++
	}
	for i := range r {
		r[i] = s.reg
	}
	if len(r) > 0 {
		s.stats.Reads++
	}
	return nil
}

func (ss *simSession) Close() error {
	s := ss.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss.closed {
		return errSessionClosed
	}
	ss.closed = true
	s.stats.Closes++
	return nil
}
