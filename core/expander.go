package core

import (
	"time"
)

// DefaultTimeout bounds every register transaction, including the wait for
// a transaction already in flight.
const DefaultTimeout = 1000 * time.Millisecond

// Expander performs single byte register I/O against a PCA9570. It is the
// only code that touches the bus. At most one transaction is in flight.
type Expander struct {
	driver  I2CDriver
	addr    uint16
	timeout time.Duration
	sem     chan struct{}

	// OnTransaction, if set, is called after every read or write with the
	// outcome. Used for metrics.
	OnTransaction func(op string, err error)
}

// ExpanderOption configures an Expander.
type ExpanderOption func(*Expander)

// WithAddress overrides DefaultAddress.
func WithAddress(addr uint16) ExpanderOption {
	return func(e *Expander) {
		e.addr = addr & 0x7F
	}
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) ExpanderOption {
	return func(e *Expander) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewExpander creates an Expander on driver.
func NewExpander(driver I2CDriver, opts ...ExpanderOption) *Expander {
	e := &Expander{
		driver:  driver,
		addr:    DefaultAddress,
		timeout: DefaultTimeout,
		sem:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Address returns the 7-bit device address.
func (e *Expander) Address() uint16 {
	return e.addr
}

// ReadRegister reads the output register.
func (e *Expander) ReadRegister() (byte, error) {
	b, err := e.transact("read", nil, true)
	e.observe("read", err)
	return b, err
}

// WriteRegister writes v to the output register.
func (e *Expander) WriteRegister(v byte) error {
	_, err := e.transact("write", []byte{v}, false)
	e.observe("write", err)
	return err
}

type txResult struct {
	value byte
	err   error
}

// transact runs one session on its own goroutine so the caller can give up
// at the deadline. The semaphore is released only when the session is
// closed, so an abandoned transaction still blocks the next one until it
// finishes or that caller times out too.
func (e *Expander) transact(op string, w []byte, read bool) (byte, error) {
	deadline := time.NewTimer(e.timeout)
	defer deadline.Stop()

	select {
	case e.sem <- struct{}{}:
	case <-deadline.C:
		return 0, &BusError{Op: op, Addr: e.addr, Err: ErrTimeout}
	}

	done := make(chan txResult, 1)
	go func() {
		defer func() { <-e.sem }()
		v, err := e.session(w, read)
		done <- txResult{value: v, err: err}
	}()

	select {
	case res := <-done:
		if be, ok := res.err.(*BusError); ok {
			return 0, be
		}
		if res.err != nil {
			return 0, &BusError{Op: op, Addr: e.addr, Err: res.err}
		}
		return res.value, nil
	case <-deadline.C:
		return 0, &BusError{Op: op, Addr: e.addr, Err: ErrTimeout}
	}
}

func (e *Expander) session(w []byte, read bool) (v byte, err error) {
	s, err := e.driver.Open()
	if err != nil {
		return 0, &BusError{Op: "open", Addr: e.addr, Err: err}
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()

	if !read {
		return 0, s.Tx(e.addr, w, nil)
	}
	buf := make([]byte, 1)
	if err := s.Tx(e.addr, nil, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (e *Expander) observe(op string, err error) {
	if e.OnTransaction != nil {
		e.OnTransaction(op, err)
	}
}
