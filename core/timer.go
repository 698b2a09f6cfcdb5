package core

import (
	"fmt"
	"sync"
	"time"
)

// Clock supplies the time base for Timers.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock only moves when told to. Tests pair it with Timers.Poll.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// TimerName identifies one of the two periodic timers.
type TimerName string

const (
	BlinkTimer TimerName = "blink"
	DemoTimer  TimerName = "demo"
)

func (n TimerName) known() bool {
	return n == BlinkTimer || n == DemoTimer
}

type timerInstance struct {
	timer    Timer
	interval time.Duration
	stopped  bool
}

// Timers runs at most one periodic instance per name on a Scheduler.
// Like the Scheduler it belongs to a single goroutine.
type Timers struct {
	clock Clock
	sched Scheduler
	live  map[TimerName]*timerInstance

	// OnTick, if set, is called before each callback.
	OnTick func(name TimerName)
}

func NewTimers(clock Clock) *Timers {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Timers{
		clock: clock,
		live:  make(map[TimerName]*timerInstance, 2),
	}
}

// Start tears down any running instance of name, then schedules a new one
// that calls fn every interval, first at now+interval.
func (t *Timers) Start(name TimerName, interval time.Duration, fn func()) error {
	if !name.known() {
		return unknownTimer(name)
	}
	if interval <= 0 {
		return invalidArgf("timer %s interval %v", name, interval)
	}
	if err := t.Stop(name); err != nil {
		return err
	}

	inst := &timerInstance{interval: interval}
	inst.timer = Timer{
		WakeTime: t.clock.Now().Add(interval),
		Handler: func(tm *Timer) uint8 {
			if inst.stopped {
				return SF_DONE
			}
			if t.OnTick != nil {
				t.OnTick(name)
			}
			fn()
			// fn may have stopped or restarted this timer
			if inst.stopped {
				return SF_DONE
			}
			tm.WakeTime = tm.WakeTime.Add(inst.interval)
			return SF_RESCHEDULE
		},
	}
	t.live[name] = inst
	t.sched.Schedule(&inst.timer)
	return nil
}

// Stop cancels name. Stopping a stopped timer is a no-op.
func (t *Timers) Stop(name TimerName) error {
	if !name.known() {
		return unknownTimer(name)
	}
	inst, ok := t.live[name]
	if !ok {
		return nil
	}
	inst.stopped = true
	t.sched.Remove(&inst.timer)
	delete(t.live, name)
	return nil
}

// StopAll stops both timers.
func (t *Timers) StopAll() {
	_ = t.Stop(BlinkTimer)
	_ = t.Stop(DemoTimer)
}

// Running reports whether name has a live instance.
func (t *Timers) Running(name TimerName) bool {
	_, ok := t.live[name]
	return ok
}

// Interval returns the period of a running timer.
func (t *Timers) Interval(name TimerName) (time.Duration, bool) {
	inst, ok := t.live[name]
	if !ok {
		return 0, false
	}
	return inst.interval, true
}

// Poll fires every timer that is due at the current clock time.
func (t *Timers) Poll() int {
	return t.sched.Dispatch(t.clock.Now())
}

// NextWake returns when the next timer is due.
func (t *Timers) NextWake() (time.Time, bool) {
	return t.sched.NextWake()
}

// Now reads the timers' clock.
func (t *Timers) Now() time.Time {
	return t.clock.Now()
}

func unknownTimer(name TimerName) error {
	return fmt.Errorf("timer %q: %w (%w)", string(name), ErrUnknownTimer, ErrHardware)
}
