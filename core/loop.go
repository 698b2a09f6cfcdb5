package core

import (
	"context"
	"errors"
	"time"
)

// ErrLoopStopped is returned by Do once Run has returned.
var ErrLoopStopped = errors.New("event loop stopped")

// Loop is the single thread of control that services both timer ticks and
// posted work, so neither ever interleaves with the other.
type Loop struct {
	timers *Timers
	work   chan func()
	done   chan struct{}
}

func NewLoop(timers *Timers) *Loop {
	return &Loop{
		timers: timers,
		work:   make(chan func()),
		done:   make(chan struct{}),
	}
}

// Timers returns the timers owned by the loop. Only touch them from
// inside Do or a timer callback.
func (l *Loop) Timers() *Timers {
	return l.timers
}

// Run services the loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		var wake <-chan time.Time
		var timer *time.Timer
		if at, ok := l.timers.NextWake(); ok {
			timer = time.NewTimer(at.Sub(l.timers.Now()))
			wake = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case fn := <-l.work:
			fn()
		case <-wake:
		}
		if timer != nil {
			timer.Stop()
		}

		l.timers.Poll()
	}
}

// Do runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}

	select {
	case l.work <- job:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
