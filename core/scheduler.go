package core

import "time"

// Timer represents a scheduled event
type Timer struct {
	WakeTime time.Time
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler keeps timers in a singly linked list sorted by WakeTime.
// It is not safe for concurrent use; the Loop goroutine owns it.
type Scheduler struct {
	timerList *Timer
}

// Schedule adds a timer to the schedule
func (s *Scheduler) Schedule(t *Timer) {
	s.insertTimer(t)
}

// insertTimer inserts a timer in sorted order by WakeTime.
// Equal wake times keep insertion order.
func (s *Scheduler) insertTimer(t *Timer) {
	if s.timerList == nil || t.WakeTime.Before(s.timerList.WakeTime) {
		t.Next = s.timerList
		s.timerList = t
		return
	}

	current := s.timerList
	for current.Next != nil && !t.WakeTime.Before(current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Remove unlinks t. It reports false when t was not scheduled, which is
// the case while its own handler runs.
func (s *Scheduler) Remove(t *Timer) bool {
	prev := &s.timerList
	for cur := s.timerList; cur != nil; cur = cur.Next {
		if cur == t {
			*prev = cur.Next
			cur.Next = nil
			return true
		}
		prev = &cur.Next
	}
	return false
}

// NextWake returns the earliest wake time.
func (s *Scheduler) NextWake() (time.Time, bool) {
	if s.timerList == nil {
		return time.Time{}, false
	}
	return s.timerList.WakeTime, true
}

// Len returns the number of scheduled timers.
func (s *Scheduler) Len() int {
	n := 0
	for cur := s.timerList; cur != nil; cur = cur.Next {
		n++
	}
	return n
}

// Dispatch runs every timer with WakeTime <= now and returns how many
// handlers ran. A handler that returns SF_RESCHEDULE must have advanced
// its WakeTime.
func (s *Scheduler) Dispatch(now time.Time) int {
	fired := 0
	for s.timerList != nil && !s.timerList.WakeTime.After(now) {
		timer := s.timerList
		s.timerList = timer.Next
		timer.Next = nil

		fired++
		if timer.Handler(timer) == SF_RESCHEDULE {
			s.insertTimer(timer)
		}
	}
	return fired
}
