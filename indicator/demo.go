package indicator

import (
	"strconv"

	"ledtools/core"
)

type stepKind uint8

const (
	stepBlink stepKind = iota
	stepShine
	stepCancel
)

// Step is one command of the demo script.
type Step struct {
	kind     stepKind
	color    core.Color
	interval int
}

func (s Step) String() string {
	switch s.kind {
	case stepBlink:
		return "blink " + s.color.String() + " " + strconv.Itoa(s.interval)
	case stepShine:
		return "shine " + s.color.String()
	default:
		return "cancel"
	}
}

// DemoScript is replayed one step per demo tick.
var DemoScript = [...]Step{
	{kind: stepBlink, color: core.Red, interval: 500},
	{kind: stepBlink, color: core.Green, interval: 500},
	{kind: stepBlink, color: core.Blue, interval: 500},
	{kind: stepShine, color: core.Red},
	{kind: stepShine, color: core.Green},
	{kind: stepShine, color: core.Blue},
	{kind: stepCancel},
}

// demoSession tracks script progress. counter is bumped by every blink and
// shine while the session lives, including the ones the script issues, so
// a clean run keeps cursor == counter on every tick.
type demoSession struct {
	cursor  int
	counter int
}

func (c *Controller) runStep(s Step) error {
	switch s.kind {
	case stepBlink:
		return c.blink(s.color, s.interval)
	case stepShine:
		return c.shine(s.color)
	default:
		return c.cancel(demoCompleted)
	}
}

const (
	demoCompleted   = "completed"
	demoInterrupted = "interrupted"
	demoCancelled   = "cancelled"
	demoFailed      = "failed"
	demoRestarted   = "restarted"
)

// demoTick advances the script by one step.
func (c *Controller) demoTick() {
	s := c.demo
	if s == nil {
		_ = c.timers.Stop(core.DemoTimer)
		return
	}

	if s.cursor < len(DemoScript) {
		s.cursor++
	}
	if c.opts.TrackDemoInterference && s.cursor != s.counter {
		c.logger.Debug("Demo interrupted by another command", "cursor", s.cursor, "counter", s.counter)
		c.endDemo(demoInterrupted)
		return
	}
	if s.cursor >= len(DemoScript) {
		if err := c.cancel(demoCompleted); err != nil {
			c.logger.Error("Demo cleanup failed", "error", err)
		}
		return
	}

	c.runDemoStep(s.cursor)
}

func (c *Controller) runDemoStep(i int) {
	step := DemoScript[i]
	c.publish(eventDemoStep(i, step))
	if err := c.runStep(step); err != nil {
		c.logger.Error("Demo step failed", "step", i, "command", step.String(), "error", err)
		c.endDemo(demoFailed)
	}
}

// endDemo stops the demo timer and drops the session. The LEDs are left as
// they are.
func (c *Controller) endDemo(reason string) {
	s := c.demo
	if s == nil {
		return
	}
	c.demo = nil
	_ = c.timers.Stop(core.DemoTimer)
	c.publish(eventDemoEnded(reason, s.cursor))
}
