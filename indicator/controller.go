// Package indicator implements the blink, shine, off, cancel and demo
// commands on top of the LED register and the two named timers.
package indicator

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"ledtools/core"
	"ledtools/events"
	"ledtools/logging"
)

// State is the coarse mode of the indicator.
type State uint8

const (
	Idle State = iota
	Blinking
	Demoing
)

func (s State) String() string {
	switch s {
	case Blinking:
		return "blinking"
	case Demoing:
		return "demoing"
	default:
		return "idle"
	}
}

// Publisher receives controller events. *events.Bus implements it.
type Publisher interface {
	Publish(ev events.Event)
}

// Controller owns the indicator state. It is not safe for concurrent use:
// commands and timer callbacks must run on one goroutine, normally the
// core.Loop that owns timers.
type Controller struct {
	leds   *core.LEDs
	timers *core.Timers
	opts   Options
	pub    Publisher
	logger *slog.Logger

	active core.Color // read by the blink tick
	demo   *demoSession
	cause  string
}

// New wires a controller to reg and timers. pub may be nil.
func New(reg core.Register, timers *core.Timers, opts Options, pub Publisher) *Controller {
	c := &Controller{
		timers: timers,
		opts:   opts,
		pub:    pub,
		logger: logging.GetLogger("indicator"),
	}
	c.leds = core.NewLEDs(&observedRegister{Register: reg, ctrl: c})
	timers.OnTick = func(name core.TimerName) {
		c.publish(events.TimerTickEvent{Timer: string(name)})
	}
	return c
}

// Options returns the current switches.
func (c *Controller) Options() Options {
	return c.opts
}

// SetOptions replaces the switches. A running demo keeps its step interval
// until it is restarted.
func (c *Controller) SetOptions(opts Options) {
	c.opts = opts
}

// Blink starts toggling color every intervalMs milliseconds. The first
// toggle happens immediately.
func (c *Controller) Blink(color core.Color, intervalMs int) error {
	return c.finish("blink", color.String()+" "+strconv.Itoa(intervalMs), c.blink(color, intervalMs))
}

// Shine turns color on steadily and stops blinking.
func (c *Controller) Shine(color core.Color) error {
	return c.finish("shine", color.String(), c.shine(color))
}

// Off turns color off and stops blinking.
func (c *Controller) Off(color core.Color) error {
	return c.finish("off", color.String(), c.off(color))
}

// Cancel stops both timers, ends any demo and turns every LED off.
func (c *Controller) Cancel() error {
	return c.finish("cancel", "", c.cancel(demoCancelled))
}

// Demo starts the scripted sequence and runs its first step at once.
func (c *Controller) Demo() error {
	return c.finish("demo", "", c.startDemo())
}

func (c *Controller) blink(color core.Color, intervalMs int) error {
	if err := validColor(color); err != nil {
		return err
	}
	if intervalMs <= MinBlinkInterval || intervalMs >= MaxBlinkInterval {
		return &RangeError{Max: MaxBlinkInterval, Min: MinBlinkInterval, Value: intervalMs}
	}

	c.noteCommand()
	c.cause = "blink"
	if c.opts.ClearAllBeforeSwitch {
		if err := c.leds.AllOff(); err != nil {
			return err
		}
	}
	c.active = color
	if err := c.timers.Start(core.BlinkTimer, time.Duration(intervalMs)*time.Millisecond, c.blinkTick); err != nil {
		return err
	}
	return c.leds.Toggle(color)
}

func (c *Controller) blinkTick() {
	c.cause = "blink_tick"
	if err := c.leds.Toggle(c.active); err != nil {
		c.logger.Error("Blink tick failed, stopping blink", "color", c.active.String(), "error", err)
		_ = c.timers.Stop(core.BlinkTimer)
	}
}

func (c *Controller) shine(color core.Color) error {
	if err := validColor(color); err != nil {
		return err
	}

	c.noteCommand()
	c.cause = "shine"
	if err := c.timers.Stop(core.BlinkTimer); err != nil {
		return err
	}
	if c.opts.ClearAllBeforeSwitch {
		if err := c.leds.AllOff(); err != nil {
			return err
		}
	}
	return c.leds.TurnOn(color)
}

func (c *Controller) off(color core.Color) error {
	if err := validColor(color); err != nil {
		return err
	}

	c.cause = "off"
	if err := c.timers.Stop(core.BlinkTimer); err != nil {
		return err
	}
	if c.opts.ClearAllBeforeSwitch {
		if err := c.leds.AllOff(); err != nil {
			return err
		}
	}
	return c.leds.TurnOff(color)
}

func (c *Controller) cancel(reason string) error {
	c.cause = "cancel"
	c.timers.StopAll()
	c.endDemo(reason)
	return c.leds.AllOff()
}

func (c *Controller) startDemo() error {
	if c.demo != nil {
		c.endDemo(demoRestarted)
	}
	if err := c.timers.Start(core.DemoTimer, c.opts.demoStep(), c.demoTick); err != nil {
		return err
	}
	c.demo = &demoSession{}

	step := DemoScript[0]
	c.publish(eventDemoStep(0, step))
	if err := c.runStep(step); err != nil {
		c.endDemo(demoFailed)
		return err
	}
	return nil
}

// noteCommand bumps the demo command counter. It counts whether or not
// interference is tracked, so the switch can be turned on mid-demo.
func (c *Controller) noteCommand() {
	if c.demo != nil {
		c.demo.counter++
	}
}

// State reports the current mode and the color the blink timer toggles.
func (c *Controller) State() (State, core.Color) {
	switch {
	case c.demo != nil:
		return Demoing, c.active
	case c.timers.Running(core.BlinkTimer):
		return Blinking, c.active
	default:
		return Idle, c.active
	}
}

// Status is a snapshot for display.
type Status struct {
	State         State
	Color         core.Color
	BlinkInterval time.Duration
	DemoStep      int // -1 when no demo is running
	Register      byte
}

// Status reads the register and reports the mode.
func (c *Controller) Status() (Status, error) {
	st := Status{DemoStep: -1}
	st.State, st.Color = c.State()
	st.BlinkInterval, _ = c.timers.Interval(core.BlinkTimer)
	if c.demo != nil {
		st.DemoStep = c.demo.cursor
	}
	reg, err := c.leds.State()
	if err != nil {
		return st, err
	}
	st.Register = reg
	return st, nil
}

func (c *Controller) finish(cmd, args string, err error) error {
	ev := events.CommandExecutedEvent{Command: cmd, Args: args, Result: resultOK}
	switch {
	case err == nil:
	case errors.Is(err, core.ErrInvalidArgument):
		ev.Result, ev.Error = resultInvalid, err.Error()
	default:
		ev.Result, ev.Error = resultHardware, err.Error()
		c.logger.Debug("Command failed", "command", cmd, "error", err)
	}
	c.publish(ev)
	return err
}

const (
	resultOK       = "ok"
	resultInvalid  = "invalid"
	resultHardware = "hardware_error"
)

func (c *Controller) publish(ev events.Event) {
	if c.pub != nil {
		c.pub.Publish(ev)
	}
}

func validColor(color core.Color) error {
	if !color.Valid() {
		return fmt.Errorf("%w: color %d", core.ErrInvalidArgument, uint8(color))
	}
	return nil
}

// RangeError reports a blink interval outside (Min, Max).
type RangeError struct {
	Max, Min, Value int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("parameter out of range (%d/%d): %d", e.Max, e.Min, e.Value)
}

func (e *RangeError) Is(target error) bool {
	return target == core.ErrInvalidArgument
}

// observedRegister publishes every successful write.
type observedRegister struct {
	core.Register
	ctrl *Controller
}

func (r *observedRegister) WriteRegister(v byte) error {
	if err := r.Register.WriteRegister(v); err != nil {
		return err
	}
	r.ctrl.publish(events.LEDChangedEvent{Register: v, Cause: r.ctrl.cause})
	return nil
}

func eventDemoStep(i int, s Step) events.DemoStepEvent {
	return events.DemoStepEvent{Step: i, Command: s.String()}
}

func eventDemoEnded(reason string, step int) events.DemoEndedEvent {
	return events.DemoEndedEvent{Reason: reason, Step: step}
}
