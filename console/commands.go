package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"ledtools/core"
	"ledtools/indicator"
	"ledtools/logging"
)

// Indicator is the command surface the LED commands drive.
// *indicator.Service implements it.
type Indicator interface {
	Blink(ctx context.Context, color core.Color, intervalMs int) error
	Shine(ctx context.Context, color core.Color) error
	Off(ctx context.Context, color core.Color) error
	Cancel(ctx context.Context) error
	Demo(ctx context.Context) error
	Status(ctx context.Context) (indicator.Status, error)
}

const colorUsage = "<color>"

// RegisterLEDCommands adds blink, shine, off, cancel, demo and status.
// status writes its report to out.
func RegisterLEDCommands(r *Registry, ind Indicator, out io.Writer) error {
	l := &ledCommands{ind: ind, out: out, logger: logging.GetLogger("console")}

	cmds := []Command{
		{"blink", colorUsage + " [<interval_ms>]", "blink red/green/blue LED, interval in ms", l.blink},
		{"shine", colorUsage, "shine red/green/blue LED", l.shine},
		{"off", colorUsage, "turn off red/green/blue LED", l.off},
		{"cancel", "", "set all LEDs off", l.cancel},
		{"demo", "", "run demo for blink, shine and off", l.demo},
		{"status", "", "show the indicator state and output register", l.status},
	}
	for _, c := range cmds {
		if err := r.Register(c.Name, c.Usage, c.Help, c.Handler); err != nil {
			return err
		}
	}
	return nil
}

type ledCommands struct {
	ind    Indicator
	out    io.Writer
	logger logging.Logger
}

func (l *ledCommands) blink(ctx context.Context, args []string) error {
	if err := maxArgs("blink", args, 2); err != nil {
		return l.reject(err)
	}
	color, err := l.color(args)
	if err != nil {
		return err
	}

	interval := 0
	if len(args) > 1 {
		interval, err = strconv.Atoi(args[1])
		if err != nil {
			return l.reject(usageError(fmt.Sprintf("blink: invalid interval %q", args[1])))
		}
	}
	if interval <= indicator.MinBlinkInterval || interval >= indicator.MaxBlinkInterval {
		rerr := &indicator.RangeError{Max: indicator.MaxBlinkInterval, Min: indicator.MinBlinkInterval, Value: interval}
		l.logger.Error(fmt.Sprintf("Parameter out of range (%d/%d): %d", rerr.Max, rerr.Min, rerr.Value))
		return rerr
	}

	return l.run("blink", l.ind.Blink(ctx, color, interval))
}

func (l *ledCommands) shine(ctx context.Context, args []string) error {
	if err := maxArgs("shine", args, 1); err != nil {
		return l.reject(err)
	}
	color, err := l.color(args)
	if err != nil {
		return err
	}
	return l.run("shine", l.ind.Shine(ctx, color))
}

func (l *ledCommands) off(ctx context.Context, args []string) error {
	if err := maxArgs("off", args, 1); err != nil {
		return l.reject(err)
	}
	color, err := l.color(args)
	if err != nil {
		return err
	}
	return l.run("off", l.ind.Off(ctx, color))
}

func (l *ledCommands) cancel(ctx context.Context, args []string) error {
	if err := noArgs(args); err != nil {
		return l.reject(err)
	}
	return l.run("cancel", l.ind.Cancel(ctx))
}

func (l *ledCommands) demo(ctx context.Context, args []string) error {
	if err := noArgs(args); err != nil {
		return l.reject(err)
	}
	return l.run("demo", l.ind.Demo(ctx))
}

func (l *ledCommands) status(ctx context.Context, args []string) error {
	if err := noArgs(args); err != nil {
		return l.reject(err)
	}
	st, err := l.ind.Status(ctx)
	if err != nil {
		return l.run("status", err)
	}

	fmt.Fprintf(l.out, "state:    %s\n", st.State)
	if st.State == indicator.Blinking {
		fmt.Fprintf(l.out, "blinking: %s every %v\n", st.Color, st.BlinkInterval)
	}
	if st.DemoStep >= 0 {
		fmt.Fprintf(l.out, "demo:     step %d/%d (%s)\n", st.DemoStep+1, len(indicator.DemoScript), indicator.DemoScript[st.DemoStep])
	}
	fmt.Fprintf(l.out, "register: 0b%08b\n", st.Register)
	for _, c := range core.Colors {
		state := "off"
		if st.Register&c.Mask() == 0 {
			state = "on"
		}
		fmt.Fprintf(l.out, "  %-5s %s\n", c, state)
	}
	return nil
}

// color parses the first argument. A missing color is reported as an
// empty one.
func (l *ledCommands) color(args []string) (core.Color, error) {
	s := ""
	if len(args) > 0 {
		s = args[0]
	}
	c, err := core.ParseColor(s)
	if err != nil {
		l.logger.Error("Invalid color input: " + s)
		return 0, err
	}
	return c, nil
}

func (l *ledCommands) reject(err error) error {
	l.logger.Error(err.Error())
	return err
}

// run logs a failed command. Validation errors were already reported.
func (l *ledCommands) run(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrInvalidArgument) {
		l.logger.Error("Invalid argument", "command", name, "error", err)
	} else {
		l.logger.Error(fmt.Sprintf("Fail to execute %s command", name), "error", err)
	}
	return err
}

// usageError is a malformed command line. It matches
// core.ErrInvalidArgument.
type usageError string

func (e usageError) Error() string { return string(e) }

func (e usageError) Is(target error) bool { return target == core.ErrInvalidArgument }

func noArgs(args []string) error {
	if len(args) > 0 {
		return usageError("No argument allowed")
	}
	return nil
}

func maxArgs(name string, args []string, n int) error {
	if len(args) > n {
		return usageError(name + ": too many arguments")
	}
	return nil
}
