package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"ledtools/bus"
	"ledtools/core"
	"ledtools/indicator"
	"ledtools/logging"
)

// syncBuffer is a bytes.Buffer safe for the logger and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	b.buf.Reset()
	b.mu.Unlock()
}

var logs = &syncBuffer{}

func init() {
	logging.SetOutput(logs)
	logging.Initialize(logging.Config{Level: "info", Format: "text"})
}

type call struct {
	name     string
	color    core.Color
	interval int
}

type fakeIndicator struct {
	calls []call
	err   error
}

func (f *fakeIndicator) Blink(_ context.Context, c core.Color, ms int) error {
	f.calls = append(f.calls, call{"blink", c, ms})
	return f.err
}

func (f *fakeIndicator) Shine(_ context.Context, c core.Color) error {
	f.calls = append(f.calls, call{name: "shine", color: c})
	return f.err
}

func (f *fakeIndicator) Off(_ context.Context, c core.Color) error {
	f.calls = append(f.calls, call{name: "off", color: c})
	return f.err
}

func (f *fakeIndicator) Cancel(context.Context) error {
	f.calls = append(f.calls, call{name: "cancel"})
	return f.err
}

func (f *fakeIndicator) Demo(context.Context) error {
	f.calls = append(f.calls, call{name: "demo"})
	return f.err
}

func (f *fakeIndicator) Status(context.Context) (indicator.Status, error) {
	f.calls = append(f.calls, call{name: "status"})
	return indicator.Status{
		State:         indicator.Blinking,
		Color:         core.Red,
		BlinkInterval: 500 * time.Millisecond,
		DemoStep:      -1,
		Register:      0b11111011,
	}, f.err
}

func newTestRegistry(t *testing.T) (*Registry, *fakeIndicator, *bytes.Buffer) {
	t.Helper()
	reg := NewRegistry()
	ind := &fakeIndicator{}
	out := &bytes.Buffer{}
	if err := RegisterLEDCommands(reg, ind, out); err != nil {
		t.Fatal(err)
	}
	return reg, ind, out
}

func TestDispatchLEDCommands(t *testing.T) {
	tests := []struct {
		line string
		want call
	}{
		{"blink red 500", call{"blink", core.Red, 500}},
		{"blink green 1", call{"blink", core.Green, 1}},
		{"blink blue 9999", call{"blink", core.Blue, 9999}},
		{"  shine   'green' ", call{name: "shine", color: core.Green}},
		{"off blue", call{name: "off", color: core.Blue}},
		{"cancel", call{name: "cancel"}},
		{"demo", call{name: "demo"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			reg, ind, _ := newTestRegistry(t)
			if err := reg.Dispatch(context.Background(), tt.line); err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			if len(ind.calls) != 1 || ind.calls[0] != tt.want {
				t.Errorf("calls = %+v, want %+v", ind.calls, tt.want)
			}
		})
	}
}

func TestDispatchRejects(t *testing.T) {
	tests := []struct {
		line string
		log  string
	}{
		{"blink purple 500", "Invalid color input: purple"},
		{"blink Red 500", "Invalid color input: Red"},
		{"blink", "Invalid color input: "},
		{"blink red", "Parameter out of range (10000/0): 0"},
		{"blink red 0", "Parameter out of range (10000/0): 0"},
		{"blink red 10000", "Parameter out of range (10000/0): 10000"},
		{"blink red -3", "Parameter out of range (10000/0): -3"},
		{"blink red fast", `blink: invalid interval \"fast\"`},
		{"blink red 500 extra", "blink: too many arguments"},
		{"shine", "Invalid color input: "},
		{"shine RED", "Invalid color input: RED"},
		{"off yellow", "Invalid color input: yellow"},
		{"cancel now", "No argument allowed"},
		{"demo 1", "No argument allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			reg, ind, _ := newTestRegistry(t)
			logs.Reset()

			err := reg.Dispatch(context.Background(), tt.line)
			if !errors.Is(err, core.ErrInvalidArgument) {
				t.Errorf("Dispatch = %v, want ErrInvalidArgument", err)
			}
			if len(ind.calls) != 0 {
				t.Errorf("indicator called: %+v", ind.calls)
			}
			if got := logs.String(); !strings.Contains(got, tt.log) {
				t.Errorf("log %q does not contain %q", got, tt.log)
			}
		})
	}
}

func TestDispatchHardwareFailure(t *testing.T) {
	reg, ind, _ := newTestRegistry(t)
	ind.err = &core.BusError{Op: "write", Addr: core.DefaultAddress, Err: core.ErrTimeout}
	logs.Reset()

	for _, line := range []string{"shine red", "cancel", "demo", "blink green 100", "off red"} {
		err := reg.Dispatch(context.Background(), line)
		if !core.IsHardware(err) {
			t.Errorf("%q = %v, want a hardware error", line, err)
		}
		name := strings.Fields(line)[0]
		if !strings.Contains(logs.String(), "Fail to execute "+name+" command") {
			t.Errorf("no failure log for %s: %s", name, logs.String())
		}
	}
}

func TestDispatchUnknownAndSyntax(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	if err := reg.Dispatch(context.Background(), "flash red"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown command = %v", err)
	}
	if err := reg.Dispatch(context.Background(), `shine "red`); !errors.Is(err, ErrSyntax) {
		t.Errorf("unterminated quote = %v", err)
	}
	if err := reg.Dispatch(context.Background(), "   "); err != nil {
		t.Errorf("blank line = %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if err := reg.Register("blink", "", "", nil); err == nil {
		t.Error("duplicate registration accepted")
	}
}

func TestStatusOutput(t *testing.T) {
	reg, _, out := newTestRegistry(t)
	if err := reg.Dispatch(context.Background(), "status"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"state:    blinking", "red every 500ms", "register: 0b11111011", "red   on", "green off"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status output missing %q:\n%s", want, out.String())
		}
	}
}

func TestConsoleRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg, ind, out := newTestRegistry(t)
	in := strings.NewReader("help\nshine red\n\nbogus\noff red\nquit\nshine blue\n")
	con, err := New(reg, in, out)
	if err != nil {
		t.Fatal(err)
	}
	defer con.Close()

	if err := con.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(ind.calls) != 2 || ind.calls[0].name != "shine" || ind.calls[1].name != "off" {
		t.Errorf("calls = %+v", ind.calls)
	}
	text := out.String()
	for _, want := range []string{"blink  <color> [<interval_ms>]", "run demo for blink, shine and off", "unrecognized command: bogus", DefaultPrompt} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestConsoleRunEOF(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg, ind, out := newTestRegistry(t)
	con, _ := New(reg, strings.NewReader("demo"), out)
	defer con.Close()
	if err := con.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ind.calls) != 1 || ind.calls[0].name != "demo" {
		t.Errorf("calls = %+v", ind.calls)
	}
}

func TestConsoleRunAgainAfterQuit(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg, ind, out := newTestRegistry(t)
	pr, pw := io.Pipe()
	con, _ := New(reg, pr, out)
	defer con.Close()

	written := make(chan error, 1)
	go func() {
		_, err := io.WriteString(pw, "quit\nshine red\nquit\noff red\n")
		pw.Close()
		written <- err
	}()

	for i := range 2 {
		if err := con.Run(context.Background()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		if i == 0 && len(ind.calls) != 0 {
			t.Fatalf("calls after first quit = %+v", ind.calls)
		}
	}
	if len(ind.calls) != 1 || ind.calls[0].name != "shine" {
		t.Fatalf("calls = %+v, want only shine", ind.calls)
	}

	if err := con.Run(context.Background()); err != nil {
		t.Fatalf("final Run: %v", err)
	}
	if len(ind.calls) != 2 || ind.calls[1].name != "off" {
		t.Errorf("calls = %+v, want shine then off", ind.calls)
	}
	if err := <-written; err != nil {
		t.Errorf("write: %v", err)
	}
}

func TestConsoleRunCancelKeepsLine(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg, ind, out := newTestRegistry(t)
	pr, pw := io.Pipe()
	con, _ := New(reg, pr, out)
	defer con.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := con.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run with cancelled ctx = %v", err)
	}

	go func() {
		io.WriteString(pw, "demo\n")
		pw.Close()
	}()
	if err := con.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ind.calls) != 1 || ind.calls[0].name != "demo" {
		t.Errorf("calls = %+v", ind.calls)
	}
}

// End to end: console text through the service and loop down to the
// simulated register.
func TestConsoleDrivesSimulator(t *testing.T) {
	defer goleak.VerifyNone(t)

	sim := bus.NewSim(core.DefaultAddress)
	timers := core.NewTimers(nil)
	loop := core.NewLoop(timers)
	ctrl := indicator.New(core.NewExpander(sim), timers, indicator.DefaultOptions(), nil)
	svc := indicator.NewService(loop, ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()
	defer func() {
		cancel()
		<-errc
	}()

	reg := NewRegistry()
	if err := RegisterLEDCommands(reg, svc, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		line string
		low  byte
	}{
		{"shine red", 0b011},
		{"shine blue", 0b101},
		{"off blue", 0b111},
		{"shine green", 0b110},
		{"cancel", 0b111},
	}
	for _, s := range steps {
		if err := reg.Dispatch(ctx, s.line); err != nil {
			t.Fatalf("%q: %v", s.line, err)
		}
		if got := sim.Register() & core.AllOffMask; got != s.low {
			t.Errorf("after %q register = %03b, want %03b", s.line, got, s.low)
		}
	}
}
