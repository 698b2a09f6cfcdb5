package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// DefaultPrompt is printed before every line.
const DefaultPrompt = "led> "

// Console is a line oriented REPL over a Registry. One reader goroutine
// serves every Run call, so input typed after "quit" is kept for the next
// Run.
type Console struct {
	reg    *Registry
	in     io.Reader
	out    io.Writer
	prompt string

	start   sync.Once
	stop    sync.Once
	reqs    chan struct{}
	results chan lineResult
	done    chan struct{}
	pending bool
	eof     bool
	readErr error
}

type lineResult struct {
	line string
	err  error
	eof  bool
}

// New creates a console reading from in and writing replies to out. It
// registers help on reg.
func New(reg *Registry, in io.Reader, out io.Writer) (*Console, error) {
	c := &Console{
		reg:     reg,
		in:      in,
		out:     out,
		prompt:  DefaultPrompt,
		reqs:    make(chan struct{}, 1),
		results: make(chan lineResult, 1),
		done:    make(chan struct{}),
	}
	if err := reg.Register("help", "", "list all commands", c.help); err != nil {
		return nil, err
	}
	return c, nil
}

// SetPrompt replaces DefaultPrompt.
func (c *Console) SetPrompt(p string) {
	c.prompt = p
}

// Close stops the reader goroutine. A read already blocked on the input
// finishes first.
func (c *Console) Close() error {
	c.stop.Do(func() { close(c.done) })
	return nil
}

// readLoop scans one line per request, so nothing is read ahead of the
// prompt.
func (c *Console) readLoop() {
	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-c.reqs:
		case <-c.done:
			return
		}
		if scanner.Scan() {
			c.results <- lineResult{line: scanner.Text()}
			continue
		}
		c.results <- lineResult{err: scanner.Err(), eof: true}
		return
	}
}

// readLine waits for the next input line. A line still pending when ctx
// ends is returned by the next call.
func (c *Console) readLine(ctx context.Context) (lineResult, error) {
	if c.eof {
		return lineResult{err: c.readErr, eof: true}, nil
	}
	c.start.Do(func() { go c.readLoop() })
	if !c.pending {
		c.reqs <- struct{}{}
		c.pending = true
	}
	select {
	case <-ctx.Done():
		return lineResult{}, ctx.Err()
	case res := <-c.results:
		c.pending = false
		if res.eof {
			c.eof, c.readErr = true, res.err
		}
		return res, nil
	}
}

// Run reads and dispatches lines until EOF, "quit"/"exit" or ctx is done.
// Failed commands are reported and the loop continues. Run may be called
// again after it returns.
func (c *Console) Run(ctx context.Context) error {
	for {
		fmt.Fprint(c.out, c.prompt)

		res, err := c.readLine(ctx)
		if err != nil {
			fmt.Fprintln(c.out)
			return err
		}
		if res.eof {
			fmt.Fprintln(c.out)
			return res.err
		}

		switch line := strings.TrimSpace(res.line); line {
		case "":
			continue
		case "quit", "exit":
			return nil
		default:
			c.Exec(ctx, line)
		}
	}
}

// Exec runs one line and reports syntax problems and unknown commands on
// the output. Command failures are logged by the commands themselves.
func (c *Console) Exec(ctx context.Context, line string) error {
	err := c.reg.Dispatch(ctx, line)
	if err != nil && !isCommandFailure(err) {
		fmt.Fprintf(c.out, "%v\n", err)
	}
	return err
}

func isCommandFailure(err error) bool {
	return !errors.Is(err, ErrUnknownCommand) && !errors.Is(err, ErrSyntax)
}

func (c *Console) help(_ context.Context, args []string) error {
	if err := noArgs(args); err != nil {
		fmt.Fprintln(c.out, err)
		return err
	}
	for _, cmd := range c.reg.Commands() {
		synopsis := cmd.Name
		if cmd.Usage != "" {
			synopsis += "  " + cmd.Usage
		}
		fmt.Fprintf(c.out, "%s\n  %s\n\n", synopsis, cmd.Help)
	}
	fmt.Fprintf(c.out, "quit\n  leave the console\n\n")
	return nil
}
