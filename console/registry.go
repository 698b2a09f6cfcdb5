// Package console turns text lines into indicator commands.
package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/shlex"
)

var (
	// ErrUnknownCommand is returned by Dispatch for a name nobody registered.
	ErrUnknownCommand = errors.New("unrecognized command")

	// ErrSyntax is returned by Dispatch for a line that cannot be split,
	// such as one with an unterminated quote.
	ErrSyntax = errors.New("syntax error")
)

// Handler runs one command. args excludes the command name.
type Handler func(ctx context.Context, args []string) error

// Command is a registered console command.
type Command struct {
	Name    string
	Usage   string // argument synopsis, e.g. "<color> [<interval_ms>]"
	Help    string
	Handler Handler
}

// Registry holds the console commands by name.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
	}
}

// Register adds a command. Names must be unique.
func (r *Registry) Register(name, usage, help string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	r.commands[name] = &Command{
		Name:    name,
		Usage:   usage,
		Help:    help,
		Handler: handler,
	}
	return nil
}

// Lookup returns the command called name.
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Commands returns every command sorted by name.
func (r *Registry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Dispatch splits line shell-style and runs the named command. A blank
// line is a no-op.
func (r *Registry) Dispatch(ctx context.Context, line string) error {
	fields, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if len(fields) == 0 {
		return nil
	}

	cmd, ok := r.Lookup(fields[0])
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
	return cmd.Handler(ctx, fields[1:])
}
