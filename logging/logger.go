// Package logging provides module scoped slog loggers whose levels can be
// changed while the program runs.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger is the subset of *slog.Logger the rest of the program logs through.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the global level, the output format ("text" or "json") and
// per-module level overrides.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type moduleLogger struct {
	logger *slog.Logger
	level  slog.LevelVar
}

// registry is the process wide logging state. Handlers keep a pointer to
// their LevelVar, so level changes never rebuild a logger.
type registry struct {
	mu         sync.RWMutex
	cfg        Config
	configured bool
	out        io.Writer
	global     slog.LevelVar
	modules    map[string]*moduleLogger
}

var std = &registry{out: os.Stdout, modules: make(map[string]*moduleLogger)}

// Initialize applies cfg. Loggers handed out earlier keep their pointers
// and pick up the new format and levels.
func Initialize(cfg Config) {
	std.mu.Lock()
	defer std.mu.Unlock()

	std.cfg = cfg
	std.configured = true
	std.global.Set(std.baseLevel())
	for name, m := range std.modules {
		m.level.Set(std.levelFor(name))
		*m.logger = *std.newLogger(name, &m.level)
	}
	slog.SetDefault(slog.New(std.handler(&std.global)))
}

// SetOutput redirects the text or JSON handler. It applies to handlers
// created afterwards, so call it before Initialize.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.out = w
}

// SetLevels replaces the global and per-module levels in place.
func SetLevels(level string, modules map[string]string) {
	std.mu.Lock()
	defer std.mu.Unlock()

	std.cfg.Level = level
	std.cfg.Modules = modules
	std.global.Set(std.baseLevel())
	for name, m := range std.modules {
		m.level.Set(std.levelFor(name))
	}
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	std.mu.RLock()
	m, ok := std.modules[module]
	std.mu.RUnlock()
	if ok {
		return m.logger
	}

	std.mu.Lock()
	defer std.mu.Unlock()
	if m, ok := std.modules[module]; ok {
		return m.logger
	}
	m = &moduleLogger{}
	m.level.Set(std.levelFor(module))
	m.logger = std.newLogger(module, &m.level)
	std.modules[module] = m
	return m.logger
}

// The methods below expect r.mu to be held.

func (r *registry) baseLevel() slog.Level {
	if l, ok := parseLevel(r.cfg.Level); ok {
		return l
	}
	return slog.LevelInfo
}

func (r *registry) levelFor(module string) slog.Level {
	base := r.baseLevel()
	if s, ok := r.cfg.Modules[module]; ok {
		if l, ok := parseLevel(s); ok {
			return l
		}
	}
	return base
}

func (r *registry) newLogger(module string, level slog.Leveler) *slog.Logger {
	return slog.New(r.handler(level)).With("module", module)
}

// handler writes to the configured output and, when that output is stdout
// and the journal is reachable, to the journal too.
func (r *registry) handler(level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var console slog.Handler = slog.NewTextHandler(r.out, opts)
	if r.configured && r.cfg.Format == "json" {
		console = slog.NewJSONHandler(r.out, opts)
	}

	if r.out != os.Stdout {
		return console
	}
	journal, ok := journalHandler(level)
	switch {
	case !ok:
		return console
	case !stdoutAttached():
		return journal
	}
	return &teeHandler{console: console, journal: journal}
}

// stdoutAttached reports whether stdout is a terminal, pipe, socket or file.
func stdoutAttached() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || fi.Mode().IsRegular()
}

// parseLevel accepts slog level names in any case, "warning", and slog
// offsets such as "info+2".
func parseLevel(s string) (slog.Level, bool) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		s = "warn"
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, false
	}
	return l, true
}
