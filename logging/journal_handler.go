//go:build !tinygo

package logging

import (
	"context"
	"log/slog"
	"maps"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

const syslogIdentifier = "ledtools"

// journalSink sends records to the systemd journal as structured fields.
// Attributes bound with WithAttrs are flattened once, when bound.
type journalSink struct {
	level  slog.Leveler
	fields map[string]string
	prefix string
}

func journalHandler(level slog.Leveler) (slog.Handler, bool) {
	if !journal.Enabled() {
		return nil, false
	}
	return &journalSink{level: level, fields: map[string]string{}}, true
}

func (h *journalSink) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *journalSink) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]string, len(h.fields)+8)
	maps.Copy(fields, h.fields)
	fields["SYSLOG_IDENTIFIER"] = syslogIdentifier
	r.Attrs(func(a slog.Attr) bool {
		flatten(fields, h.prefix, a)
		return true
	})
	return journal.Send(r.Message, priority(r.Level), fields)
}

func (h *journalSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make(map[string]string, len(h.fields)+len(attrs))
	maps.Copy(fields, h.fields)
	for _, a := range attrs {
		flatten(fields, h.prefix, a)
	}
	return &journalSink{level: h.level, fields: fields, prefix: h.prefix}
}

func (h *journalSink) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &journalSink{level: h.level, fields: h.fields, prefix: h.prefix + name + "_"}
}

func priority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	}
	return journal.PriDebug
}

// flatten stores a under prefix+key. Groups nest with "_" between names.
func flatten(fields map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "_"
		}
		for _, ga := range a.Value.Group() {
			flatten(fields, prefix, ga)
		}
		return
	}
	fields[fieldName(prefix+a.Key)] = a.Value.String()
}

// fieldName maps a key onto the journal's field alphabet: upper case
// letters, digits and underscores, not starting with an underscore.
func fieldName(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, key)
	return strings.TrimLeft(name, "_")
}
