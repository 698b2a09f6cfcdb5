package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler writes each record to the console handler and mirrors it to
// the journal. Each side filters by its own level.
type teeHandler struct {
	console slog.Handler
	journal slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.console.Enabled(ctx, level) || t.journal.Enabled(ctx, level)
}

// Handle reports the errors of both sides; one failing does not keep the
// record from the other.
func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errConsole, errJournal error
	if t.console.Enabled(ctx, r.Level) {
		errConsole = t.console.Handle(ctx, r.Clone())
	}
	if t.journal.Enabled(ctx, r.Level) {
		errJournal = t.journal.Handle(ctx, r)
	}
	return errors.Join(errConsole, errJournal)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{console: t.console.WithAttrs(attrs), journal: t.journal.WithAttrs(attrs)}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{console: t.console.WithGroup(name), journal: t.journal.WithGroup(name)}
}
