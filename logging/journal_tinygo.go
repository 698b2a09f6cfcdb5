//go:build tinygo

package logging

import "log/slog"

// There is no journal on a microcontroller.
func journalHandler(slog.Leveler) (slog.Handler, bool) {
	return nil, false
}
