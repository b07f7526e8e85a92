package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that discards all output.
// Equivalent to log.NewNop but avoids the import for packages that
// only need a *slog.Logger.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
