// Package observability configures the debug logger. Frames own stdout, so
// structured logs go to a file (or nowhere by default).
package observability

import (
	"io"
	"log/slog"
	"os"
)

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FileLogger opens path for appending and returns a JSON logger writing to
// it, plus the close func.
func FileLogger(path string) (*slog.Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, f.Close, nil
}
