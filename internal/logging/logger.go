package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a JSON slog logger on stdout for the gateway. An invalid level
// string falls back to info.
func New(level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler)
}

// NewText creates a human-readable logger for the CLI. Terminal tools keep
// stdout for their own output, so callers usually pass os.Stderr.
func NewText(level string, w io.Writer) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler)
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

func parseLevel(level string) *slog.LevelVar {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}
	return lvl
}
