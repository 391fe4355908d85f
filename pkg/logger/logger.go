package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup returns a text logger on stderr. Stdout belongs to the tunnel.
func Setup(debug bool) *slog.Logger {
	return New(os.Stderr, debug)
}

func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
