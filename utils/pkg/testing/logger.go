package bountytesting

import (
	"log/slog"
	"os"
)

// NewLogger returns a test logger. DEBUG=2 shows debug records, DEBUG=1 info; otherwise only
// errors are printed.
func NewLogger() *slog.Logger {
	var level slog.Level
	switch os.Getenv("DEBUG") {
	case "2":
		level = slog.LevelDebug
	case "1":
		level = slog.LevelInfo
	default:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
