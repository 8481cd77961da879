package cli

import (
	"io"
	"log/slog"

	"github.com/ubuntu/crash-insights/internal/constants"
)

// SetSlog replaces the default logger with one writing to w, as text or as JSON.
// Verbosity is the count of the verbose flag.
func SetSlog(w io.Writer, verbosity int, jsonLogs bool) {
	opts := &slog.HandlerOptions{Level: Level(verbosity)}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if jsonLogs {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// Level returns the logging level of a verbose flag count.
func Level(verbosity int) slog.Level {
	switch verbosity {
	case 0:
		return constants.DefaultLogLevel
	case 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
