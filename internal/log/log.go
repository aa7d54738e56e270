// Package log configures structured logging for gatewarden using log/slog.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup configures the process-default logger from the CLI verbosity
// flags: quiet keeps warnings and errors only, verbose opens debug,
// the default is info. Output is a text handler on stderr so command
// output on stdout stays machine-readable.
func Setup(verbose, quiet bool) {
	level := slog.LevelInfo
	switch {
	case quiet:
		level = slog.LevelWarn
	case verbose:
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// SetupService configures the default logger for long-running server
// mode from configuration strings: level is one of debug, info, warn,
// error; format is text or json. Unknown values fall back to info/text.
func SetupService(level, format string) {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lv}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
