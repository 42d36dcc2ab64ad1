// Package logging builds the process-wide zerolog.Logger: JSON when output
// is redirected, a colorized console writer when attached to a terminal.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Config controls how New builds a logger.
type Config struct {
	// Format is "json", "console", or "auto" (console on a TTY, json otherwise).
	// Empty defaults to "auto".
	Format string
	// Level is a zerolog level name. Empty or unrecognized defaults to info.
	Level string
	// Component, if set, is attached to every log line as a "component" field.
	Component string
}

var isTerminalFn = term.IsTerminal

// New builds a zerolog.Logger per cfg, writing to os.Stdout.
func New(cfg Config) zerolog.Logger {
	logger := zerolog.New(selectWriter(cfg.Format)).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	if cfg.Component != "" {
		logger = logger.With().Str("component", cfg.Component).Logger()
	}
	return logger
}

func selectWriter(format string) io.Writer {
	switch strings.ToLower(format) {
	case "json":
		return os.Stdout
	case "console":
		return consoleWriter()
	default:
		if isTerminalFn(int(os.Stdout.Fd())) {
			return consoleWriter()
		}
		return os.Stdout
	}
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
