package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
}

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New builds a Logger for the given level and output format.
// "json" writes slog JSON records to stdout, "console" writes human
// readable zerolog lines to stderr.
func New(level, format string) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return NewSlogLogger(lvl), nil
	case FormatConsole:
		return NewConsoleLogger(os.Stderr, lvl), nil
	default:
		return nil, fmt.Errorf("unknown log format: %q", format)
	}
}

func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", level)
	}
}

type SlogLogger struct {
	log *slog.Logger
}

func NewSlogLogger(level slog.Level) Logger {
	return newSlogLogger(os.Stdout, level)
}

func newSlogLogger(w io.Writer, level slog.Level) *SlogLogger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.TimeValue(a.Value.Time().UTC())
			}
			return a
		},
	}
	sl := slog.New(slog.NewJSONHandler(w, opts))
	return &SlogLogger{log: sl}
}

func (sl *SlogLogger) Debug(msg string, args ...any) {
	sl.log.Debug(msg, args...)
}

func (sl *SlogLogger) Info(msg string, args ...any) {
	sl.log.Info(msg, args...)
}

func (sl *SlogLogger) Warn(msg string, args ...any) {
	sl.log.Warn(msg, args...)
}

func (sl *SlogLogger) Error(msg string, args ...any) {
	sl.log.Error(msg, args...)
}

func (sl *SlogLogger) Fatal(msg string, args ...any) {
	sl.log.Error(msg, args...)
	os.Exit(1)
}
