package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ConsoleLogger writes colourised, human readable lines. Meant for local runs.
type ConsoleLogger struct {
	log zerolog.Logger
}

func NewConsoleLogger(w io.Writer, level slog.Level) Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	zl := zerolog.New(out).Level(zerologLevel(level)).With().Timestamp().Logger()
	return &ConsoleLogger{log: zl}
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level <= slog.LevelDebug:
		return zerolog.DebugLevel
	case level <= slog.LevelInfo:
		return zerolog.InfoLevel
	case level <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (cl *ConsoleLogger) Debug(msg string, args ...any) {
	withFields(cl.log.Debug(), args).Msg(msg)
}

func (cl *ConsoleLogger) Info(msg string, args ...any) {
	withFields(cl.log.Info(), args).Msg(msg)
}

func (cl *ConsoleLogger) Warn(msg string, args ...any) {
	withFields(cl.log.Warn(), args).Msg(msg)
}

func (cl *ConsoleLogger) Error(msg string, args ...any) {
	withFields(cl.log.Error(), args).Msg(msg)
}

func (cl *ConsoleLogger) Fatal(msg string, args ...any) {
	withFields(cl.log.Error(), args).Msg(msg)
	os.Exit(1)
}

// withFields attaches slog-style key-value pairs to a zerolog event.
func withFields(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			e = e.Str("!BADKEY", key)
			break
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}
