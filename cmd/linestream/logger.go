package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// zerologLogger adapts a zerolog.Logger to linestream.Logger.
type zerologLogger struct {
	l zerolog.Logger
}

func newLogger(out io.Writer, level string, noColor bool) (zerologLogger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerologLogger{}, err
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}
	l := zerolog.New(output).Level(lvl).With().Timestamp().Str("app", "linestream").Logger()
	return zerologLogger{l: l}, nil
}

func (z zerologLogger) Debug(msg string, args ...any) { z.emit(z.l.Debug(), msg, args) }
func (z zerologLogger) Info(msg string, args ...any)  { z.emit(z.l.Info(), msg, args) }
func (z zerologLogger) Warn(msg string, args ...any)  { z.emit(z.l.Warn(), msg, args) }
func (z zerologLogger) Error(msg string, args ...any) { z.emit(z.l.Error(), msg, args) }

func (z zerologLogger) emit(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	if len(args)%2 != 0 {
		args = append(args, "!MISSING")
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "!BADKEY"
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
