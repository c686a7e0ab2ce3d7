package linestream

import "log/slog"

// Logger is the interface for structured logging.
// *slog.Logger satisfies it; args are alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// boundLogger prepends fixed key-value pairs to every record.
type boundLogger struct {
	l    Logger
	args []any
}

// withArgs returns a Logger that logs through l with args prepended.
func withArgs(l Logger, args ...any) Logger {
	if b, ok := l.(boundLogger); ok {
		return boundLogger{l: b.l, args: append(b.join(nil), args...)}
	}
	return boundLogger{l: l, args: args}
}

func (b boundLogger) join(args []any) []any {
	out := make([]any, 0, len(b.args)+len(args))
	return append(append(out, b.args...), args...)
}

func (b boundLogger) Debug(msg string, args ...any) { b.l.Debug(msg, b.join(args)...) }
func (b boundLogger) Info(msg string, args ...any)  { b.l.Info(msg, b.join(args)...) }
func (b boundLogger) Warn(msg string, args ...any)  { b.l.Warn(msg, b.join(args)...) }
func (b boundLogger) Error(msg string, args ...any) { b.l.Error(msg, b.join(args)...) }
