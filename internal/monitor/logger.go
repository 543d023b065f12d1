package monitor

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// attrLogger prefixes every record with fixed attributes.
type attrLogger struct {
	next  Logger
	attrs []any
}

func withAttrs(l Logger, attrs ...any) Logger {
	return attrLogger{next: l, attrs: attrs}
}

func (l attrLogger) join(args []any) []any {
	out := make([]any, 0, len(l.attrs)+len(args))
	out = append(out, l.attrs...)
	return append(out, args...)
}

func (l attrLogger) Debug(msg string, args ...any) { l.next.Debug(msg, l.join(args)...) }
func (l attrLogger) Info(msg string, args ...any)  { l.next.Info(msg, l.join(args)...) }
func (l attrLogger) Warn(msg string, args ...any)  { l.next.Warn(msg, l.join(args)...) }
func (l attrLogger) Error(msg string, args ...any) { l.next.Error(msg, l.join(args)...) }
