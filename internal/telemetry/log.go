// Package telemetry provides the ambient logging and metrics surface used
// across the filelock packages. It wraps log/slog the same way the rest
// of this codebase's ancestor project does: a small struct carrying a
// persistent attribute set, with a NopLogger for callers who configure
// nothing.
package telemetry

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// Logger wraps a *slog.Logger with chainable, persistent attributes.
// It is safe for concurrent use; With* methods return a new value and
// never mutate the receiver.
type Logger struct {
	logger *slog.Logger
	attrs  []slog.Attr
}

// New returns a Logger writing JSON lines to w at the given level.
func New(w io.Writer, level slog.Level) *Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{logger: slog.New(h)}
}

// NopLogger discards all output. It is the default for every package
// that accepts a *Logger, so the library is silent until a caller opts in.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// NewHolderID returns a fresh per-process holder identifier for
// correlating log lines across processes that contend on the same
// sentinel. It is never written to the sentinel itself.
func NewHolderID() string {
	return uuid.NewString()
}

// WithHolder returns a child logger tagging every entry with holderID.
func (l *Logger) WithHolder(holderID string) *Logger {
	return l.with(slog.String("holder_id", holderID))
}

// WithSentinel returns a child logger tagging every entry with the
// sentinel path under discussion.
func (l *Logger) WithSentinel(path string) *Logger {
	return l.with(slog.String("sentinel", path))
}

// With returns a child logger with an arbitrary key added.
func (l *Logger) With(key string, value any) *Logger {
	return l.with(slog.Any(key, value))
}

func (l *Logger) with(attr slog.Attr) *Logger {
	next := make([]slog.Attr, len(l.attrs)+1)
	copy(next, l.attrs)
	next[len(l.attrs)] = attr
	return &Logger{logger: l.logger, attrs: next}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	all := make([]any, 0, len(l.attrs)*2+len(args))
	for _, a := range l.attrs {
		all = append(all, a.Key, a.Value.Any())
	}
	all = append(all, args...)
	l.logger.Log(context.Background(), level, msg, all...)
}
