package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields represents structured logging key/value pairs used by plugflow.
type LogFields map[string]any

// Logger is the minimal logging contract required by the engine. It exposes
// the five severities of the pipeline runtime (Error < Warn < Info < Debug <
// Trace) so element authors and the runner share one surface.
type Logger interface {
	With(fields LogFields) Logger
	Error(msg string, err error, fields LogFields)
	Warn(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Debug(msg string, fields LogFields)
	Trace(msg string, fields LogFields)
}

// Level is the process-wide log severity.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// slog has no Trace level; anything below Debug is treated as trace output.
const slogLevelTrace = slog.Level(-8)

var processLevel atomic.Int64

func init() {
	processLevel.Store(int64(LevelInfo))
}

// SetLevel sets the process-wide severity. Messages above the configured
// verbosity are dropped by loggers constructed with New.
func SetLevel(l Level) {
	if l < LevelError {
		l = LevelError
	}
	if l > LevelTrace {
		l = LevelTrace
	}
	processLevel.Store(int64(l))
}

// GetLevel returns the current process-wide severity.
func GetLevel() Level {
	return Level(processLevel.Load())
}

// ParseLevel converts a textual severity ("error", "warn", "info", "debug",
// "trace") into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	}
	return LevelInfo, fmt.Errorf("plugflow: unknown log level %q", s)
}

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	}
	return "unknown"
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelInfo:
		return slog.LevelInfo
	case LevelDebug:
		return slog.LevelDebug
	default:
		return slogLevelTrace
	}
}

// New wraps a slog.Logger so it satisfies the Logger interface and honours
// the process-wide level set via SetLevel.
func New(log *slog.Logger) Logger {
	if log == nil {
		panic("plugflow: slog logger cannot be nil")
	}
	return &slogLogger{inner: log}
}

// ForModule returns a logger tagged with the plugin and module emitting the
// lines, matching the runtime's log line format.
func ForModule(base Logger, plugin, module string) Logger {
	return base.With(LogFields{"plugin": plugin, "module": module})
}

type slogLogger struct {
	inner *slog.Logger
}

func (s *slogLogger) With(fields LogFields) Logger {
	if len(fields) == 0 {
		return s
	}
	return &slogLogger{inner: s.inner.With(fieldsToArgs(fields)...)}
}

func (s *slogLogger) Error(msg string, err error, fields LogFields) {
	if GetLevel() < LevelError {
		return
	}
	args := fieldsToArgs(fields)
	if err != nil {
		args = append(args, slog.Any("error", err))
	}
	s.inner.Log(context.Background(), slog.LevelError, msg, args...)
}

func (s *slogLogger) Warn(msg string, fields LogFields) {
	s.log(LevelWarn, msg, fields)
}

func (s *slogLogger) Info(msg string, fields LogFields) {
	s.log(LevelInfo, msg, fields)
}

func (s *slogLogger) Debug(msg string, fields LogFields) {
	s.log(LevelDebug, msg, fields)
}

func (s *slogLogger) Trace(msg string, fields LogFields) {
	s.log(LevelTrace, msg, fields)
}

func (s *slogLogger) log(level Level, msg string, fields LogFields) {
	if GetLevel() < level {
		return
	}
	s.inner.Log(context.Background(), level.slogLevel(), msg, fieldsToArgs(fields)...)
}

func fieldsToArgs(fields LogFields) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	return args
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) With(LogFields) Logger          { return nopLogger{} }
func (nopLogger) Error(string, error, LogFields) {}
func (nopLogger) Warn(string, LogFields)         {}
func (nopLogger) Info(string, LogFields)         {}
func (nopLogger) Debug(string, LogFields)        {}
func (nopLogger) Trace(string, LogFields)        {}

type watermillAdapter struct {
	base Logger
}

// NewWatermillAdapter converts a Logger into a watermill.LoggerAdapter so the
// pubsub bridge elements can reuse the same logger abstraction.
func NewWatermillAdapter(log Logger) watermill.LoggerAdapter {
	if log == nil {
		panic("plugflow: Logger cannot be nil")
	}
	return &watermillAdapter{base: log}
}

func (w *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	w.base.Error(msg, err, fromWatermillFields(fields))
}

func (w *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	w.base.Info(msg, fromWatermillFields(fields))
}

func (w *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	w.base.Debug(msg, fromWatermillFields(fields))
}

func (w *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	w.base.Trace(msg, fromWatermillFields(fields))
}

func (w *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{base: w.base.With(fromWatermillFields(fields))}
}

func fromWatermillFields(fields watermill.LogFields) LogFields {
	if len(fields) == 0 {
		return nil
	}
	return LogFields(fields)
}
