package log

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	dferrors "github.com/felixgeelhaar/docflow/internal/errors"
)

// Logger provides structured logging with slog
type Logger struct {
	slog   *slog.Logger
	config Config
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{
		Level:     config.Level.ToSlogLevel(),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(config.Output.Writer(), opts)
	default:
		handler = slog.NewTextHandler(config.Output.Writer(), opts)
	}

	l := slog.New(&traceHandler{Handler: handler}).With("service", "docflow")
	if config.ServiceVersion != "" {
		l = l.With("version", config.ServiceVersion)
	}

	return &Logger{
		slog:   l,
		config: config,
	}
}

// Default creates a logger with default configuration
func Default() *Logger {
	return New(DefaultConfig())
}

// Development creates a logger with development configuration
func Development() *Logger {
	return New(DevelopmentConfig())
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	cfg := DefaultConfig()
	cfg.Output = OutputDiscard()
	return New(cfg)
}

// With returns a new Logger with the given attributes added to all log entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
	}
}

// WithGroup returns a new Logger with a group name that prefixes all attributes
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		slog:   l.slog.WithGroup(name),
		config: l.config,
	}
}

// WithRun scopes the logger to one run.
func (l *Logger) WithRun(runID string) *Logger {
	return l.With("run_id", runID)
}

// WithUnit scopes the logger to one unit.
func (l *Logger) WithUnit(id string) *Logger {
	return l.With("unit", id)
}

// WithError adds error details to the logger.
// Coded errors contribute error_code and suggestions.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With(errorArgs(err, "error")...)
}

func errorArgs(err error, messageKey string) []any {
	var de *dferrors.DocflowError
	if !errors.As(err, &de) {
		return []any{messageKey, err.Error()}
	}

	args := []any{
		messageKey, de.Message,
		"error_code", string(de.Code),
	}
	if len(de.Suggestions) > 0 {
		args = append(args, "suggestions", de.Suggestions)
	}
	if de.DocsURL != "" {
		args = append(args, "docs_url", de.DocsURL)
	}
	if de.Cause != nil {
		args = append(args, "cause", de.Cause.Error())
	}
	return args
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// DebugContext logs a debug message with context
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slog.DebugContext(ctx, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// InfoContext logs an info message with context
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// WarnContext logs a warning message with context
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slog.WarnContext(ctx, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// ErrorContext logs an error message with context
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slog.ErrorContext(ctx, msg, args...)
}

// LogError logs err with full details at error level
func (l *Logger) LogError(err error) {
	if err == nil {
		return
	}
	l.Error("operation failed", errorArgs(err, "error_message")...)
}

// Enabled returns whether the logger is enabled for the given level
func (l *Logger) Enabled(ctx context.Context, level Level) bool {
	return l.slog.Enabled(ctx, level.ToSlogLevel())
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

// traceHandler adds the ids of the active span to records logged with a
// context, so log lines can be joined with exported traces.
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}
