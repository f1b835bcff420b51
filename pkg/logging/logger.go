// Package logging provides structured logging with context propagation for
// the graph engine. It uses Go's built-in slog package for high-performance
// structured logging.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// fieldCaser normalizes custom field keys to lower case before they reach
// the structured sink, so two call sites that log the same concept under
// differently-cased keys ("NodeName" vs "nodeName") still collate under one
// field in log aggregation. language.Und (undetermined) is deliberate: field
// keys are identifiers, not natural-language text, so no locale-specific
// casing rule should apply to them.
var fieldCaser = cases.Lower(language.Und)

// contextKey is used for context keys to avoid collisions
type contextKey string

const (
	// ContextKeyLogger is the context key for the logger instance
	ContextKeyLogger contextKey = "logger"
)

// Logger wraps slog.Logger with graph/node-execution-specific context
// builders (WithGraphName, WithExecutionID, WithNodeName, WithNodeType).
type Logger struct {
	logger *slog.Logger
}

// Config holds logging configuration
type Config struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string
	// Output is where logs are written (default: os.Stdout)
	Output io.Writer
	// Pretty enables human-readable text output (default: false for JSON)
	Pretty bool
	// IncludeCaller includes source location in logs (default: false)
	IncludeCaller bool
}

// DefaultConfig returns default logging configuration
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		Output:        os.Stdout,
		Pretty:        false,
		IncludeCaller: false,
	}
}

// New creates a new logger with the given configuration
func New(cfg Config) *Logger {
	// Parse log level
	level := parseLevel(cfg.Level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Create handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.IncludeCaller,
	}

	// Create appropriate handler
	var handler slog.Handler
	if cfg.Pretty {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{
		logger: slog.New(handler),
	}
}

// parseLevel converts string level to slog.Level
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext adds the logger to a context
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ContextKeyLogger, l)
}

// FromContext retrieves the logger from context, or returns default logger
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(ContextKeyLogger).(*Logger); ok {
		return logger
	}
	// Return default logger if not in context
	return New(DefaultConfig())
}

// WithGraphName adds graph_name to the logger context
func (l *Logger) WithGraphName(graphName string) *Logger {
	return &Logger{
		logger: l.logger.With(slog.String("graph_name", graphName)),
	}
}

// WithExecutionID adds execution_id to the logger context
func (l *Logger) WithExecutionID(executionID string) *Logger {
	return &Logger{
		logger: l.logger.With(slog.String("execution_id", executionID)),
	}
}

// WithNodeName adds node_name to the logger context
func (l *Logger) WithNodeName(nodeName string) *Logger {
	return &Logger{
		logger: l.logger.With(slog.String("node_name", nodeName)),
	}
}

// WithNodeType adds node_type to the logger context
func (l *Logger) WithNodeType(nodeType string) *Logger {
	return &Logger{
		logger: l.logger.With(slog.String("node_type", nodeType)),
	}
}

// WithField adds a custom field to the logger context. The key is
// normalized through fieldCaser so callers don't have to agree on casing.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger: l.logger.With(slog.Any(fieldCaser.String(key), value)),
	}
}

// WithFields adds multiple custom fields to the logger context.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(fieldCaser.String(k), v))
	}
	return &Logger{
		logger: l.logger.With(args...),
	}
}

// WithError adds error to the logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		logger: l.logger.With(slog.Any("error", err)),
	}
}

// log is the shared sink every level method and its formatted variant
// below funnel through, keyed by the slog.Level the caller asked for.
func (l *Logger) log(level slog.Level, msg string) {
	l.logger.Log(context.Background(), level, msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) { l.log(slog.LevelDebug, msg) }

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(slog.LevelDebug, fmt.Sprintf(format, args...))
}

// Info logs an info message
func (l *Logger) Info(msg string) { l.log(slog.LevelInfo, msg) }

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(slog.LevelInfo, fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) { l.log(slog.LevelWarn, msg) }

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(slog.LevelWarn, fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(msg string) { l.log(slog.LevelError, msg) }

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(slog.LevelError, fmt.Sprintf(format, args...))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) {
	l.log(slog.LevelError, msg)
	os.Exit(1)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(slog.LevelError, fmt.Sprintf(format, args...))
	os.Exit(1)
}

// GetSlogLogger returns the underlying slog.Logger for advanced use cases
func (l *Logger) GetSlogLogger() *slog.Logger {
	return l.logger
}

// ErrorThrow logs msg at ERROR level and returns it as an error, mirroring
// the original engine's Log().ErrorThrow() call sites that both record and
// raise a failure in one expression.
func (l *Logger) ErrorThrow(msg string, args ...interface{}) error {
	formatted := fmt.Sprintf(msg, args...)
	l.logger.Error(formatted)
	return errors.New(formatted)
}
