// Package logging wraps log/slog with the JSON output and correlation ids
// used across the relay.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a nil-safe structured logger.
type Logger struct {
	logger *slog.Logger
}

// Option customises a Logger.
type Option func(*options)

type options struct {
	writer  io.Writer
	service string
}

// WithWriter redirects output, mainly for tests.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithService tags every entry with a service name.
func WithService(name string) Option {
	return func(o *options) {
		o.service = strings.TrimSpace(name)
	}
}

// New returns a JSON logger filtering below level.
func New(level string, opts ...Option) (*Logger, error) {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	writer := cfg.writer
	if writer == nil {
		writer = os.Stdout
	}

	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: lvl}))
	if cfg.service != "" {
		logger = logger.With("service", cfg.service)
	}

	return &Logger{logger: logger}, nil
}

// ParseLevel maps a textual level to slog. An empty level means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("unknown log level " + level)
	}
}

// With returns a logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.logger == nil {
		return l
	}
	return &Logger{logger: l.logger.With(args...)}
}

// WithCorrelationID tags entries with a correlation id, one per upload.
func (l *Logger) WithCorrelationID(id string) *Logger {
	return l.With("correlation_id", id)
}

// Named tags entries with the emitting component.
func (l *Logger) Named(component string) *Logger {
	return l.With("component", component)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Log(context.Background(), level, msg, args...)
}

// SetDefault installs the logger as the slog default.
func (l *Logger) SetDefault() {
	if l == nil || l.logger == nil {
		return
	}
	slog.SetDefault(l.logger)
}

// AttachError appends an "error" attribute when err is not nil.
func AttachError(err error, args ...any) []any {
	if err == nil {
		return args
	}
	return append(args, "error", err.Error())
}
