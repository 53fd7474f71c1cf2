// Package logging defines the minimal logging interface used throughout the
// workflow engine, plus a slog-backed adapter and a no-op implementation.
package logging

import (
	"log/slog"
	"os"
)

// Logger is the logging interface accepted by engine, agents, tools and the
// HTTP server. Args are alternating key/value pairs, slog style.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter adapts a *slog.Logger to the Logger interface.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps an existing slog logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (s *SlogAdapter) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }
func (s *SlogAdapter) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s *SlogAdapter) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s *SlogAdapter) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

// Config controls NewLogger output.
type Config struct {
	Level  slog.Level
	Format string // "json" or "text"
}

// NewLogger builds a Logger writing to stderr in the configured format.
func NewLogger(cfg Config) Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return NewSlogAdapter(slog.New(handler))
}

// NoOpLogger discards everything. It is the default wherever no logger is
// supplied.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, args ...any) {}
func (NoOpLogger) Info(msg string, args ...any)  {}
func (NoOpLogger) Warn(msg string, args ...any)  {}
func (NoOpLogger) Error(msg string, args ...any) {}
