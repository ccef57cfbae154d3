// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers helpers for the recurring log shapes in
// this codebase (tool invocations, model calls).
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger is the minimal logging interface consumed throughout scribemesh.
// Arguments follow slog conventions (alternating key/value pairs).
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoOpLogger discards all log messages. Useful for tests or when logging is disabled.
type NoOpLogger struct{}

// Debug discards the message.
func (NoOpLogger) Debug(string, ...any) {}

// Info discards the message.
func (NoOpLogger) Info(string, ...any) {}

// Warn discards the message.
func (NoOpLogger) Warn(string, ...any) {}

// Error discards the message.
func (NoOpLogger) Error(string, ...any) {}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger { return &SlogAdapter{Logger: logger} }

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger { return NewSlogAdapter(slog.Default()) }

// Config configures construction of a structured logger.
type Config struct {
	Level     slog.Level
	Format    string // "json" or "text"
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns a baseline JSON info-level configuration.
func DefaultConfig() *Config {
	return &Config{Level: slog.LevelInfo, Format: "json", Output: os.Stdout}
}

// ParseLevel maps a level name ("debug", "info", "warn", "error") to a
// slog.Level. Unknown or empty names fall back to info.
func ParseLevel(name string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// New builds a Logger from a config (or defaults if nil).
func New(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return NewSlogAdapter(slog.New(handler))
}

// WithRequest returns a Logger that attaches conversation and request
// identifiers to every entry. For non-slog loggers it returns l unchanged.
func WithRequest(l Logger, conversationID, requestID string) Logger {
	sa, ok := l.(*SlogAdapter)
	if !ok {
		return l
	}
	return &SlogAdapter{Logger: sa.Logger.With(
		slog.String("conversation_id", conversationID),
		slog.String("request_id", requestID),
	)}
}

// LogToolCall records execution details for a tool invocation with a
// consistent attribute shape across the codebase.
func LogToolCall(l Logger, tool, agent string, dur time.Duration, success bool, errMsg string) {
	args := []any{"tool", tool, "agent", agent, "duration_ms", dur.Milliseconds(), "success", success}
	if errMsg != "" {
		args = append(args, "error", errMsg)
	}
	if success {
		l.Info("tool.call.done", args...)
		return
	}
	l.Error("tool.call.failed", args...)
}

// LogModelCall records model call latency and token usage.
func LogModelCall(l Logger, modelName string, tokens int, dur time.Duration, err error) {
	args := []any{"model", modelName, "token_count", tokens, "duration_ms", dur.Milliseconds()}
	if err != nil {
		args = append(args, "error", err.Error())
		l.Error("model.call.failed", args...)
		return
	}
	l.Info("model.call.done", args...)
}
