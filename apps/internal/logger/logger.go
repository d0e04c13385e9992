// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package logger wraps a *slog.Logger with the levels and PII switch used across the cache.
package logger

import (
	"context"
	"log/slog"
)

type Level string

const (
	Info  Level = "info"
	Err   Level = "error"
	Warn  Level = "warn"
	Debug Level = "debug"
)

// Logger logs through slog. The zero value and a nil *Logger discard everything.
type Logger struct {
	logging *slog.Logger
	pii     bool
}

// New creates a Logger. A nil slogLogger discards all output. When piiEnabled is false,
// messages logged with LogPII are dropped.
func New(slogLogger *slog.Logger, piiEnabled bool) *Logger {
	if slogLogger == nil {
		slogLogger = slog.New(slog.DiscardHandler)
	}
	return &Logger{logging: slogLogger, pii: piiEnabled}
}

// Discard returns a Logger with no output.
func Discard() *Logger {
	return New(nil, false)
}

// With returns a Logger that adds fields to every entry.
func (a *Logger) With(fields ...any) *Logger {
	if a == nil || a.logging == nil {
		return a
	}
	return &Logger{logging: a.logging.With(fields...), pii: a.pii}
}

// Log method with full support for structured logging and multiple log levels.
func (a *Logger) Log(ctx context.Context, level Level, message string, fields ...any) {
	if a == nil || a.logging == nil {
		return
	}
	a.logging.Log(ctx, slogLevel(level), message, fields...)
}

// LogPII logs an entry that may contain personal data, such as a username or account id.
// It is a no-op unless the Logger was created with piiEnabled.
func (a *Logger) LogPII(ctx context.Context, level Level, message string, fields ...any) {
	if a == nil || !a.pii {
		return
	}
	a.Log(ctx, level, message, fields...)
}

// PIIEnabled reports if LogPII writes entries.
func (a *Logger) PIIEnabled() bool {
	return a != nil && a.pii
}

func slogLevel(level Level) slog.Level {
	switch level {
	case Info:
		return slog.LevelInfo
	case Err:
		return slog.LevelError
	case Warn:
		return slog.LevelWarn
	case Debug:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Field creates a slog field for any value
func Field(key string, value any) any {
	return slog.Any(key, value)
}
