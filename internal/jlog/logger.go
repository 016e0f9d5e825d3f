// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package jlog provides structured logging for jrpcproxy.
//
// It is deliberately smaller than most slog wrappers: the proxy always logs
// to stderr (so the TUI, which owns stdout, is undisturbed), in human text by
// default and JSON when requested. There is no file output and no export
// hook — a local dev proxy has no reader for either.
package jlog

import (
	"log/slog"
	"os"
)

// Level mirrors slog's severity levels under names local to this package, so
// callers depend on jlog rather than reaching into log/slog directly.
type Level int

const (
	// LevelDebug is for development troubleshooting, e.g. decision dispatch.
	LevelDebug Level = iota
	// LevelInfo is for normal operation: exchange recorded, mode changed,
	// server started.
	LevelInfo
	// LevelWarn is for recoverable problems: a message dropped at store
	// ingress, malformed upstream body, interception timeout.
	LevelWarn
	// LevelError is for failed operations: transport failure, bind failure.
	LevelError
)

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger. A zero-value Config logs Info+ to stderr as
// human-readable text.
type Config struct {
	// Level sets the minimum level that is emitted.
	Level Level

	// JSON switches the stderr handler to JSON output (set via --log-json).
	JSON bool

	// Service tags every record with a "service" attribute.
	Service string
}

// Logger wraps slog.Logger with the fixed stderr destination above.
type Logger struct {
	slog *slog.Logger
}

// New builds a Logger from config.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	return &Logger{slog: slog.New(handler)}
}

// Default returns an Info-level, text-format, stderr-only logger tagged
// "jrpcproxy".
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "jrpcproxy"})
}

// Debug logs at Debug level.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at Info level.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at Warn level.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at Error level.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child Logger carrying additional attributes on every
// subsequent record, e.g. a per-exchange logger:
//
//	exLogger := logger.With("exchange_id", id, "method", method, "remote", remoteAddr)
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

// Slog returns the underlying slog.Logger for callers that need direct
// access (e.g. gin middleware adapters).
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}
