// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging is the slog setup shared by the agenticmath CLI and the
// solver server.
//
// Console output goes to stderr (text or JSON) so it never mixes with the
// result card on stdout. Long-running servers can also append JSON
// records to a daily file:
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.agenticmath/logs",
//	    Service: "solverd",
//	})
//	defer logger.Close()
//
// Services never take a *Logger; hand them logger.Slog().
//
// # Security Considerations
//
// Nothing is redacted here. Log credential_present, never the credential.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is a log severity, Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	// LevelWarn covers degraded paths, e.g. a local evaluation that falls
	// through to the remote solver.
	LevelWarn
	LevelError
)

var levelTable = [...]struct {
	name string
	slog slog.Level
}{
	LevelDebug: {"DEBUG", slog.LevelDebug},
	LevelInfo:  {"INFO", slog.LevelInfo},
	LevelWarn:  {"WARN", slog.LevelWarn},
	LevelError: {"ERROR", slog.LevelError},
}

func (l Level) valid() bool { return l >= LevelDebug && l <= LevelError }

func (l Level) String() string {
	if !l.valid() {
		return "UNKNOWN"
	}
	return levelTable[l].name
}

// toSlogLevel maps l onto slog; out-of-range levels log at Info.
func (l Level) toSlogLevel() slog.Level {
	if !l.valid() {
		return slog.LevelInfo
	}
	return levelTable[l].slog
}

// ParseLevel reads the logging.level config value. Case and surrounding
// space are ignored and "" means info. Unknown names yield (LevelInfo,
// false).
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "", "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// Config controls where records go. The zero value logs Info and above
// to stderr as text.
type Config struct {
	Level Level

	// LogDir, when set, adds a JSON file "{Service}_{YYYY-MM-DD}.log" in
	// that directory. A leading ~ is expanded.
	LogDir string

	// Service is added to every record as "service".
	Service string

	// JSON formats console output as JSON.
	JSON bool

	// Quiet turns console output off; the file, if any, still receives
	// records.
	Quiet bool

	// Output replaces stderr as the console destination.
	Output io.Writer
}

// Logger wraps a *slog.Logger together with the log file it owns.
//
// # Thread Safety
//
// Safe for concurrent use. Close only the Logger returned by New, not
// loggers derived with With.
type Logger struct {
	slog *slog.Logger

	mu   sync.Mutex
	file *os.File
	path string
}

// New builds a Logger from config.
//
// # Description
//
// A log directory that cannot be created or a file that cannot be opened
// is not an error: the logger keeps console output only and Path reports
// "".
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}
	l := &Logger{}

	var sinks []slog.Handler
	if h := consoleHandler(config, opts); h != nil {
		sinks = append(sinks, h)
	}
	if config.LogDir != "" {
		if f, path, err := openLogFile(config); err == nil {
			l.file, l.path = f, path
			sinks = append(sinks, slog.NewJSONHandler(f, opts))
		}
	}

	var h slog.Handler
	switch len(sinks) {
	case 0:
		h = slog.NewTextHandler(io.Discard, opts)
	case 1:
		h = sinks[0]
	default:
		h = &teeHandler{sinks: sinks}
	}
	if config.Service != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}
	l.slog = slog.New(h)
	return l
}

// Default is the Info-level stderr logger of the "agenticmath" service.
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "agenticmath"})
}

func consoleHandler(config Config, opts *slog.HandlerOptions) slog.Handler {
	if config.Quiet {
		return nil
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	if config.JSON {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

func openLogFile(config Config) (*os.File, string, error) {
	dir := expandPath(config.LogDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, "", err
	}
	service := config.Service
	if service == "" {
		service = "agenticmath"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// Leveled helpers; args are slog key/value pairs.

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child logger carrying args on every record. The child
// shares the parent's file and does not own it.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

// Slog returns the *slog.Logger to hand to services.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Path is the log file being written, or "" without file logging.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Close flushes and closes the log file. Calling it again is a no-op.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file, l.path = nil, ""

	syncErr := f.Sync()
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	if syncErr != nil {
		return fmt.Errorf("sync log file: %w", syncErr)
	}
	return nil
}

// teeHandler writes each record to every sink whose level admits it.
type teeHandler struct {
	sinks []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range t.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, s := range t.sinks {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (t *teeHandler) each(fn func(slog.Handler) slog.Handler) *teeHandler {
	sinks := make([]slog.Handler, len(t.sinks))
	for i, s := range t.sinks {
		sinks[i] = fn(s)
	}
	return &teeHandler{sinks: sinks}
}

// expandPath turns a leading "~" into the home directory.
func expandPath(path string) string {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
