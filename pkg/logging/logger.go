// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for mendci components.
//
// The logger follows Unix CLI conventions: human-readable output goes to
// stderr by default, and an optional JSON log file can be enabled for
// post-run inspection of a repair session.
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("starting repair loop", "iteration", 1)
//
// # File Logging
//
//	logger, err := logging.New(logging.Config{
//	    Level:   logging.LevelDebug,
//	    LogDir:  "~/.mendci/logs",
//	    Service: "repair",
//	})
//	defer logger.Close()
//
// Log files are named {service}_{date}.log and written as JSON lines.
//
// # Thread Safety
//
// Logger is safe for concurrent use. The underlying slog handlers are
// thread-safe and file state is protected by a mutex.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operations.
	LevelInfo

	// LevelWarn is for recoverable issues such as retry attempts.
	LevelWarn

	// LevelError is for operation failures.
	LevelError
)

// slogLevel converts a Level to the slog equivalent.
func (l Level) slogLevel() slog.Level {
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

// ParseLevel parses a level name ("debug", "info", "warn", "error").
// Unknown names default to Info.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config configures a Logger.
type Config struct {
	// Level is the minimum level to emit.
	Level Level

	// LogDir enables JSON file logging when non-empty. Supports a
	// leading ~ for the user home directory. The directory is created
	// if it does not exist.
	LogDir string

	// Service names the log file ({service}_{date}.log).
	Service string

	// Stderr overrides the console destination. Defaults to os.Stderr.
	// Used by tests.
	Stderr io.Writer
}

// Logger wraps slog with optional multi-destination output.
type Logger struct {
	*slog.Logger

	mu   sync.Mutex
	file *os.File
}

// Default returns a stderr-only logger at Info level.
func Default() *Logger {
	logger, _ := New(Config{Level: LevelInfo})
	return logger
}

// New creates a Logger from config.
//
// Inputs:
//
//	cfg - Logger configuration.
//
// Outputs:
//
//	*Logger - The configured logger. Never nil on success.
//	error - Non-nil if the log directory or file cannot be created.
func New(cfg Config) (*Logger, error) {
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	consoleHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: cfg.Level.slogLevel(),
	})

	logger := &Logger{}

	if cfg.LogDir == "" {
		logger.Logger = slog.New(consoleHandler)
		return logger, nil
	}

	dir, err := expandHome(cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("resolving log dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}

	service := cfg.Service
	if service == "" {
		service = "mendci"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))

	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: cfg.Level.slogLevel(),
	})

	logger.file = file
	logger.Logger = slog.New(newFanoutHandler(consoleHandler, fileHandler))
	return logger, nil
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// expandHome expands a leading ~ to the user home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
