// Copyright 2025 ZeroXBridge
//
// Package logging provides structured logging for the sequencer. It wraps
// log/slog with level parsing from configuration and an optional file sink.

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
)

// Logger wraps slog.Logger with the configured sink so it can be closed on
// shutdown.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New builds a logger from the logging configuration. When cfg.File is set
// the log stream goes to that file as JSON; otherwise text goes to stdout.
func New(cfg config.LoggingConfig) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	var closer io.Closer
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		handler = slog.NewJSONHandler(f, opts)
		closer = f
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler), closer: closer}, nil
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(component string) *slog.Logger {
	return l.With("component", component)
}

// Close releases the file sink, if any.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", level)
}
