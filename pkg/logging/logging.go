// Package logging builds the structured diagnostic logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const redactedValue = "[REDACTED]"

// Config selects level, format and sinks.
type Config struct {
	Level  string
	Format string
	// File appends logs to a file in addition to (or instead of) Stderr.
	File string
	// Quiet disables the stderr sink, e.g. while a full-screen UI owns the terminal.
	Quiet bool
}

// New creates a logger. The returned func closes the log file, if any.
func New(cfg Config) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	writers := make([]io.Writer, 0, 2)
	closers := make([]io.Closer, 0, 1)

	if !cfg.Quiet {
		writers = append(writers, os.Stderr)
	}
	if strings.TrimSpace(cfg.File) != "" {
		f, err := openLogFile(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, f)
		closers = append(closers, f)
	}

	cleanup := func() error {
		var firstErr error
		for _, c := range closers {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = io.MultiWriter(writers...)
	}

	handler, err := newHandler(out, cfg.Format, level)
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	return slog.New(handler), cleanup, nil
}

func newHandler(w io.Writer, format string, level slog.Leveler) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redactAttr}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("invalid log format: %q (allowed: text, json)", format)
	}
}

func openLogFile(path string) (*os.File, error) {
	clean := filepath.Clean(strings.TrimSpace(path))
	if err := os.MkdirAll(filepath.Dir(clean), 0o700); err != nil {
		return nil, fmt.Errorf("create log file directory: %w", err)
	}
	f, err := os.OpenFile(clean, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func parseLevel(level string) (slog.Leveler, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return nil, fmt.Errorf("invalid log level: %q (allowed: error, warn, info, debug)", level)
	}
}

func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	if isSensitiveKey(strings.ToLower(attr.Key)) {
		return slog.String(attr.Key, redactedValue)
	}
	return attr
}

func isSensitiveKey(key string) bool {
	if key == "authorization" {
		return true
	}
	for _, s := range []string{"password", "secret", "token", "credential"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
