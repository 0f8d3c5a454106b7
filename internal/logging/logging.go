// Package logging builds the slog loggers used across the agent: a terminal
// handler plus an optional per-run logs.txt, fanned out with slog-multi.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

var level = new(slog.LevelVar)

// SetLevel accepts debug, info, warn or error. Empty keeps the current level.
func SetLevel(name string) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return nil
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level %q", name)
	}
	return nil
}

// Level returns the shared level.
func Level() slog.Level {
	return level.Level()
}

// New returns a logger writing text records to every non-nil writer.
func New(writers ...io.Writer) *slog.Logger {
	var handlers []slog.Handler
	for _, w := range writers {
		if w == nil {
			continue
		}
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}
	if len(handlers) == 0 {
		return Discard()
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// RunLogger fans out to terminal and to the run's logs.txt at path. The
// returned closer closes only the file.
func RunLogger(terminal io.Writer, path string) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log: %w", err)
	}
	return New(terminal, f), f, nil
}

// Discard drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
