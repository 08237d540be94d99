// Package logging wraps charmbracelet/log behind a small structured interface
// used by the session core and the CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"
)

// Logger is the structured logging interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	// With returns a child logger carrying the given key-value pairs.
	With(args ...any) Logger
	// Close releases the log file, if any.
	Close() error
}

type Config struct {
	Enabled bool
	Level   string
	// File switches output to a JSON log file; empty means text on the
	// provided writer.
	File string
}

type logger struct {
	clogger  *clog.Logger
	redactor *redactor
	closer   io.Closer
	mu       *sync.Mutex
}

// New builds a Logger from cfg. Disabled configs yield a no-op logger.
func New(cfg Config, w io.Writer) (Logger, error) {
	if !cfg.Enabled {
		return Nop(), nil
	}

	var closer io.Closer
	formatter := clog.TextFormatter
	if strings.TrimSpace(cfg.File) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closer = f
		formatter = clog.JSONFormatter
	}
	if w == nil {
		w = os.Stderr
	}

	clogger := clog.NewWithOptions(w, clog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           parseLevel(cfg.Level),
		Prefix:          "tt",
	})
	clogger.SetFormatter(formatter)

	return &logger{
		clogger:  clogger,
		redactor: newRedactor(),
		closer:   closer,
		mu:       &sync.Mutex{},
	}, nil
}

func parseLevel(level string) clog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return clog.DebugLevel
	case "warn", "warning":
		return clog.WarnLevel
	case "error":
		return clog.ErrorLevel
	default:
		return clog.InfoLevel
	}
}

func (l *logger) Debug(msg string, args ...any) {
	l.clogger.Debug(msg, l.redactor.redact(args)...)
}

func (l *logger) Info(msg string, args ...any) {
	l.clogger.Info(msg, l.redactor.redact(args)...)
}

func (l *logger) Warn(msg string, args ...any) {
	l.clogger.Warn(msg, l.redactor.redact(args)...)
}

func (l *logger) Error(msg string, args ...any) {
	l.clogger.Error(msg, l.redactor.redact(args)...)
}

func (l *logger) With(args ...any) Logger {
	return &logger{
		clogger:  l.clogger.With(l.redactor.redact(args)...),
		redactor: l.redactor,
		closer:   l.closer,
		mu:       l.mu,
	}
}

func (l *logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

type nopLogger struct{}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (n nopLogger) With(...any) Logger { return n }
func (nopLogger) Close() error         { return nil }
