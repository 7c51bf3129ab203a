// Package logger provides the process-wide structured logger.
//
// It wraps log/slog behind a package-level API so that every component logs
// through the same handler. Output format (colored text or JSON) and level
// can be reconfigured at runtime; reconfiguration swaps the handler
// atomically under a lock.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	mu       sync.RWMutex
	output   io.Writer = os.Stderr
	useColor           = isTerminal(os.Stderr.Fd())
	level              = new(slog.LevelVar)
	format             = "text"
	slogger  *slog.Logger
)

func init() {
	reconfigure()
}

// reconfigure rebuilds the slog handler from the current settings.
// Caller must hold mu.
func reconfigure() {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		slogger = slog.New(slog.NewJSONHandler(output, opts))
	} else {
		slogger = slog.New(newTextHandler(output, opts, useColor))
	}
}

// Init configures the global logger. Output may be "stdout", "stderr" or a
// file path; files are opened in append mode and never colored.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		output = os.Stderr
		useColor = isTerminal(os.Stderr.Fd())
	case "stdout":
		output = os.Stdout
		useColor = isTerminal(os.Stdout.Fd())
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		output = f
		useColor = false
	}

	if cfg.Level != "" {
		level.Set(parseLevel(cfg.Level))
	}
	if cfg.Format != "" {
		f := strings.ToLower(cfg.Format)
		if f == "text" || f == "json" {
			format = f
		}
	}

	reconfigure()
	return nil
}

// InitWithWriter points the logger at an arbitrary writer. Used by tests.
func InitWithWriter(w io.Writer, lvl, fmtName string) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	useColor = false
	if lvl != "" {
		level.Set(parseLevel(lvl))
	}
	if fmtName != "" {
		format = strings.ToLower(fmtName)
	}
	reconfigure()
}

// SetLevel changes the minimum level. Invalid values are ignored.
func SetLevel(lvl string) {
	level.Set(parseLevel(lvl))
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToUpper(lvl) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Debug logs at debug level with structured key-value pairs.
func Debug(msg string, args ...any) { get().Debug(msg, args...) }

// Info logs at info level with structured key-value pairs.
func Info(msg string, args ...any) { get().Info(msg, args...) }

// Warn logs at warn level with structured key-value pairs.
func Warn(msg string, args ...any) { get().Warn(msg, args...) }

// Error logs at error level with structured key-value pairs.
func Error(msg string, args ...any) { get().Error(msg, args...) }

// With returns a slog.Logger with pre-bound attributes.
func With(args ...any) *slog.Logger { return get().With(args...) }
