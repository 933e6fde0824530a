// Package dlog provides the structured logging setup shared by every
// package in the driver: a JSON file sink rotated by lumberjack plus a
// human-readable console sink, both driven off one dynamic level.
package dlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom levels below slog.LevelDebug and above slog.LevelError. Trace
// is available for fine-grained lock/wait logging; no package in the
// driver, the poll loop included, logs at it.
const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

var (
	mu            sync.RWMutex
	structured    *slog.Logger
	human         *slog.Logger
	level         = new(slog.LevelVar)
	fileCloser    io.Closer
	initOnce      sync.Once
	isInitialized bool
)

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02T15:04:05.000Z07:00"))
	}
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			label, exists := levelNames[lvl]
			if !exists {
				label = lvl.String()
			}
			a.Value = slog.StringValue(label)
		}
	}
	if a.Value.Kind() == slog.KindFloat64 {
		truncated := math.Trunc(a.Value.Float64()*1000) / 1000.0
		a.Value = slog.Float64Value(truncated)
	}
	return a
}

// ParseLevel maps DriverSettings' LogLevel field ("trace", "debug",
// "info", "warn", "error") to a slog level; any other name maps to Info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init configures the package-global loggers. logPath is where the
// rotated JSON log is written; an empty path disables the file sink
// (useful for tests). Safe to call more than once; only the first call
// takes effect.
func Init(logPath string, initialLevel slog.Level) {
	initOnce.Do(func() {
		level.Set(initialLevel)

		var fileWriter io.Writer = io.Discard
		if logPath != "" {
			lj := &lumberjack.Logger{
				Filename:   logPath,
				MaxSize:    20, // megabytes
				MaxBackups: 5,
				MaxAge:     28, // days
				Compress:   true,
			}
			fileWriter = lj
			fileCloser = lj
		}

		jsonHandler := slog.NewJSONHandler(fileWriter, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceAttr,
		})
		textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceAttr,
		})

		mu.Lock()
		structured = slog.New(jsonHandler)
		human = slog.New(textHandler)
		mu.Unlock()

		slog.SetDefault(structured)
		isInitialized = true
	})
}

// IsInitialized reports whether Init has run.
func IsInitialized() bool {
	return isInitialized
}

// SetLevel changes the verbosity of every logger returned by this package.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// For returns a logger tagged with a component name, e.g. "sink", "driver".
func For(component string) *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if structured == nil {
		return slog.Default().With("component", component)
	}
	return structured.With("component", component)
}

// Human returns the console-facing logger, for progress output distinct
// from the structured file log.
func Human() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if human == nil {
		return slog.Default()
	}
	return human
}

// Close flushes and closes the rotating file sink, if one was configured.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileCloser != nil {
		return fileCloser.Close()
	}
	return nil
}

// Trace logs at LevelTrace using the default logger.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// Fatalf formats and logs at LevelFatal, then exits the process. Reserved
// for unrecoverable startup failures outside the real-time path.
func Fatalf(format string, args ...any) {
	slog.Log(context.Background(), LevelFatal, fmt.Sprintf(format, args...))
	os.Exit(1)
}
