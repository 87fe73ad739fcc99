package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Level orders log severities.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var minLevel atomic.Int32

func init() {
	minLevel.Store(int32(LevelInfo))
}

// SetLevel sets the process-wide threshold from a LOG_LEVEL value.
// Unknown values fall back to info.
func SetLevel(name string) {
	minLevel.Store(int32(ParseLevel(name)))
}

// ParseLevel maps debug/info/warn/error to a Level.
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

// Logger provides structured logging for the worker
type Logger struct {
	prefix string
	fields []interface{}
	logger *log.Logger
}

// NewLogger creates a new logger with a prefix
func NewLogger(prefix string) *Logger {
	return NewLoggerTo(os.Stdout, prefix)
}

// NewLoggerTo creates a logger writing to w.
func NewLoggerTo(w io.Writer, prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		logger: log.New(w, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
	}
}

// With returns a child logger that prepends the given key-value pairs
// to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keysAndValues...)
	return &Logger{prefix: l.prefix, fields: fields, logger: l.logger}
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logWithKV(LevelInfo, "INFO", msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logWithKV(LevelWarn, "WARN", msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logWithKV(LevelError, "ERROR", msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logWithKV(LevelDebug, "DEBUG", msg, keysAndValues...)
}

func (l *Logger) logWithKV(level Level, tag, msg string, keysAndValues ...interface{}) {
	if int32(level) < minLevel.Load() {
		return
	}
	var kv strings.Builder
	writeKV(&kv, l.fields)
	writeKV(&kv, keysAndValues)
	l.logger.Printf("[%s] %s%s", tag, msg, kv.String())
}

func writeKV(b *strings.Builder, keysAndValues []interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
}
