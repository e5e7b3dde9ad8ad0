package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger is the plain text logger used for terminals and tests.
type Logger struct {
	logger *log.Logger
	level  Level
	mu     sync.RWMutex
}

func NewLogger(prefix string, level string) *Logger {
	return NewLoggerWithWriter(os.Stderr, prefix, level)
}

// NewLoggerWithWriter creates a text logger writing to w.
func NewLoggerWithWriter(w io.Writer, prefix string, level string) *Logger {
	return &Logger{
		logger: log.New(w, prefix, log.LstdFlags|log.Lmicroseconds),
		level:  ParseLevel(level),
	}
}

// ParseLevel maps a level name to a Level. Unknown names mean info.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *Logger) shouldLog(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func (l *Logger) output(level Level, message string, args []interface{}, extra map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}
	msg, fields := splitArgs(message, args)
	for k, v := range extra {
		if fields == nil {
			fields = make(map[string]interface{}, len(extra))
		}
		if _, exists := fields[k]; !exists {
			fields[k] = v
		}
	}
	l.logger.Print("[" + levelToString(level) + "] " + msg + formatFields(fields))
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.output(DebugLevel, format, v, nil)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.output(InfoLevel, format, v, nil)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.output(WarnLevel, format, v, nil)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.output(ErrorLevel, format, v, nil)
}

func (l *Logger) Printf(format string, v ...interface{}) {
	l.Info(format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	msg, fields := splitArgs(format, v)
	l.logger.Fatal("[FATAL] " + msg + formatFields(fields))
}

// formatFields renders fields as " key=value ..." in key order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

func levelToString(level Level) string {
	switch level {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
