package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"
)

// StructuredLogger writes one JSON object per line.
type StructuredLogger struct {
	level      *levelVar
	service    string
	version    string
	out        *syncWriter
	fields     map[string]interface{}
	timeFormat string
}

// LogEntry is the JSON shape of a structured log line.
type LogEntry struct {
	Timestamp     string                 `json:"timestamp"`
	Level         string                 `json:"level"`
	Service       string                 `json:"service"`
	Version       string                 `json:"version,omitempty"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	RequestID     string                 `json:"request_id,omitempty"`
	Caller        string                 `json:"caller,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

type levelVar struct {
	mu    sync.RWMutex
	level Level
}

type syncWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	w   io.Writer
}

func NewStructuredLogger(service, version, level string) *StructuredLogger {
	return NewStructuredLoggerWithWriter(os.Stderr, service, version, level)
}

// NewStructuredLoggerWithWriter creates a structured logger writing to w.
func NewStructuredLoggerWithWriter(w io.Writer, service, version, level string) *StructuredLogger {
	return &StructuredLogger{
		level:      &levelVar{level: ParseLevel(level)},
		service:    service,
		version:    version,
		out:        &syncWriter{enc: json.NewEncoder(w), w: w},
		fields:     make(map[string]interface{}),
		timeFormat: time.RFC3339Nano,
	}
}

// Derived loggers share the level and the writer of their parent.
func (l *StructuredLogger) with(fields map[string]interface{}) *StructuredLogger {
	next := &StructuredLogger{
		level:      l.level,
		service:    l.service,
		version:    l.version,
		out:        l.out,
		fields:     make(map[string]interface{}, len(l.fields)+len(fields)),
		timeFormat: l.timeFormat,
	}
	for k, v := range l.fields {
		next.fields[k] = v
	}
	for k, v := range fields {
		next.fields[k] = v
	}
	return next
}

func (l *StructuredLogger) WithContext(ctx context.Context) ContextLogger {
	return l.with(contextFields(ctx))
}

func (l *StructuredLogger) WithFields(fields map[string]interface{}) ContextLogger {
	return l.with(fields)
}

func (l *StructuredLogger) WithField(key string, value interface{}) ContextLogger {
	return l.with(map[string]interface{}{key: value})
}

func (l *StructuredLogger) log(level Level, message string, args ...interface{}) {
	if !l.shouldLog(level) {
		return
	}

	msg, fields := splitArgs(message, args)
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(l.timeFormat),
		Level:     levelToString(level),
		Service:   l.service,
		Version:   l.version,
		Message:   msg,
		Fields:    fields,
	}

	if _, file, line, ok := runtime.Caller(2); ok {
		entry.Caller = fmt.Sprintf("%s:%d", file, line)
	}

	for k, v := range l.fields {
		switch k {
		case "correlation_id":
			if id, ok := v.(string); ok {
				entry.CorrelationID = id
				continue
			}
		case "request_id":
			if id, ok := v.(string); ok {
				entry.RequestID = id
				continue
			}
		}
		if entry.Fields == nil {
			entry.Fields = make(map[string]interface{}, len(l.fields))
		}
		if _, exists := entry.Fields[k]; !exists {
			entry.Fields[k] = v
		}
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if err := l.out.enc.Encode(entry); err != nil {
		fmt.Fprintf(l.out.w, "[%s] %s: %s (json encoding failed: %v)\n",
			entry.Timestamp, entry.Level, entry.Message, err)
	}
}

func (l *StructuredLogger) Debug(message string, args ...interface{}) {
	l.log(DebugLevel, message, args...)
}

func (l *StructuredLogger) Info(message string, args ...interface{}) {
	l.log(InfoLevel, message, args...)
}

func (l *StructuredLogger) Warn(message string, args ...interface{}) {
	l.log(WarnLevel, message, args...)
}

func (l *StructuredLogger) Error(message string, args ...interface{}) {
	l.log(ErrorLevel, message, args...)
}

// Fatal logs at error level and exits.
func (l *StructuredLogger) Fatal(message string, args ...interface{}) {
	l.log(ErrorLevel, message, args...)
	os.Exit(1)
}

func (l *StructuredLogger) SetLevel(level Level) {
	l.level.mu.Lock()
	defer l.level.mu.Unlock()
	l.level.level = level
}

func (l *StructuredLogger) GetLevel() Level {
	l.level.mu.RLock()
	defer l.level.mu.RUnlock()
	return l.level.level
}

func (l *StructuredLogger) shouldLog(level Level) bool {
	return level >= l.GetLevel()
}
