package logging

import (
	"context"
)

// LoggerAdapter gives the text Logger the ContextLogger interface.
type LoggerAdapter struct {
	*Logger
	fields map[string]interface{}
}

func NewLoggerAdapter(logger *Logger) *LoggerAdapter {
	return &LoggerAdapter{
		Logger: logger,
		fields: make(map[string]interface{}),
	}
}

func (l *LoggerAdapter) with(fields map[string]interface{}) *LoggerAdapter {
	next := &LoggerAdapter{
		Logger: l.Logger,
		fields: make(map[string]interface{}, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		next.fields[k] = v
	}
	for k, v := range fields {
		next.fields[k] = v
	}
	return next
}

// WithContext returns a logger carrying the correlation and request IDs in ctx.
func (l *LoggerAdapter) WithContext(ctx context.Context) ContextLogger {
	return l.with(contextFields(ctx))
}

func (l *LoggerAdapter) WithField(key string, value interface{}) ContextLogger {
	return l.with(map[string]interface{}{key: value})
}

func (l *LoggerAdapter) WithFields(fields map[string]interface{}) ContextLogger {
	return l.with(fields)
}

func (l *LoggerAdapter) Debug(format string, args ...interface{}) {
	l.output(DebugLevel, format, args, l.fields)
}

func (l *LoggerAdapter) Info(format string, args ...interface{}) {
	l.output(InfoLevel, format, args, l.fields)
}

func (l *LoggerAdapter) Warn(format string, args ...interface{}) {
	l.output(WarnLevel, format, args, l.fields)
}

func (l *LoggerAdapter) Error(format string, args ...interface{}) {
	l.output(ErrorLevel, format, args, l.fields)
}
