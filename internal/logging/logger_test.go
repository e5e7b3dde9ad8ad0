package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		args       []interface{}
		wantMsg    string
		wantFields map[string]interface{}
	}{
		{
			name:    "key-value pairs",
			message: "Engine command completed",
			args:    []interface{}{"command", "genmove", "id", 7},
			wantMsg: "Engine command completed",
			wantFields: map[string]interface{}{
				"command": "genmove",
				"id":      7,
			},
		},
		{
			name:    "printf style",
			message: "Analyzing %d moves on %dx%d",
			args:    []interface{}{12, 19, 19},
			wantMsg: "Analyzing 12 moves on 19x19",
		},
		{
			name:       "printf with trailing fields",
			message:    "Engine exited: %v",
			args:       []interface{}{"signal: killed", "pid", 42},
			wantMsg:    "Engine exited: signal: killed",
			wantFields: map[string]interface{}{"pid": 42},
		},
		{
			name:       "odd number of args",
			message:    "Stale reply",
			args:       []interface{}{"id", 3, "dangling"},
			wantMsg:    "Stale reply",
			wantFields: map[string]interface{}{"id": 3, "extra": "dangling"},
		},
		{
			name:       "escaped percent is not a verb",
			message:    "Winrate 100%% reached",
			args:       []interface{}{"move", "Q16"},
			wantMsg:    "Winrate 100%% reached",
			wantFields: map[string]interface{}{"move": "Q16"},
		},
		{
			name:    "no args",
			message: "Engine ready",
			wantMsg: "Engine ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, fields := splitArgs(tt.message, tt.args)
			assert.Equal(t, tt.wantMsg, msg)
			if tt.wantFields == nil {
				assert.Empty(t, fields)
			} else {
				assert.Equal(t, tt.wantFields, fields)
			}
		})
	}
}

func TestTextLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "[test] ", "warn")

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("visible warn", "grace", "5s")
	logger.Error("visible %s", "error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] visible warn grace=5s")
	assert.Contains(t, out, "[ERROR] visible error")
	assert.True(t, strings.HasPrefix(out, "[test] "))

	logger.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, logger.GetLevel())
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "[DEBUG] now visible")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
}

func TestLoggerAdapterFields(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewLoggerAdapter(NewLoggerWithWriter(&buf, "", "info"))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	logger := adapter.WithContext(ctx).WithField("route", "/api/katago/analyze")
	logger.Info("Request handled", "status", 200)

	out := buf.String()
	assert.Contains(t, out, "Request handled")
	assert.Contains(t, out, "request_id=req-1")
	assert.Contains(t, out, "route=/api/katago/analyze")
	assert.Contains(t, out, "status=200")

	// The parent logger is unchanged.
	buf.Reset()
	adapter.Info("plain")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLoggerWithWriter(&buf, "katago-web", "0.1.0", "debug")

	ctx := ContextWithCorrelationID(context.Background(), "corr-123")
	ctx = ContextWithRequestID(ctx, "req-456")
	logger.WithContext(ctx).WithField("component", "session").Info("Engine started", "pid", 42)

	var entry LogEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))

	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "katago-web", entry.Service)
	assert.Equal(t, "0.1.0", entry.Version)
	assert.Equal(t, "Engine started", entry.Message)
	assert.Equal(t, "corr-123", entry.CorrelationID)
	assert.Equal(t, "req-456", entry.RequestID)
	assert.Equal(t, "session", entry.Fields["component"])
	assert.Equal(t, float64(42), entry.Fields["pid"])
	assert.Contains(t, entry.Caller, "logger_test.go")
}

func TestStructuredLoggerSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLoggerWithWriter(&buf, "svc", "", "info")
	child := logger.WithField("k", "v")

	child.Debug("dropped")
	assert.Zero(t, buf.Len())

	logger.SetLevel(DebugLevel)
	child.Debug("kept")
	assert.Contains(t, buf.String(), `"message":"kept"`)
}

func TestNewLoggerFromConfig(t *testing.T) {
	t.Run("json by default", func(t *testing.T) {
		t.Setenv("KATAGO_WEB_LOG_FORMAT", "")
		var buf bytes.Buffer
		logger := NewLoggerFromConfig(&Config{Level: "info", Service: "svc", Writer: &buf})
		_, ok := logger.(*StructuredLogger)
		require.True(t, ok)
		logger.Info("hello")
		assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
	})

	t.Run("text from environment", func(t *testing.T) {
		t.Setenv("KATAGO_WEB_LOG_FORMAT", "TEXT")
		var buf bytes.Buffer
		logger := NewLoggerFromConfig(&Config{Level: "info", Prefix: "[kw] ", Writer: &buf})
		_, ok := logger.(*LoggerAdapter)
		require.True(t, ok)
		logger.Info("hello")
		assert.Contains(t, buf.String(), "[kw] ")
	})

	t.Run("explicit format wins", func(t *testing.T) {
		t.Setenv("KATAGO_WEB_LOG_FORMAT", "text")
		logger := NewLoggerFromConfig(&Config{Format: FormatJSON, Writer: &bytes.Buffer{}})
		_, ok := logger.(*StructuredLogger)
		assert.True(t, ok)
	})
}
