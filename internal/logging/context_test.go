package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratedIDs(t *testing.T) {
	tests := []struct {
		prefix   string
		generate func() string
	}{
		{"corr_", GenerateCorrelationID},
		{"req_", GenerateRequestID},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSuffix(tt.prefix, "_"), func(t *testing.T) {
			seen := make(map[string]bool)
			for i := 0; i < 50; i++ {
				id := tt.generate()
				require.True(t, strings.HasPrefix(id, tt.prefix), id)
				require.False(t, seen[id], "duplicate id %s", id)
				seen[id] = true

				u, err := uuid.Parse(strings.TrimPrefix(id, tt.prefix))
				require.NoError(t, err, id)
				assert.Equal(t, uuid.Version(4), u.Version())
			}
		})
	}
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	_, ok := CorrelationIDFromContext(ctx)
	assert.False(t, ok)
	_, ok = RequestIDFromContext(ctx)
	assert.False(t, ok)

	corr := GenerateCorrelationID()
	ctx = ContextWithCorrelationID(ctx, corr)
	ctx = ContextWithRequestID(ctx, "req-analyze")

	got, ok := CorrelationIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, corr, got)
	got, ok = RequestIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "req-analyze", got)
}

func TestContextFields(t *testing.T) {
	assert.Empty(t, contextFields(context.Background()))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	assert.Equal(t, map[string]interface{}{"request_id": "req-1"}, contextFields(ctx))

	ctx = ContextWithCorrelationID(ctx, "corr-1")
	assert.Equal(t, map[string]interface{}{
		"correlation_id": "corr-1",
		"request_id":     "req-1",
	}, contextFields(ctx))

	// The innermost value wins.
	ctx = ContextWithRequestID(ctx, "req-2")
	assert.Equal(t, "req-2", contextFields(ctx)["request_id"])
}
