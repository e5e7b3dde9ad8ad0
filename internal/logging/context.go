package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
)

func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIDKey).(string)
	return id, ok
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// GenerateCorrelationID returns a new correlation ID ("corr_<uuid>").
func GenerateCorrelationID() string {
	return "corr_" + uuid.NewString()
}

// GenerateRequestID returns a new request ID ("req_<uuid>").
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

func contextFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{}, 2)
	if id, ok := CorrelationIDFromContext(ctx); ok {
		fields["correlation_id"] = id
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		fields["request_id"] = id
	}
	return fields
}
