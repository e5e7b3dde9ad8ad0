package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dmmcquay/katago-web/internal/katago"
	"github.com/dmmcquay/katago-web/internal/logging"
	"github.com/dmmcquay/katago-web/internal/ratelimit"
	"github.com/dmmcquay/katago-web/internal/retry"
)

// Recorder receives tool call metrics.
type Recorder interface {
	RecordToolCall(tool, status string, durationSecs float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordToolCall(tool, status string, durationSecs float64) {}

// Middleware wraps MCP tool handlers with common functionality like rate limiting, metrics, and logging.
type Middleware struct {
	logger      logging.ContextLogger
	metrics     Recorder
	rateLimiter *ratelimit.Limiter
	retryPolicy retry.Policy
}

// NewMiddleware creates a new middleware instance. metrics and rateLimiter may be nil.
func NewMiddleware(logger logging.ContextLogger, metrics Recorder, rateLimiter *ratelimit.Limiter) *Middleware {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Middleware{
		logger:      logger,
		metrics:     metrics,
		rateLimiter: rateLimiter,
		retryPolicy: retry.Policy{
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// ToolHandler is the function signature for MCP tool handlers.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// WrapTool wraps a tool handler with middleware functionality.
func (m *Middleware) WrapTool(toolName string, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		clientID := extractClientID(ctx, request)

		m.logger.Info("Tool request received",
			"tool", toolName,
			"client", clientID,
			"arguments", request.Params.Arguments,
		)

		// A nil limiter allows everything.
		if err := m.rateLimiter.Allow(clientID, toolName); err != nil {
			m.metrics.RecordToolCall(toolName, "rate_limited", time.Since(start).Seconds())
			return nil, fmt.Errorf("tool %s: %w", toolName, err)
		}

		result, err := handler(ctx, request)

		status := "success"
		if err != nil {
			status = katago.Outcome(err)
			m.logger.Error("Tool request failed",
				"tool", toolName,
				"client", clientID,
				"error", err,
				"duration", time.Since(start).String(),
			)
		} else {
			m.logger.Info("Tool request completed",
				"tool", toolName,
				"client", clientID,
				"duration", time.Since(start).String(),
			)
		}
		m.metrics.RecordToolCall(toolName, status, time.Since(start).Seconds())

		return result, err
	}
}

// WrapToolWithRetry wraps a tool handler like WrapTool and retries calls
// refused because the analysis queue was full. Other errors are returned
// at once.
func (m *Middleware) WrapToolWithRetry(toolName string, handler ToolHandler, maxRetries int) ToolHandler {
	wrappedHandler := m.WrapTool(toolName, handler)
	policy := m.retryPolicy
	policy.MaxAttempts = maxRetries + 1

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var result *mcp.CallToolResult
		err := retry.Run(ctx, policy, func(ctx context.Context) error {
			var err error
			result, err = wrappedHandler(ctx, request)
			if err != nil && !errors.Is(err, katago.ErrQueueFull) {
				return retry.Permanent(err)
			}
			return err
		}, func(attempt int, delay time.Duration, err error) {
			m.logger.Debug("Retrying tool request",
				"tool", toolName,
				"attempt", attempt,
				"backoff", delay.String(),
			)
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

// extractClientID identifies the caller by MCP session, falling back to a
// clientID argument.
func extractClientID(ctx context.Context, request mcp.CallToolRequest) string {
	if session := server.ClientSessionFromContext(ctx); session != nil && session.SessionID() != "" {
		return session.SessionID()
	}

	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if clientID, ok := args["clientID"].(string); ok && clientID != "" {
			return clientID
		}
	}

	return "anonymous"
}
