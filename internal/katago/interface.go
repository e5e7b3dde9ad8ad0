package katago

import (
	"context"
)

// Service is what the HTTP and MCP surfaces need from the engine.
// This allows for mocking in tests.
type Service interface {
	// Analyze runs one analysis request.
	Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error)

	// Start starts the engine if it is not running.
	Start(ctx context.Context) error

	// Stop stops the engine process.
	Stop() error

	// Status reports the engine state.
	Status() Status
}

// Lifecycle is the part of the session the supervisor drives.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
	State() State
	Ping(ctx context.Context) error
	Failures() <-chan struct{}
}

var (
	_ Service   = (*Engine)(nil)
	_ Lifecycle = (*Session)(nil)
)
