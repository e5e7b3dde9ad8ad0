package katago

import (
	"context"
	"sync"
)

// MockEngine is a Service for tests of the HTTP and MCP layers.
type MockEngine struct {
	mu          sync.Mutex
	state       State
	analyzeResp *AnalysisResult
	analyzeErr  error
	startErr    error
	stopErr     error
	lastRequest *AnalysisRequest

	analyzeCallCount int
	startCallCount   int
	stopCallCount    int
}

var _ Service = (*MockEngine)(nil)

// NewMockEngine creates a mock engine in the ready state.
func NewMockEngine() *MockEngine {
	return &MockEngine{state: StateReady}
}

// SetState sets the reported state.
func (m *MockEngine) SetState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// SetAnalyzeResponse sets the response to return from Analyze.
func (m *MockEngine) SetAnalyzeResponse(resp *AnalysisResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyzeResp = resp
	m.analyzeErr = err
}

// SetStartError sets the error to return from Start.
func (m *MockEngine) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// SetStopError sets the error to return from Stop.
func (m *MockEngine) SetStopError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopErr = err
}

// LastRequest returns the last request passed to Analyze.
func (m *MockEngine) LastRequest() *AnalysisRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// Calls returns how often Analyze, Start and Stop were called.
func (m *MockEngine) Calls() (analyze, start, stop int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyzeCallCount, m.startCallCount, m.stopCallCount
}

// Analyze implements Service.
func (m *MockEngine) Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyzeCallCount++
	m.lastRequest = req
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.analyzeResp, m.analyzeErr
}

// Start implements Service.
func (m *MockEngine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCallCount++
	if m.startErr != nil {
		m.state = StateFailed
		return m.startErr
	}
	m.state = StateReady
	return nil
}

// Stop implements Service.
func (m *MockEngine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCallCount++
	if m.stopErr != nil {
		return m.stopErr
	}
	m.state = StateStopped
	return nil
}

// Status implements Service.
func (m *MockEngine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{State: m.state}
	if m.state == StateReady {
		st.EngineName = "KataGo"
		st.EngineVersion = "1.15.3"
		st.AnalysisCommand = "kata-analyze"
	}
	if m.startErr != nil && m.state == StateFailed {
		st.LastError = m.startErr.Error()
	}
	return st
}
