package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dmmcquay/katago-web/internal/logging"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// DefaultCheckTimeout bounds each check.
const DefaultCheckTimeout = 5 * time.Second

// Check reports a component's health. Returning a *DegradedError marks the
// component degraded rather than unhealthy.
type Check func(ctx context.Context) error

// DegradedError marks a component that works with reduced capability, such
// as an engine that is still starting.
type DegradedError struct {
	Reason string
}

func (e *DegradedError) Error() string { return e.Reason }

// Degraded returns a *DegradedError with the given reason.
func Degraded(reason string) error {
	return &DegradedError{Reason: reason}
}

type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Message     string    `json:"message,omitempty"`
	LastChecked time.Time `json:"lastChecked"`
}

type Response struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components,omitempty"`
	Version    string      `json:"version,omitempty"`
}

// Checker runs registered checks for the /health and /ready endpoints.
type Checker struct {
	logger  logging.ContextLogger
	version string
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]Check
}

func NewChecker(logger logging.ContextLogger, version string) *Checker {
	return &Checker{
		logger:  logger,
		version: version,
		timeout: DefaultCheckTimeout,
		checks:  make(map[string]Check),
	}
}

// SetTimeout changes the per-check timeout.
func (c *Checker) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// RegisterCheck adds or replaces the check for name.
func (c *Checker) RegisterCheck(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// CheckHealth runs all checks concurrently. The overall status is the worst
// component status; components are sorted by name.
func (c *Checker) CheckHealth(ctx context.Context) Response {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	timeout := c.timeout
	c.mu.RUnlock()

	response := Response{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC(),
		Version:    c.version,
		Components: make([]Component, 0, len(checks)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			component := c.run(ctx, name, check, timeout)

			mu.Lock()
			defer mu.Unlock()
			response.Components = append(response.Components, component)
		}(name, check)
	}
	wg.Wait()

	sort.Slice(response.Components, func(i, j int) bool {
		return response.Components[i].Name < response.Components[j].Name
	})
	for _, component := range response.Components {
		switch component.Status {
		case StatusUnhealthy:
			response.Status = StatusUnhealthy
		case StatusDegraded:
			if response.Status == StatusHealthy {
				response.Status = StatusDegraded
			}
		}
	}
	return response
}

func (c *Checker) run(ctx context.Context, name string, check Check, timeout time.Duration) Component {
	component := Component{
		Name:        name,
		Status:      StatusHealthy,
		LastChecked: time.Now().UTC(),
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- check(checkCtx) }()

	var err error
	select {
	case err = <-done:
	case <-checkCtx.Done():
		err = checkCtx.Err()
	}

	var degraded *DegradedError
	switch {
	case err == nil:
	case errors.As(err, &degraded):
		component.Status = StatusDegraded
		component.Message = degraded.Reason
	default:
		component.Status = StatusUnhealthy
		component.Message = err.Error()
		c.logger.WithField("component", name).Warn("Health check failed", "error", err)
	}
	return component
}

// LivenessHandler reports healthy whenever the process can serve requests.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.write(w, http.StatusOK, Response{
			Status:    StatusHealthy,
			Timestamp: time.Now().UTC(),
			Version:   c.version,
		})
	}
}

// ReadinessHandler runs the checks and answers 503 unless all are healthy.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, ok := logging.CorrelationIDFromContext(ctx); !ok {
			ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
		}
		c.logger.WithContext(ctx).Debug("Performing readiness check")

		response := c.CheckHealth(ctx)
		statusCode := http.StatusOK
		if response.Status != StatusHealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.write(w, statusCode, response)
	}
}

func (c *Checker) write(w http.ResponseWriter, statusCode int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		c.logger.Error("Failed to encode health response", "error", err)
	}
}
