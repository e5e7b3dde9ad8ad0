package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmmcquay/katago-web/internal/logging"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Manager runs registered shutdown hooks once, in reverse registration
// order, so the HTTP server stops taking requests before the engine stops.
type Manager struct {
	logger logging.ContextLogger

	mu    sync.Mutex
	hooks []hook

	once   sync.Once
	start  chan struct{}
	done   chan struct{}
	result error
}

func NewManager(logger logging.ContextLogger) *Manager {
	return &Manager{
		logger: logger,
		start:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Register adds a hook. Hooks run last-registered first.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// HandleSignals starts a shutdown with the given timeout on SIGINT or SIGTERM.
func (m *Manager) HandleSignals(timeout time.Duration) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			m.logger.Info("Received shutdown signal", "signal", sig)
			m.Shutdown(timeout)
		case <-m.start:
		}
		signal.Stop(sigCh)
	}()
}

// Shutdown runs the hooks within timeout and returns their joined errors.
// Later calls wait for the first one and return the same result.
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.once.Do(func() {
		close(m.start)
		m.logger.Info("Starting graceful shutdown", "timeout", timeout)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		m.mu.Lock()
		hooks := make([]hook, len(m.hooks))
		copy(hooks, m.hooks)
		m.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := m.run(ctx, hooks[i]); err != nil {
				errs = append(errs, err)
			}
		}
		m.result = errors.Join(errs...)

		if m.result != nil {
			m.logger.Error("Graceful shutdown completed with errors", "errors", len(errs))
		} else {
			m.logger.Info("Graceful shutdown completed")
		}
		close(m.done)
	})
	<-m.done
	return m.result
}

func (m *Manager) run(ctx context.Context, h hook) error {
	if err := ctx.Err(); err != nil {
		m.logger.Error("Skipping component, shutdown timed out", "component", h.name)
		return fmt.Errorf("%s: %w", h.name, err)
	}

	m.logger.Info("Shutting down component", "component", h.name)
	start := time.Now()
	if err := h.fn(ctx); err != nil {
		m.logger.Error("Failed to shutdown component", "component", h.name, "error", err, "elapsed", time.Since(start))
		return fmt.Errorf("%s: %w", h.name, err)
	}
	m.logger.Info("Component shutdown complete", "component", h.name, "elapsed", time.Since(start))
	return nil
}

// Started is closed when a shutdown begins.
func (m *Manager) Started() <-chan struct{} {
	return m.start
}

// Done is closed when shutdown is complete.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
