package katago

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmmcquay/katago-web/internal/config"
	"github.com/dmmcquay/katago-web/internal/logging"
	"github.com/dmmcquay/katago-web/internal/retry"
)

// SupervisorRecorder receives supervisor metrics.
type SupervisorRecorder interface {
	RecordEngineRestart()
	RecordEngineHealthCheck(success bool)
}

const pingTimeout = 5 * time.Second

// Supervisor owns the engine lifecycle: it starts the engine on boot,
// probes it periodically and restarts it after failures.
type Supervisor struct {
	engine   Lifecycle
	config   config.EngineConfig
	logger   logging.ContextLogger
	recorder SupervisorRecorder
	policy   retry.Policy

	mu                  sync.Mutex
	running             bool
	stopCh              chan struct{}
	doneCh              chan struct{}
	restartCh           chan struct{}
	healthCheckInterval time.Duration
	pingTimeout         time.Duration
}

// NewSupervisor creates a supervisor for engine. recorder may be nil.
func NewSupervisor(engine Lifecycle, cfg *config.EngineConfig, logger logging.ContextLogger, recorder SupervisorRecorder) *Supervisor {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Supervisor{
		engine:   engine,
		config:   *cfg,
		logger:   logger,
		recorder: recorder,
		policy: retry.Policy{
			InitialDelay: config.Seconds(cfg.RestartBackoff),
			MaxDelay:     config.Seconds(cfg.MaxRestartBackoff),
			Multiplier:   2.0,
			Jitter:       0.1,
		},
		stopCh:              make(chan struct{}),
		doneCh:              make(chan struct{}),
		restartCh:           make(chan struct{}, 1),
		healthCheckInterval: config.Seconds(cfg.HealthCheckInterval),
		pingTimeout:         pingTimeout,
	}
}

// Start runs the supervision loop until ctx ends or Stop is called.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("supervisor already running")
	}
	s.running = true
	go s.supervise(ctx)
	return nil
}

// Stop ends supervision and stops the engine.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
	return s.engine.Stop()
}

// Restart asks the loop to stop and start the engine.
func (s *Supervisor) Restart() {
	select {
	case s.restartCh <- struct{}{}:
		s.logger.Info("Manual restart requested")
	default:
		// A restart is already pending.
	}
}

func (s *Supervisor) supervise(ctx context.Context) {
	defer close(s.doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("Starting engine supervisor",
		"autoStart", s.config.AutoStart,
		"autoRestart", s.config.AutoRestart,
		"healthCheckInterval", s.healthCheckInterval.String(),
	)

	if s.config.AutoStart {
		s.startWithRetry(ctx)
	}

	healthTicker := time.NewTicker(s.healthCheckInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Supervisor stopped")
			return

		case <-s.restartCh:
			s.logger.Info("Restarting engine")
			if err := s.engine.Stop(); err != nil {
				s.logger.Error("Failed to stop engine for restart", "error", err)
			}
			s.recorder.RecordEngineRestart()
			s.startWithRetry(ctx)

		case <-s.engine.Failures():
			if s.config.AutoRestart {
				s.logger.Warn("Engine failed, restarting")
				s.recorder.RecordEngineRestart()
				s.startWithRetry(ctx)
			}

		case <-healthTicker.C:
			s.checkHealth(ctx)
		}
	}
}

func (s *Supervisor) checkHealth(ctx context.Context) {
	switch s.engine.State() {
	case StateReady:
		pingCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
		err := s.engine.Ping(pingCtx)
		cancel()
		s.recorder.RecordEngineHealthCheck(err == nil)
		if err == nil {
			return
		}
		s.logger.Error("Engine health check failed", "error", err)
		if !s.config.AutoRestart {
			return
		}
		if err := s.engine.Stop(); err != nil {
			s.logger.Error("Failed to stop unhealthy engine", "error", err)
		}
		s.recorder.RecordEngineRestart()
		s.startWithRetry(ctx)

	case StateFailed:
		s.recorder.RecordEngineHealthCheck(false)
		if s.config.AutoRestart {
			s.logger.Warn("Engine not running, restarting")
			s.recorder.RecordEngineRestart()
			s.startWithRetry(ctx)
		}
	}
}

// startWithRetry starts the engine with exponential backoff. Attempts the
// session refuses while cooling down wait out the cooldown instead.
func (s *Supervisor) startWithRetry(ctx context.Context) {
	err := retry.Run(ctx, s.policy, func(ctx context.Context) error {
		for {
			err := s.engine.Start(ctx)
			var throttled *ThrottledError
			if !errors.As(err, &throttled) {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(throttled.Remaining):
			}
		}
	}, func(attempt int, delay time.Duration, err error) {
		s.logger.Warn("Engine start failed, retrying",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err,
		)
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Error("Giving up starting engine", "error", err)
	}
}
