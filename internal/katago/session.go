package katago

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmmcquay/katago-web/internal/config"
	"github.com/dmmcquay/katago-web/internal/gtp"
	"github.com/dmmcquay/katago-web/internal/logging"
	"github.com/dmmcquay/katago-web/internal/retry"
)

// Recorder receives session metrics. *metrics.PrometheusCollector implements it.
type Recorder interface {
	SetEngineState(state string)
	RecordCommand(command, kind string, durationSecs float64)
}

type nopRecorder struct{}

func (nopRecorder) SetEngineState(string) {}
func (nopRecorder) RecordCommand(string, string, float64) {}
func (nopRecorder) RecordAnalysis(string, float64) {}
func (nopRecorder) SetQueueDepth(int) {}
func (nopRecorder) RecordEngineRestart() {}
func (nopRecorder) RecordEngineHealthCheck(bool) {}
func (nopRecorder) RecordCacheHit() {}
func (nopRecorder) RecordCacheMiss() {}
func (nopRecorder) SetCacheStats(items, sizeBytes float64) {}

// engineInfo is what the handshake learned about the engine.
type engineInfo struct {
	name       string
	version    string
	analyzeCmd string
	dialect    gtp.Dialect
	setParam   bool
	setRules   bool
	commands   map[string]bool
}

// Session owns the engine process and drives it over one command channel.
// Analyses are serialised; Stop may be called at any time.
type Session struct {
	cfg      config.EngineConfig
	defaults Defaults
	launcher Launcher
	channel  *gtp.Channel
	cooldown *retry.Cooldown
	logger   logging.ContextLogger
	recorder Recorder

	// lifeMu serialises Start attempts.
	lifeMu sync.Mutex
	// opMu serialises analysis sequences.
	opMu sync.Mutex

	mu      sync.RWMutex
	state   State
	since   time.Time
	gen     int
	proc    *gtp.Process
	info    engineInfo
	lastErr error

	failures chan struct{}
}

// NewSession creates a session in the uninitialized state. recorder may be nil.
func NewSession(cfg *config.EngineConfig, launcher Launcher, logger logging.ContextLogger, recorder Recorder) *Session {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	s := &Session{
		cfg:      *cfg,
		defaults: DefaultsFromConfig(cfg),
		launcher: launcher,
		cooldown: retry.NewCooldown(retry.Policy{
			InitialDelay: config.Seconds(cfg.RestartBackoff),
			MaxDelay:     config.Seconds(cfg.MaxRestartBackoff),
			Multiplier:   2,
		}),
		logger:   logger,
		recorder: recorder,
		state:    StateUninitialized,
		since:    time.Now(),
		failures: make(chan struct{}, 1),
	}
	s.channel = gtp.NewChannel(logger,
		gtp.WithTimeout(cfg.CommandTimeoutDuration()),
		gtp.WithObserver(func(command string, d time.Duration, err error) {
			s.recorder.RecordCommand(command, errorKind(err), d.Seconds())
		}),
	)
	recorder.SetEngineState(StateUninitialized.String())
	return s
}

// Defaults returns the request defaults the session applies.
func (s *Session) Defaults() Defaults {
	return s.defaults
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns a snapshot for status endpoints.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		State:           s.state,
		EngineName:      s.info.name,
		EngineVersion:   s.info.version,
		AnalysisCommand: s.info.analyzeCmd,
		Since:           s.since,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.proc != nil {
		st.Pid = s.proc.Pid()
	}
	return st
}

// Failures signals, without blocking, each time a running engine fails.
func (s *Session) Failures() <-chan struct{} {
	return s.failures
}

// Start launches the engine and performs the handshake. It is a no-op when
// the engine is ready. While an earlier start failure is cooling down it
// returns a *ThrottledError without spawning anything.
func (s *Session) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	if s.state == StateReady {
		s.mu.Unlock()
		return nil
	}
	if ok, lastErr := s.cooldown.Allow(); !ok {
		s.mu.Unlock()
		return &ThrottledError{Remaining: s.cooldown.Remaining(), Err: lastErr}
	}
	s.gen++
	gen := s.gen
	s.setState(StateStarting)
	s.mu.Unlock()

	proc, err := s.launcher.Launch(s.logger)
	if err != nil {
		s.startFailed(gen, nil, err)
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = proc.Stop(s.cfg.StopGraceDuration())
		return fmt.Errorf("%w: stopped during start", ErrEngineUnavailable)
	}
	s.proc = proc
	s.channel.Attach(proc)
	s.mu.Unlock()

	info, err := s.handshake(ctx)
	if err != nil {
		s.startFailed(gen, proc, err)
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return fmt.Errorf("%w: stopped during start", ErrEngineUnavailable)
	}
	s.info = info
	s.lastErr = nil
	s.cooldown.Success()
	s.setState(StateReady)
	s.mu.Unlock()

	go s.watch(proc, gen)

	s.logger.Info("Engine ready",
		"name", info.name,
		"version", info.version,
		"analysis", info.analyzeCmd,
		"pid", proc.Pid(),
	)
	return nil
}

func (s *Session) handshake(ctx context.Context) (engineInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeoutDuration())
	defer cancel()

	ask := func(cmd string) (string, error) {
		reply, err := s.channel.SendTimeout(ctx, cmd, s.cfg.StartupTimeoutDuration())
		if err != nil {
			return "", fmt.Errorf("handshake %s: %w", cmd, err)
		}
		if err := reply.Err(cmd); err != nil {
			return "", fmt.Errorf("handshake: %w", err)
		}
		return reply.Text, nil
	}

	var info engineInfo
	if _, err := ask("protocol_version"); err != nil {
		return info, err
	}
	var err error
	if info.name, err = ask("name"); err != nil {
		return info, err
	}
	if info.version, err = ask("version"); err != nil {
		return info, err
	}

	info.commands = make(map[string]bool)
	if list, err := ask("list_commands"); err != nil {
		s.logger.Warn("Engine does not list its commands, analysis disabled", "error", err)
	} else {
		for _, line := range strings.Split(list, "\n") {
			if name := strings.TrimSpace(line); name != "" {
				info.commands[name] = true
			}
		}
	}

	switch {
	case info.commands["kata-analyze"]:
		info.analyzeCmd, info.dialect = "kata-analyze", gtp.DialectKata
	case info.commands["lz-analyze"]:
		info.analyzeCmd, info.dialect = "lz-analyze", gtp.DialectLeela
	}
	info.setParam = info.commands["kata-set-param"]
	info.setRules = info.commands["kata-set-rules"]
	return info, nil
}

// startFailed records a failed start attempt and arms the cooldown.
func (s *Session) startFailed(gen int, proc *gtp.Process, err error) {
	s.mu.Lock()
	if s.gen == gen {
		s.cooldown.Failure(err)
		s.detachLocked()
		s.lastErr = err
		s.setState(StateFailed)
	}
	s.mu.Unlock()

	if proc != nil {
		_ = proc.Stop(s.cfg.StopGraceDuration())
	}
	s.logger.Error("Engine failed to start", "error", err, "retryIn", s.cooldown.Remaining().String())
}

// Stop terminates the engine. An analysis in progress fails promptly.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.gen++
	proc := s.proc
	s.detachLocked()
	if s.state != StateUninitialized || proc != nil {
		s.setState(StateStopped)
	}
	s.mu.Unlock()

	if proc == nil {
		return nil
	}
	s.logger.Info("Stopping engine", "pid", proc.Pid())
	return proc.Stop(s.cfg.StopGraceDuration())
}

// Ping checks that the engine answers a trivial command. An engine busy with
// an analysis counts as healthy: the analysis has its own timeouts.
func (s *Session) Ping(ctx context.Context) error {
	gen, ok := s.readyGen()
	if !ok {
		return fmt.Errorf("%w: state %s", ErrEngineUnavailable, s.State())
	}
	if !s.opMu.TryLock() {
		s.logger.Debug("Engine busy, skipping ping")
		return nil
	}
	defer s.opMu.Unlock()
	reply, err := s.command(ctx, gen, "name")
	if err != nil {
		return err
	}
	return reply.Err("name")
}

// markFailed moves a running engine to Failed after a broken pipe or an
// unexpected exit. Failures of an engine that has since been replaced or
// stopped are ignored.
func (s *Session) markFailed(gen int, err error) {
	s.mu.Lock()
	if s.gen != gen || (s.state != StateReady && s.state != StateStarting) {
		s.mu.Unlock()
		return
	}
	s.gen++
	proc := s.proc
	s.detachLocked()
	s.lastErr = err
	s.setState(StateFailed)
	s.mu.Unlock()

	s.logger.Error("Engine failed", "error", err)
	select {
	case s.failures <- struct{}{}:
	default:
	}
	if proc != nil {
		go func() { _ = proc.Stop(s.cfg.StopGraceDuration()) }()
	}
}

func (s *Session) watch(proc *gtp.Process, gen int) {
	<-proc.Exited()
	err := proc.ExitErr()
	if err == nil {
		err = errors.New("engine exited")
	}
	s.markFailed(gen, &gtp.IOError{Op: "exit", Err: err})
}

// command sends one command on behalf of generation gen.
func (s *Session) command(ctx context.Context, gen int, cmd string) (*gtp.Reply, error) {
	reply, err := s.channel.Send(ctx, cmd)
	if err != nil {
		return nil, s.commandErr(gen, err)
	}
	return reply, nil
}

func (s *Session) commandErr(gen int, err error) error {
	switch {
	case gtp.IsIOError(err):
		s.markFailed(gen, err)
		return err
	case errors.Is(err, gtp.ErrProcessNotReady):
		return unavailable(err)
	}
	return err
}

func (s *Session) readyGen() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen, s.state == StateReady
}

func (s *Session) detachLocked() {
	s.channel.Detach()
	s.proc = nil
}

func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	s.logger.Debug("Engine state change", "from", s.state.String(), "to", state.String())
	s.state = state
	s.since = time.Now()
	s.recorder.SetEngineState(state.String())
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, gtp.ErrTimeout):
		return "timeout"
	case gtp.IsIOError(err):
		return "io"
	case errors.Is(err, gtp.ErrMalformedReply):
		return "malformed"
	case errors.Is(err, gtp.ErrProcessNotReady):
		return "not_ready"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
