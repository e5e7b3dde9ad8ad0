package katago

import (
	"context"
	"errors"
	"time"

	"github.com/dmmcquay/katago-web/internal/cache"
	"github.com/dmmcquay/katago-web/internal/gtp"
	"github.com/dmmcquay/katago-web/internal/logging"
)

// EngineRecorder receives analysis metrics.
type EngineRecorder interface {
	RecordAnalysis(outcome string, durationSecs float64)
}

// Engine puts the queue and the result cache in front of a Session.
type Engine struct {
	session  *Session
	queue    *Queue
	cache    *cache.Manager[*AnalysisResult]
	logger   logging.ContextLogger
	recorder EngineRecorder
}

// NewEngine wires an Engine. resultCache and recorder may be nil.
func NewEngine(session *Session, queue *Queue, resultCache *cache.Manager[*AnalysisResult], logger logging.ContextLogger, recorder EngineRecorder) *Engine {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Engine{
		session:  session,
		queue:    queue,
		cache:    resultCache,
		logger:   logger,
		recorder: recorder,
	}
}

// Session returns the underlying session.
func (e *Engine) Session() *Session {
	return e.session
}

// Analyze validates req, serves repeated positions from the cache and
// queues the rest for the engine.
func (e *Engine) Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error) {
	start := time.Now()
	pos, err := req.Normalize(e.session.Defaults())
	if err != nil {
		e.record(err, start)
		return nil, err
	}

	var key string
	if e.cache != nil && e.cache.IsEnabled() {
		if key, err = cache.Key(pos); err != nil {
			e.logger.Warn("Could not build cache key", "error", err)
		} else if cached, ok := e.cache.Get(key); ok {
			e.recorder.RecordAnalysis("cached", time.Since(start).Seconds())
			return cached, nil
		}
	}

	var result *AnalysisResult
	var analyzeErr error
	err = e.queue.Do(ctx, func(ctx context.Context) {
		result, analyzeErr = e.session.AnalyzePosition(ctx, pos)
	})
	if err == nil {
		err = analyzeErr
	}
	if err != nil {
		e.record(err, start)
		return nil, err
	}

	// Results without an evaluation are not cached so a later call can
	// pick up the engine's analysis.
	if key != "" && result.EvaluationAvailable {
		e.cache.Put(key, result)
	}
	e.record(nil, start)
	return result, nil
}

// Start starts the engine.
func (e *Engine) Start(ctx context.Context) error {
	return e.session.Start(ctx)
}

// Stop stops the engine. Queued analyses will restart it on demand.
func (e *Engine) Stop() error {
	return e.session.Stop()
}

// Status reports the session state and queue depth.
func (e *Engine) Status() Status {
	st := e.session.Status()
	st.QueueDepth = e.queue.Depth()
	return st
}

// Close drains the queue and stops the engine.
func (e *Engine) Close() error {
	e.queue.Close()
	return e.session.Stop()
}

func (e *Engine) record(err error, start time.Time) {
	e.recorder.RecordAnalysis(Outcome(err), time.Since(start).Seconds())
}

// Outcome classifies an analysis error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrIllegalMove):
		return "illegal_move"
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrQueueClosed):
		return "queue_full"
	case errors.Is(err, gtp.ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrEngineUnavailable), gtp.IsIOError(err):
		return "unavailable"
	case errors.Is(err, ErrSetupFailed):
		return "setup_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
