package katago

import (
	"context"
	"sync"

	"github.com/dmmcquay/katago-web/internal/logging"
)

// QueueRecorder receives the queue depth.
type QueueRecorder interface {
	SetQueueDepth(n int)
}

type job struct {
	ctx  context.Context
	fn   func(context.Context)
	done chan struct{}
}

// Queue runs jobs one at a time on a single worker. Callers wait for their
// own job and may give up through their context.
type Queue struct {
	jobs     chan *job
	logger   logging.ContextLogger
	recorder QueueRecorder

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewQueue starts a worker with room for size waiting jobs.
func NewQueue(size int, logger logging.ContextLogger, recorder QueueRecorder) *Queue {
	if size < 1 {
		size = 1
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	q := &Queue{
		jobs:     make(chan *job, size),
		logger:   logger,
		recorder: recorder,
		done:     make(chan struct{}),
	}
	go q.work()
	return q
}

// Do enqueues fn and waits until it has run. It returns ErrQueueFull when
// the queue has no room, and ctx.Err() if ctx ends first; fn then sees the
// cancelled context when it runs, or is skipped if it has not started.
func (q *Queue) Do(ctx context.Context, fn func(context.Context)) error {
	j := &job{ctx: ctx, fn: fn, done: make(chan struct{})}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	select {
	case q.jobs <- j:
	default:
		q.mu.RUnlock()
		q.logger.Warn("Analysis queue full", "capacity", cap(q.jobs))
		return ErrQueueFull
	}
	q.recorder.SetQueueDepth(len(q.jobs))
	q.mu.RUnlock()

	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth returns the number of waiting jobs.
func (q *Queue) Depth() int {
	return len(q.jobs)
}

// Close stops accepting jobs and waits for the queued ones to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) work() {
	defer close(q.done)
	for j := range q.jobs {
		q.recorder.SetQueueDepth(len(q.jobs))
		if j.ctx.Err() == nil {
			j.fn(j.ctx)
		}
		close(j.done)
	}
}
