package katago

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEngineUnavailable means the engine is not running and could not be started.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrSetupFailed means a board setup command was rejected.
	ErrSetupFailed = errors.New("position setup failed")
	// ErrIllegalMove means a requested move could not be played.
	ErrIllegalMove = errors.New("illegal move")
	// ErrInvalidRequest means the request failed validation before reaching the engine.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrQueueFull means too many analyses are already waiting.
	ErrQueueFull = errors.New("analysis queue full")
	// ErrQueueClosed means the queue is shutting down.
	ErrQueueClosed = errors.New("analysis queue closed")
	// ErrEvaluationUnavailable means the engine gave no usable analysis output.
	ErrEvaluationUnavailable = errors.New("evaluation unavailable")
)

// SetupError reports which setup step failed.
type SetupError struct {
	Step string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

func (e *SetupError) Is(target error) bool { return target == ErrSetupFailed }

// IllegalMoveError identifies the first move of a request that failed.
type IllegalMoveError struct {
	Index int
	Move  string
	Err   error
}

func (e *IllegalMoveError) Error() string {
	if e.Move == "" {
		return fmt.Sprintf("illegal move at index %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("illegal move %s at index %d: %v", e.Move, e.Index, e.Err)
}

func (e *IllegalMoveError) Unwrap() error { return e.Err }

func (e *IllegalMoveError) Is(target error) bool { return target == ErrIllegalMove }

// ThrottledError is returned by Start while an earlier start failure cools down.
type ThrottledError struct {
	Remaining time.Duration
	Err       error
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("engine start throttled for %s: %v", e.Remaining.Round(time.Millisecond), e.Err)
}

func (e *ThrottledError) Unwrap() error { return e.Err }

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrEngineUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
}
