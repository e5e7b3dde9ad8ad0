package gtp

import (
	"errors"
	"fmt"
)

var (
	// ErrProcessNotReady is returned when a command is sent with no engine attached.
	ErrProcessNotReady = errors.New("engine process not ready")

	// ErrTimeout is returned when a reply is not framed within the bound.
	ErrTimeout = errors.New("timed out waiting for engine reply")

	// ErrMalformedReply is returned when the first non-blank reply line has no sigil.
	ErrMalformedReply = errors.New("malformed engine reply")

	// ErrProcessStopped is returned by I/O on a process after Stop.
	ErrProcessStopped = errors.New("engine process stopped")

	// ErrInvalidCommand is returned for commands that are empty, multi-line or non-ASCII.
	ErrInvalidCommand = errors.New("invalid engine command")
)

// StartError reports that the engine executable could not be spawned.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start engine %q: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// IOError reports a broken pipe or an unexpected end of the engine's output.
// It is fatal for the conversation: the caller must restart the engine.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsIOError reports whether err (or anything it wraps) is an *IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// CommandError is returned when the engine answers a command with the failure sigil.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("engine rejected %q", e.Command)
	}
	return fmt.Sprintf("engine rejected %q: %s", e.Command, e.Message)
}
