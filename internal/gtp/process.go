package gtp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dmmcquay/katago-web/internal/logging"
)

const (
	// maxLineBytes bounds a single engine output line; analysis lines with
	// ownership data run to several kilobytes on 19x19.
	maxLineBytes = 1 << 20

	lineBuffer = 256
)

// Process is a running engine child process with line-oriented pipes.
type Process struct {
	logger logging.ContextLogger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	lines   chan string
	readErr error

	writeMu sync.Mutex

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}

	done    chan struct{}
	exitErr error
}

// Start spawns the engine at path with args and wires its standard streams.
// The process is not bound to a context: it lives until Stop or until it exits.
func Start(path string, args []string, logger logging.ContextLogger) (*Process, error) {
	if path == "" {
		return nil, &StartError{Path: path, Err: exec.ErrNotFound}
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, &StartError{Path: path, Err: err}
	}

	cmd := exec.Command(resolved, args...) // #nosec G204 -- path comes from validated configuration

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &StartError{Path: path, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &StartError{Path: path, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &StartError{Path: path, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &StartError{Path: path, Err: err}
	}

	p := newProcess(stdin, stdout, logger)
	p.cmd = cmd

	stderrDone := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		p.drainStderr(stderr)
	}()
	go func() {
		defer close(readerDone)
		p.readLoop()
	}()
	go func() {
		// Wait must not run before all reads from the pipes have completed.
		<-readerDone
		<-stderrDone
		p.exitErr = cmd.Wait()
		close(p.done)
	}()

	logger.Info("Engine process started",
		"binary", resolved,
		"args", strings.Join(args, " "),
		"pid", cmd.Process.Pid,
	)
	return p, nil
}

// NewPipeProcess wraps an already-connected pair of streams, typically the
// ends of io.Pipe driven by an in-process engine.
func NewPipeProcess(stdin io.WriteCloser, stdout io.ReadCloser, logger logging.ContextLogger) *Process {
	p := newProcess(stdin, stdout, logger)
	go func() {
		p.readLoop()
		close(p.done)
	}()
	return p
}

func newProcess(stdin io.WriteCloser, stdout io.ReadCloser, logger logging.ContextLogger) *Process {
	return &Process{
		logger: logger,
		stdin:  stdin,
		stdout: stdout,
		lines:  make(chan string, lineBuffer),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// readLoop forwards stdout lines until EOF or a read error.
func (p *Process) readLoop() {
	defer close(p.lines)

	scanner := bufio.NewScanner(p.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		select {
		case p.lines <- line:
		case <-p.stopCh:
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.readErr = err
	}
}

func (p *Process) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			p.logger.Debug("Engine stderr", "line", line)
		}
	}
}

// WriteLine sends text followed by a newline.
func (p *Process) WriteLine(text string) error {
	if p.isStopped() {
		return &IOError{Op: "write", Err: ErrProcessStopped}
	}
	select {
	case <-p.done:
		return &IOError{Op: "write", Err: io.ErrClosedPipe}
	default:
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := io.WriteString(p.stdin, text+"\n"); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// ReadLine blocks until a line arrives. It returns ok=false with a nil error
// when the engine closed its output cleanly.
func (p *Process) ReadLine(ctx context.Context) (line string, ok bool, err error) {
	select {
	case <-p.stopCh:
		return "", false, &IOError{Op: "read", Err: ErrProcessStopped}
	default:
	}

	select {
	case line, ok := <-p.lines:
		if !ok {
			if p.readErr != nil {
				return "", false, &IOError{Op: "read", Err: p.readErr}
			}
			return "", false, nil
		}
		return line, true, nil
	case <-p.stopCh:
		return "", false, &IOError{Op: "read", Err: ErrProcessStopped}
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// Stop closes stdin, asks the process to terminate and kills it if it is
// still alive after grace. Calling Stop more than once is a no-op.
func (p *Process) Stop(grace time.Duration) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	_ = p.stdin.Close()

	if p.cmd == nil || p.cmd.Process == nil {
		_ = p.stdout.Close()
		<-p.done
		return nil
	}

	if runtime.GOOS == "windows" {
		_ = p.cmd.Process.Kill()
	} else if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to signal engine process", "error", err)
	}

	select {
	case <-p.done:
	case <-time.After(grace):
		p.logger.Warn("Engine did not exit in time, killing", "grace", grace)
		_ = p.cmd.Process.Kill()
		<-p.done
	}

	if p.exitErr != nil {
		p.logger.Debug("Engine process exited", "error", p.exitErr)
	}
	p.logger.Info("Engine process stopped")
	return nil
}

// Exited is closed once the engine's output has ended and, for real child
// processes, the process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.done
}

// ExitErr returns the wait status after Exited is closed.
func (p *Process) ExitErr() error {
	select {
	case <-p.done:
		return p.exitErr
	default:
		return nil
	}
}

// Running reports whether the process has neither been stopped nor exited.
func (p *Process) Running() bool {
	if p.isStopped() {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Pid returns the OS process id, or 0 for pipe-backed processes.
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *Process) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
