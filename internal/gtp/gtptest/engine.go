// Package gtptest provides a scripted GTP engine that runs in-process over
// pipes, for exercising the channel and the session without a real binary.
package gtptest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmmcquay/katago-web/internal/gtp"
	"github.com/dmmcquay/katago-web/internal/logging"
)

// Handler answers one command. A non-nil error becomes a "?" reply.
type Handler func(args []string) (string, error)

// DefaultAnalysis is a kata-analyze snapshot with two candidates for 19x19.
var DefaultAnalysis = []string{
	"info move Q16 visits 12 winrate 0.53 scoreMean 0.9 scoreLead 0.8 prior 0.31 lcb 0.49 order 0 pv Q16 D4 " +
		"info move D4 visits 8 winrate 0.51 scoreMean 0.6 scoreLead 0.5 prior 0.22 lcb 0.46 order 1 pv D4 Q16",
	"info move Q16 visits 60 winrate 0.54 scoreMean 1.3 scoreLead 1.1 prior 0.31 lcb 0.52 order 0 pv Q16 D4 D16 " +
		"info move D4 visits 35 winrate 0.52 scoreMean 0.7 scoreLead 0.6 prior 0.22 lcb 0.49 order 1 pv D4 Q16 " +
		"rootInfo visits 100 winrate 0.535 scoreLead 0.95 scoreMean 1.0",
}

// Engine is a fake GTP engine. Configure it before calling Process.
type Engine struct {
	Name     string
	Version  string
	Commands []string

	// Genmove is the vertex returned by genmove.
	Genmove string

	// Analysis holds the info lines emitted by kata-analyze and lz-analyze,
	// one every AnalysisInterval. The last line repeats until stopped.
	Analysis         []string
	AnalysisInterval time.Duration

	// ReplyDelay is slept before every reply.
	ReplyDelay time.Duration

	mu         sync.Mutex
	handlers   map[string]Handler
	hang       map[string]bool
	delays     map[string]time.Duration
	crashAfter int
	received   []string
	moves      []string
	boardSize  int

	inFlight   atomic.Bool
	violations atomic.Int32
}

// New returns an engine that identifies as KataGo and supports kata-analyze.
func New() *Engine {
	return &Engine{
		Name:    "KataGo",
		Version: "1.15.3",
		Commands: []string{
			"protocol_version", "name", "version", "known_command", "list_commands",
			"quit", "boardsize", "clear_board", "komi", "play", "genmove", "undo",
			"showboard", "kata-analyze", "lz-analyze", "kata-set-param",
		},
		Genmove:          "Q16",
		Analysis:         DefaultAnalysis,
		AnalysisInterval: 5 * time.Millisecond,
		handlers:         make(map[string]Handler),
		hang:             make(map[string]bool),
		delays:           make(map[string]time.Duration),
		boardSize:        19,
	}
}

// Handle overrides the reply to a command.
func (e *Engine) Handle(name string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = h
}

// Hang makes the engine read the command and never answer it.
func (e *Engine) Hang(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hang[name] = true
}

// Delay answers the command only after d.
func (e *Engine) Delay(name string, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delays[name] = d
}

// CrashAfter makes the engine close its pipes on receiving the n-th command.
func (e *Engine) CrashAfter(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.crashAfter = n
}

// Received returns the commands seen so far, without ids.
func (e *Engine) Received() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.received...)
}

// ReceivedNames returns the command names seen so far.
func (e *Engine) ReceivedNames() []string {
	var names []string
	for _, cmd := range e.Received() {
		names = append(names, gtp.CommandName(cmd))
	}
	return names
}

// Moves returns the vertices currently played on the engine's board.
func (e *Engine) Moves() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.moves...)
}

// Violations counts commands that arrived while another was unanswered.
func (e *Engine) Violations() int {
	return int(e.violations.Load())
}

// Process starts serving and returns the client side as a *gtp.Process.
func (e *Engine) Process(logger logging.ContextLogger) *gtp.Process {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	go e.serve(inR, outW)
	return gtp.NewPipeProcess(inW, outR, logger)
}

type stream struct {
	stop chan struct{}
	done chan struct{}
}

func (e *Engine) serve(in *io.PipeReader, out *io.PipeWriter) {
	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !e.inFlight.CompareAndSwap(false, true) {
				e.violations.Add(1)
			}
			lines <- line
		}
	}()

	var writeMu sync.Mutex
	write := func(s string) bool {
		writeMu.Lock()
		defer writeMu.Unlock()
		_, err := io.WriteString(out, s)
		return err == nil
	}

	var active *stream
	endStream := func() {
		if active == nil {
			return
		}
		close(active.stop)
		<-active.done
		active = nil
		write("\n")
	}

	defer func() {
		endStream()
		_ = out.Close()
	}()

	count := 0
	for line := range lines {
		if active != nil {
			endStream()
		}
		if line == "" {
			continue
		}

		count++
		id, name, args := splitCommand(line)

		e.mu.Lock()
		e.received = append(e.received, strings.Join(append([]string{name}, args...), " "))
		crash := e.crashAfter > 0 && count >= e.crashAfter
		hang := e.hang[name]
		delay := e.delays[name] + e.ReplyDelay
		e.mu.Unlock()

		if crash {
			_ = in.CloseWithError(io.ErrClosedPipe)
			_ = out.CloseWithError(io.EOF)
			return
		}
		if hang {
			e.inFlight.Store(false)
			continue
		}
		if delay > 0 {
			time.Sleep(delay)
		}

		if name == "kata-analyze" || name == "lz-analyze" {
			if !e.supports(name) {
				e.inFlight.Store(false)
				write(fmt.Sprintf("?%s unknown command\n\n", id))
				continue
			}
			e.inFlight.Store(false)
			if !write(fmt.Sprintf("=%s\n", id)) {
				return
			}
			active = e.startStream(write)
			continue
		}

		text, err := e.dispatch(name, args)
		e.inFlight.Store(false)
		var reply string
		if err != nil {
			reply = fmt.Sprintf("?%s %s\n\n", id, err.Error())
		} else {
			reply = strings.TrimRight(fmt.Sprintf("=%s %s", id, text), " ") + "\n\n"
		}
		if !write(reply) {
			return
		}
		if name == "quit" {
			return
		}
	}
}

func (e *Engine) startStream(write func(string) bool) *stream {
	s := &stream{stop: make(chan struct{}), done: make(chan struct{})}
	analysis := append([]string(nil), e.Analysis...)
	interval := e.AnalysisInterval
	go func() {
		defer close(s.done)
		if len(analysis) == 0 {
			<-s.stop
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if !write(analysis[i] + "\n") {
					return
				}
				if i < len(analysis)-1 {
					i++
				}
			}
		}
	}()
	return s
}

func (e *Engine) supports(name string) bool {
	for _, c := range e.Commands {
		if c == name {
			return true
		}
	}
	return false
}

func (e *Engine) dispatch(name string, args []string) (string, error) {
	e.mu.Lock()
	h, ok := e.handlers[name]
	e.mu.Unlock()
	if ok {
		return h(args)
	}
	if !e.supports(name) {
		return "", fmt.Errorf("unknown command")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch name {
	case "protocol_version":
		return "2", nil
	case "name":
		return e.Name, nil
	case "version":
		return e.Version, nil
	case "list_commands":
		return strings.Join(e.Commands, "\n"), nil
	case "known_command":
		if len(args) == 1 && e.supports(args[0]) {
			return "true", nil
		}
		return "false", nil
	case "boardsize":
		if len(args) != 1 {
			return "", fmt.Errorf("syntax error")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || !gtp.ValidBoardSize(n) {
			return "", fmt.Errorf("unacceptable size")
		}
		e.boardSize = n
		e.moves = nil
		return "", nil
	case "clear_board":
		e.moves = nil
		return "", nil
	case "komi":
		if len(args) != 1 {
			return "", fmt.Errorf("syntax error")
		}
		if _, err := strconv.ParseFloat(args[0], 64); err != nil {
			return "", fmt.Errorf("syntax error")
		}
		return "", nil
	case "play":
		if len(args) != 2 {
			return "", fmt.Errorf("syntax error")
		}
		v := strings.ToUpper(args[1])
		if v != "PASS" {
			if _, err := gtp.Decode(v, e.boardSize); err != nil {
				return "", fmt.Errorf("illegal move")
			}
			for _, m := range e.moves {
				if m == v {
					return "", fmt.Errorf("illegal move")
				}
			}
		}
		e.moves = append(e.moves, v)
		return "", nil
	case "genmove":
		// Like a real engine, genmove plays its answer; resign leaves the board.
		if !strings.EqualFold(e.Genmove, "resign") {
			e.moves = append(e.moves, strings.ToUpper(e.Genmove))
		}
		return e.Genmove, nil
	case "undo":
		if len(e.moves) == 0 {
			return "", fmt.Errorf("cannot undo")
		}
		e.moves = e.moves[:len(e.moves)-1]
		return "", nil
	case "showboard":
		return fmt.Sprintf("\n%d moves", len(e.moves)), nil
	}
	return "", nil
}

func splitCommand(line string) (id, name string, args []string) {
	fields := strings.Fields(line)
	if len(fields) > 0 {
		if _, err := strconv.Atoi(fields[0]); err == nil {
			id = fields[0]
			fields = fields[1:]
		}
	}
	if len(fields) == 0 {
		return id, "", nil
	}
	return id, fields[0], fields[1:]
}
