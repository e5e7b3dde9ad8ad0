package gtp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmmcquay/katago-web/internal/logging"
)

// DefaultCommandTimeout bounds a single exchange when no timeout is configured.
const DefaultCommandTimeout = 30 * time.Second

// Conn is the line transport a Channel talks over. *Process implements it.
type Conn interface {
	WriteLine(text string) error
	ReadLine(ctx context.Context) (string, bool, error)
}

// Reply is one framed engine response.
type Reply struct {
	ID      int
	Success bool
	// Lines holds the reply body: the text after the sigil on the first line
	// (when present) followed by every further line up to the terminator.
	Lines []string
	Text  string

	// Closed is set when a stream ended because the engine closed its output.
	Closed bool
}

// Err returns a *CommandError for failure replies and nil otherwise.
func (r *Reply) Err(command string) error {
	if r.Success {
		return nil
	}
	return &CommandError{Command: command, Message: r.Text}
}

// StreamOptions controls how a streaming command is stopped.
type StreamOptions struct {
	// Window is how long lines are collected before the stream is stopped.
	// Zero means half of the exchange timeout.
	Window time.Duration

	// StopWhen is consulted after every collected line.
	StopWhen func(lines []string) bool
}

// Observer is told about every finished exchange.
type Observer func(command string, duration time.Duration, err error)

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithTimeout sets the default per-command bound.
func WithTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithObserver registers fn to be called after every exchange.
func WithObserver(fn Observer) ChannelOption {
	return func(c *Channel) {
		c.observer = fn
	}
}

// Channel runs one command at a time against an attached Conn and frames the
// replies. Commands are sent with numeric ids so replies to abandoned
// commands can be recognised and skipped.
type Channel struct {
	// mu is held for a whole exchange.
	mu     sync.Mutex
	nextID int
	stale  Conn

	connMu sync.RWMutex
	conn   Conn

	timeout  time.Duration
	observer Observer
	logger   logging.ContextLogger
}

// NewChannel creates a detached channel.
func NewChannel(logger logging.ContextLogger, opts ...ChannelOption) *Channel {
	c := &Channel{
		timeout: DefaultCommandTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach connects the channel to a transport.
func (c *Channel) Attach(conn Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn = conn
}

// Detach disconnects the transport. It does not wait for an exchange in
// progress; stop the underlying process to make that exchange fail.
func (c *Channel) Detach() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn = nil
}

// Attached reports whether a transport is connected.
func (c *Channel) Attached() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}

// Timeout returns the default per-command bound.
func (c *Channel) Timeout() time.Duration {
	return c.timeout
}

// Send runs command with the default timeout.
func (c *Channel) Send(ctx context.Context, command string) (*Reply, error) {
	return c.exchange(ctx, command, c.timeout, StreamOptions{})
}

// SendTimeout runs command with an explicit bound.
func (c *Channel) SendTimeout(ctx context.Context, command string, timeout time.Duration) (*Reply, error) {
	return c.exchange(ctx, command, timeout, StreamOptions{})
}

// SendStream runs a streaming command. The timeout bounds the wait for the
// reply header and the final drain; opts.Window bounds collection.
func (c *Channel) SendStream(ctx context.Context, command string, timeout time.Duration, opts StreamOptions) (*Reply, error) {
	return c.exchange(ctx, command, timeout, opts)
}

func (c *Channel) exchange(ctx context.Context, command string, timeout time.Duration, opts StreamOptions) (*Reply, error) {
	if err := validateCommand(command); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = c.timeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// The caller may have run out of time waiting for the channel. Nothing
	// was written, so the stream stays in step.
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s waiting for channel", ErrTimeout, CommandName(command))
		}
		return nil, err
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return nil, ErrProcessNotReady
	}

	name := CommandName(command)
	framing := FramingFor(command)
	c.nextID++
	id := c.nextID

	start := time.Now()
	reply, err := c.roundTrip(ctx, conn, id, command, framing, timeout, opts)
	elapsed := time.Since(start)

	if c.observer != nil {
		c.observer(name, elapsed, err)
	}
	if err != nil {
		c.logger.Debug("Engine command failed",
			"command", command,
			"id", id,
			"duration", elapsed.String(),
			"error", err.Error(),
		)
		return nil, err
	}

	c.logger.Debug("Engine command completed",
		"command", command,
		"id", id,
		"duration", elapsed.String(),
		"success", reply.Success,
		"lines", len(reply.Lines),
	)
	return reply, nil
}

func (c *Channel) roundTrip(ctx context.Context, conn Conn, id int, command string, framing Framing, timeout time.Duration, opts StreamOptions) (*Reply, error) {
	bound := timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < bound {
			bound = left
		}
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := conn.WriteLine(strconv.Itoa(id) + " " + command); err != nil {
		return nil, asIOError("write", err)
	}

	reply, err := c.readReply(opCtx, conn, id, framing, timeout, opts)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			c.stale = conn
			if framing == FrameStream {
				// Interrupt the stream so its tail can be skipped as stale.
				_ = conn.WriteLine("")
			}
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, CommandName(command), bound.Round(time.Millisecond))
		case errors.Is(err, context.Canceled):
			c.stale = conn
			if framing == FrameStream {
				_ = conn.WriteLine("")
			}
			return nil, err
		}
		return nil, err
	}

	if c.stale == conn {
		c.stale = nil
	}
	reply.Text = strings.TrimSpace(strings.Join(reply.Lines, "\n"))
	return reply, nil
}

func (c *Channel) readReply(ctx context.Context, conn Conn, id int, framing Framing, timeout time.Duration, opts StreamOptions) (*Reply, error) {
	var reply *Reply
	for reply == nil {
		line, err := readLine(ctx, conn)
		if err != nil {
			return nil, err
		}
		if isBlank(line) {
			continue
		}

		h, ok := parseHeader(line)
		if !ok {
			if c.stale == conn {
				// Leftover output of an abandoned command.
				continue
			}
			_ = skipToBlank(ctx, conn)
			return nil, fmt.Errorf("%w: %q", ErrMalformedReply, line)
		}
		if h.hasID && h.id != id {
			c.logger.Debug("Discarding stale engine reply", "id", h.id, "expected", id)
			if err := skipToBlank(ctx, conn); err != nil {
				return nil, err
			}
			continue
		}

		reply = &Reply{ID: id, Success: h.success}
		if h.rest != "" {
			reply.Lines = append(reply.Lines, h.rest)
		}
	}

	if framing == FrameStream {
		return c.readStream(ctx, conn, reply, timeout, opts)
	}

	for {
		line, err := readLine(ctx, conn)
		if err != nil {
			return nil, err
		}
		if isBlank(line) {
			return reply, nil
		}
		reply.Lines = append(reply.Lines, line)
	}
}

// readStream collects a streaming body. It completes when the stream closes,
// when the engine ends the reply on its own, or after the stop line has been
// written and the engine's terminating blank line has been read.
func (c *Channel) readStream(ctx context.Context, conn Conn, reply *Reply, timeout time.Duration, opts StreamOptions) (*Reply, error) {
	window := opts.Window
	if window <= 0 {
		window = timeout / 2
	}
	windowCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	stopped := false
	stop := func() error {
		stopped = true
		if err := conn.WriteLine(""); err != nil {
			return asIOError("write", err)
		}
		return nil
	}

	for {
		readCtx := ctx
		if !stopped {
			readCtx = windowCtx
		}

		line, ok, err := conn.ReadLine(readCtx)
		if err != nil {
			if !stopped && windowCtx.Err() != nil && ctx.Err() == nil {
				if err := stop(); err != nil {
					return nil, err
				}
				continue
			}
			return nil, asReadError(err)
		}
		if !ok {
			reply.Closed = true
			return reply, nil
		}
		if isBlank(line) {
			return reply, nil
		}

		reply.Lines = append(reply.Lines, line)
		if !stopped && opts.StopWhen != nil && opts.StopWhen(reply.Lines) {
			if err := stop(); err != nil {
				return nil, err
			}
		}
	}
}

type header struct {
	success bool
	id      int
	hasID   bool
	rest    string
}

// parseHeader splits a reply's first line into sigil, optional id and text.
func parseHeader(line string) (header, bool) {
	line = strings.TrimLeft(line, " \t")
	if line == "" {
		return header{}, false
	}

	var h header
	switch line[0] {
	case '=':
		h.success = true
	case '?':
	default:
		return header{}, false
	}

	body := line[1:]
	i := 0
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		i++
	}
	if i > 0 {
		h.hasID = true
		id, err := strconv.Atoi(body[:i])
		if err != nil {
			id = -1
		}
		h.id = id
	}
	h.rest = strings.TrimSpace(body[i:])
	return h, true
}

func readLine(ctx context.Context, conn Conn) (string, error) {
	line, ok, err := conn.ReadLine(ctx)
	if err != nil {
		return "", asReadError(err)
	}
	if !ok {
		return "", &IOError{Op: "read", Err: io.ErrUnexpectedEOF}
	}
	return line, nil
}

func skipToBlank(ctx context.Context, conn Conn) error {
	for {
		line, err := readLine(ctx, conn)
		if err != nil {
			return err
		}
		if isBlank(line) {
			return nil
		}
	}
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func validateCommand(command string) error {
	if isBlank(command) {
		return fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}
	for i := 0; i < len(command); i++ {
		b := command[i]
		switch {
		case b == '\n' || b == '\r':
			return fmt.Errorf("%w: embedded newline in %q", ErrInvalidCommand, command)
		case b >= 0x80:
			return fmt.Errorf("%w: non-ASCII byte in %q", ErrInvalidCommand, command)
		case b < 0x20 && b != '\t':
			return fmt.Errorf("%w: control byte in %q", ErrInvalidCommand, command)
		}
	}
	return nil
}

func asIOError(op string, err error) error {
	if IsIOError(err) {
		return err
	}
	return &IOError{Op: op, Err: err}
}

// asReadError keeps context errors as they are so the caller can tell a
// timeout from a broken pipe.
func asReadError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return asIOError("read", err)
}
