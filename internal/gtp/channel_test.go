package gtp_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/katago-web/internal/gtp"
	"github.com/dmmcquay/katago-web/internal/gtp/gtptest"
	"github.com/dmmcquay/katago-web/internal/logging"
)

func testLogger() logging.ContextLogger {
	return logging.NewLoggerAdapter(logging.NewLogger("test: ", "error"))
}

func newFakeChannel(t *testing.T, engine *gtptest.Engine, opts ...gtp.ChannelOption) *gtp.Channel {
	t.Helper()
	proc := engine.Process(testLogger())
	t.Cleanup(func() { _ = proc.Stop(time.Second) })

	ch := gtp.NewChannel(testLogger(), opts...)
	ch.Attach(proc)
	return ch
}

// scriptConn replays canned output lines and records what was written.
type scriptConn struct {
	mu      sync.Mutex
	written []string
	lines   chan string
}

func newScriptConn(lines ...string) *scriptConn {
	c := &scriptConn{lines: make(chan string, len(lines)+1)}
	for _, l := range lines {
		c.lines <- l
	}
	return c
}

func (c *scriptConn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, text)
	return nil
}

func (c *scriptConn) ReadLine(ctx context.Context) (string, bool, error) {
	select {
	case l, ok := <-c.lines:
		return l, ok, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func (c *scriptConn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

func TestChannelSend(t *testing.T) {
	ch := newFakeChannel(t, gtptest.New())

	t.Run("single line", func(t *testing.T) {
		reply, err := ch.Send(context.Background(), "name")
		require.NoError(t, err)
		assert.True(t, reply.Success)
		assert.Equal(t, "KataGo", reply.Text)
	})

	t.Run("multi line", func(t *testing.T) {
		reply, err := ch.Send(context.Background(), "list_commands")
		require.NoError(t, err)
		assert.True(t, reply.Success)
		assert.Contains(t, reply.Lines, "kata-analyze")
		assert.Contains(t, reply.Lines, "protocol_version")
	})

	t.Run("empty success", func(t *testing.T) {
		reply, err := ch.Send(context.Background(), "clear_board")
		require.NoError(t, err)
		assert.True(t, reply.Success)
		assert.Empty(t, reply.Text)
		assert.NoError(t, reply.Err("clear_board"))
	})

	t.Run("failure reply", func(t *testing.T) {
		reply, err := ch.Send(context.Background(), "no_such_command")
		require.NoError(t, err)
		assert.False(t, reply.Success)
		assert.Equal(t, "unknown command", reply.Text)

		var cmdErr *gtp.CommandError
		require.ErrorAs(t, reply.Err("no_such_command"), &cmdErr)
		assert.Equal(t, "unknown command", cmdErr.Message)
	})
}

func TestChannelNotAttached(t *testing.T) {
	ch := gtp.NewChannel(testLogger())
	assert.False(t, ch.Attached())

	_, err := ch.Send(context.Background(), "name")
	assert.ErrorIs(t, err, gtp.ErrProcessNotReady)

	ch.Attach(newScriptConn())
	assert.True(t, ch.Attached())
	ch.Detach()
	_, err = ch.Send(context.Background(), "name")
	assert.ErrorIs(t, err, gtp.ErrProcessNotReady)
}

func TestChannelRejectsInvalidCommands(t *testing.T) {
	conn := newScriptConn()
	ch := gtp.NewChannel(testLogger())
	ch.Attach(conn)

	for _, cmd := range []string{"", "   ", "play b D4\nname", "name\r", "play b Dé4", "name\x00"} {
		_, err := ch.Send(context.Background(), cmd)
		assert.ErrorIs(t, err, gtp.ErrInvalidCommand, "command %q", cmd)
	}
	assert.Empty(t, conn.Written(), "invalid commands must not reach the engine")
}

func TestChannelPrefixesIDs(t *testing.T) {
	conn := newScriptConn("=1 KataGo", "", "=2", "")
	ch := gtp.NewChannel(testLogger())
	ch.Attach(conn)

	reply, err := ch.Send(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, 1, reply.ID)
	assert.Equal(t, "KataGo", reply.Text)

	_, err = ch.Send(context.Background(), "clear_board")
	require.NoError(t, err)

	assert.Equal(t, []string{"1 name", "2 clear_board"}, conn.Written())
}

func TestChannelAcceptsRepliesWithoutID(t *testing.T) {
	ch := gtp.NewChannel(testLogger())
	ch.Attach(newScriptConn("= 2", ""))

	reply, err := ch.Send(context.Background(), "protocol_version")
	require.NoError(t, err)
	assert.Equal(t, "2", reply.Text)
}

func TestChannelTimeout(t *testing.T) {
	engine := gtptest.New()
	engine.Hang("genmove")
	ch := newFakeChannel(t, engine)

	start := time.Now()
	_, err := ch.SendTimeout(context.Background(), "genmove b", 50*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, gtp.ErrTimeout)
	assert.Contains(t, err.Error(), "genmove")
	assert.Less(t, elapsed, time.Second, "timeout must fire near the configured bound")

	// The channel stays usable after a timeout.
	reply, err := ch.Send(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, "KataGo", reply.Text)
}

func TestChannelTimeoutReportsCallerDeadline(t *testing.T) {
	engine := gtptest.New()
	engine.Hang("genmove")
	ch := newFakeChannel(t, engine, gtp.WithTimeout(20*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := ch.Send(ctx, "genmove b")

	require.ErrorIs(t, err, gtp.ErrTimeout)
	assert.Contains(t, err.Error(), "genmove after 50ms")
	assert.NotContains(t, err.Error(), "20s")
}

func TestChannelDeadlineSpentWaitingForChannel(t *testing.T) {
	engine := gtptest.New()
	engine.Delay("genmove", 300*time.Millisecond)
	ch := newFakeChannel(t, engine)

	done := make(chan error, 1)
	go func() {
		_, err := ch.SendTimeout(context.Background(), "genmove b", 5*time.Second)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return len(engine.Received()) == 1
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := ch.SendTimeout(ctx, "name", 20*time.Second)
	require.ErrorIs(t, err, gtp.ErrTimeout)
	assert.Contains(t, err.Error(), "waiting for channel")

	require.NoError(t, <-done)
	assert.Equal(t, []string{"genmove"}, engine.ReceivedNames(), "nothing is written once the deadline has passed")

	reply, err := ch.Send(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, "KataGo", reply.Text)
}

func TestChannelDefaultTimeout(t *testing.T) {
	engine := gtptest.New()
	engine.Hang("showboard")
	ch := newFakeChannel(t, engine, gtp.WithTimeout(40*time.Millisecond))

	assert.Equal(t, 40*time.Millisecond, ch.Timeout())
	_, err := ch.Send(context.Background(), "showboard")
	assert.ErrorIs(t, err, gtp.ErrTimeout)
}

func TestChannelDiscardsStaleReply(t *testing.T) {
	engine := gtptest.New()
	engine.Delay("genmove", 100*time.Millisecond)
	ch := newFakeChannel(t, engine)

	_, err := ch.SendTimeout(context.Background(), "genmove b", 20*time.Millisecond)
	require.ErrorIs(t, err, gtp.ErrTimeout)

	// The late "= Q16" for genmove must not be taken as the answer to name.
	reply, err := ch.Send(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, "KataGo", reply.Text)
}

func TestChannelContextCancel(t *testing.T) {
	engine := gtptest.New()
	engine.Hang("genmove")
	ch := newFakeChannel(t, engine)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := ch.Send(ctx, "genmove b")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChannelMalformedReply(t *testing.T) {
	conn := newScriptConn("garbage output", "more garbage", "", "=2 KataGo", "")
	ch := gtp.NewChannel(testLogger())
	ch.Attach(conn)

	_, err := ch.Send(context.Background(), "name")
	require.ErrorIs(t, err, gtp.ErrMalformedReply)

	// The malformed reply was drained; the next exchange is clean.
	reply, err := ch.Send(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, "KataGo", reply.Text)
}

func TestChannelIOErrorOnCrash(t *testing.T) {
	engine := gtptest.New()
	engine.CrashAfter(2)
	ch := newFakeChannel(t, engine)

	_, err := ch.Send(context.Background(), "name")
	require.NoError(t, err)

	_, err = ch.Send(context.Background(), "genmove b")
	require.Error(t, err)
	assert.True(t, gtp.IsIOError(err), "expected IOError, got %v", err)

	_, err = ch.Send(context.Background(), "name")
	assert.True(t, gtp.IsIOError(err), "expected IOError after crash, got %v", err)
}

func TestChannelStreamWindow(t *testing.T) {
	ch := newFakeChannel(t, gtptest.New())

	start := time.Now()
	reply, err := ch.SendStream(context.Background(), "kata-analyze b interval 1", 2*time.Second,
		gtp.StreamOptions{Window: 40 * time.Millisecond})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, reply.Success)
	require.NotEmpty(t, reply.Lines)
	assert.True(t, strings.HasPrefix(reply.Lines[0], "info "))

	// The stream was closed cleanly and the next command works.
	reply, err = ch.Send(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, "KataGo", reply.Text)
}

func TestChannelStreamStopWhen(t *testing.T) {
	ch := newFakeChannel(t, gtptest.New())

	reply, err := ch.SendStream(context.Background(), "kata-analyze b interval 1", 5*time.Second,
		gtp.StreamOptions{
			Window: 4 * time.Second,
			StopWhen: func(lines []string) bool {
				return strings.Contains(lines[len(lines)-1], "visits 60")
			},
		})
	require.NoError(t, err)

	analysis, err := gtp.ParseAnalysis(reply.Lines, 19, gtp.DialectKata)
	require.NoError(t, err)
	best, ok := analysis.Best()
	require.True(t, ok)
	assert.Equal(t, "Q16", best.Move)
	assert.Equal(t, 60, best.Visits)
}

func TestChannelStreamUnsupported(t *testing.T) {
	engine := gtptest.New()
	engine.Commands = []string{"name", "version", "protocol_version", "list_commands"}
	ch := newFakeChannel(t, engine)

	reply, err := ch.SendStream(context.Background(), "kata-analyze b interval 1", time.Second,
		gtp.StreamOptions{Window: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.False(t, reply.Success)
}

func TestChannelStreamClosedCompletes(t *testing.T) {
	conn := newScriptConn("=1", "info move D4 visits 3 winrate 0.5 order 0 pv D4")
	close(conn.lines)

	ch := gtp.NewChannel(testLogger())
	ch.Attach(conn)

	reply, err := ch.SendStream(context.Background(), "kata-analyze b", time.Second,
		gtp.StreamOptions{Window: 500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, []string{"info move D4 visits 3 winrate 0.5 order 0 pv D4"}, reply.Lines)
}

func TestChannelSerializesConcurrentSends(t *testing.T) {
	engine := gtptest.New()
	engine.ReplyDelay = 2 * time.Millisecond
	ch := newFakeChannel(t, engine)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := ch.Send(context.Background(), "name")
			if err == nil && reply.Text != "KataGo" {
				err = errors.New("unexpected reply " + reply.Text)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Zero(t, engine.Violations(), "commands overlapped on the pipe")
	assert.Len(t, engine.Received(), 20)
}

func TestChannelObserver(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	observer := func(command string, d time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, command)
	}
	ch := newFakeChannel(t, gtptest.New(), gtp.WithObserver(observer))

	_, err := ch.Send(context.Background(), "boardsize 9")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"boardsize"}, seen)
}

func TestFramingFor(t *testing.T) {
	tests := []struct {
		command string
		want    gtp.Framing
	}{
		{"name", gtp.FrameBlankLine},
		{"genmove b", gtp.FrameBlankLine},
		{"kata-analyze b interval 10", gtp.FrameStream},
		{"lz-analyze w 50", gtp.FrameStream},
		{"12 kata-analyze b", gtp.FrameStream},
		{"analyze", gtp.FrameStream},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.want, gtp.FramingFor(tt.command))
		})
	}
}
