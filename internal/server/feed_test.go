package server

import (
	"bufio"
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/affective-thought-kernel/internal/events"
	"github.com/affective-thought-kernel/internal/jsonx"
	"github.com/affective-thought-kernel/internal/thought"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func readFeedEvent(t *testing.T, r *bufio.Reader, conn net.Conn) thought.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := r.ReadBytes('\n')
	require.NoError(t, err)
	var ev thought.Event
	require.NoError(t, jsonx.Unmarshal(line, &ev))
	return ev
}

func TestFeedStreamsEventsAndTakesActivity(t *testing.T) {
	bus := events.NewBus(16, zaptest.NewLogger(t))
	defer bus.Close()

	var activity atomic.Int32
	feed := NewFeed(FeedConfig{Addr: freeAddr(t)}, bus, func() { activity.Add(1) }, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- feed.Run(ctx) }()

	select {
	case <-feed.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not boot")
	}

	conn, err := net.Dial("tcp", feed.config.Addr)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return feed.Connections() == 1 }, 2*time.Second, 5*time.Millisecond)

	r := bufio.NewReader(conn)
	bus.Emit(thought.Event{Type: thought.EventChar, Char: "x"})
	bus.Emit(thought.Event{Type: thought.EventThoughtEnd, Thought: &thought.Thought{ID: "t1", Content: "hm"}})

	ev := readFeedEvent(t, r, conn)
	assert.Equal(t, thought.EventThoughtEnd, ev.Type)
	require.NotNil(t, ev.Thought)
	assert.Equal(t, "t1", ev.Thought.ID)

	_, err = conn.Write([]byte("ping\n"))
	require.NoError(t, err)
	assert.Equal(t, thought.EventType("pong"), readFeedEvent(t, r, conn).Type)

	_, err = conn.Write([]byte("activ"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("ity\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return activity.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}
}

func TestFeedSanitizesErrors(t *testing.T) {
	bus := events.NewBus(16, zaptest.NewLogger(t))
	defer bus.Close()
	feed := NewFeed(FeedConfig{Addr: freeAddr(t), IncludeChars: true}, bus, nil, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)
	<-feed.Ready()

	conn, err := net.Dial("tcp", feed.config.Addr)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return feed.Connections() == 1 }, 2*time.Second, 5*time.Millisecond)

	r := bufio.NewReader(conn)
	bus.Emit(thought.Event{Type: thought.EventChar, Char: "a"})
	assert.Equal(t, "a", readFeedEvent(t, r, conn).Char)

	bus.Emit(thought.Event{Type: thought.EventThoughtError, Error: "dial http://10.0.0.7:11434 failed"})
	ev := readFeedEvent(t, r, conn)
	assert.Equal(t, thought.EventThoughtError, ev.Type)
	assert.NotContains(t, ev.Error, "10.0.0.7")
}
