package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/affective-thought-kernel/internal/jsonx"
	"github.com/affective-thought-kernel/internal/thought"
)

func dialStream(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws/thoughts"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) thought.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev thought.Event
	require.NoError(t, jsonx.Unmarshal(data, &ev))
	return ev
}

func TestThoughtStreamDeliversCharacters(t *testing.T) {
	ts, k := newTestServer(t)
	conn := dialStream(t, ts.URL)

	require.Eventually(t, func() bool { return k.Bus().Subscribers() == 1 },
		time.Second, 5*time.Millisecond)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/thoughts/generate", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var typed strings.Builder
	var end *thought.Event
	for end == nil {
		ev := readEvent(t, conn)
		switch ev.Type {
		case thought.EventChar:
			typed.WriteString(ev.Char)
		case thought.EventThoughtEnd:
			end = &ev
		}
	}

	assert.Equal(t, thoughtText, typed.String())
	require.NotNil(t, end.Thought)
	assert.False(t, end.Interrupted)
	assert.Equal(t, thoughtText, end.Thought.Content)
}

func TestThoughtStreamPing(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dialStream(t, ts.URL)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	ev := readEvent(t, conn)
	assert.Equal(t, thought.EventType("pong"), ev.Type)
}

func TestThoughtStreamClosesOnShutdown(t *testing.T) {
	ts, k := newTestServer(t)
	conn := dialStream(t, ts.URL)

	require.Eventually(t, func() bool { return k.Bus().Subscribers() == 1 },
		time.Second, 5*time.Millisecond)
	require.NoError(t, k.Stop())

	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
			return
		}
	}
}
