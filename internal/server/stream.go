package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/affective-thought-kernel/internal/jsonx"
	"github.com/affective-thought-kernel/internal/thought"
)

const maxClientMessage = 4096

// ClientMessage is what websocket clients may send. "activity" marks the
// user as present and cuts a streaming thought short; "ping" is answered
// with "pong".
type ClientMessage struct {
	Type string `json:"type"`
}

func (s *Server) handleThoughtStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, release := s.kernel.Bus().Subscribe()
	defer release()

	s.logger.Info("Thought stream connected", zap.String("remote", r.RemoteAddr))

	pongs := make(chan struct{}, 1)
	done := make(chan struct{})
	go s.readClient(conn, pongs, done)

	s.writeEvents(conn, events, pongs, done)
	s.logger.Info("Thought stream closed", zap.String("remote", r.RemoteAddr))
}

// readClient owns reads on conn. It closes done when the client goes away.
func (s *Server) readClient(conn *websocket.Conn, pongs chan<- struct{}, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxClientMessage)
	readWait := 2 * s.config.PingInterval
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		var msg ClientMessage
		if err := jsonx.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "activity":
			s.kernel.RecordActivity()
		case "ping":
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
}

// writeEvents owns writes on conn until the client leaves or the bus closes.
func (s *Server) writeEvents(conn *websocket.Conn, events <-chan thought.Event, pongs <-chan struct{}, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case ev, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if ev.Error != "" {
				ev.Error = SanitizeString(ev.Error)
			}
			data, err := jsonx.Marshal(ev)
			if err != nil {
				s.logger.Warn("Failed to encode event", zap.Error(err))
				continue
			}
			if !s.write(conn, websocket.TextMessage, data) {
				return
			}

		case <-pongs:
			if !s.write(conn, websocket.TextMessage, []byte(`{"type":"pong"}`)) {
				return
			}

		case <-ticker.C:
			if !s.write(conn, websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, messageType int, data []byte) bool {
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
	if err := conn.WriteMessage(messageType, data); err != nil {
		s.logger.Debug("WebSocket write failed", zap.Error(err))
		return false
	}
	return true
}
