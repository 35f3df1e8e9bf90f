package fanout

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// controlFrame is what clients send: scope management only, replies go
// through the REST API.
type controlFrame struct {
	Action   string `json:"action"`
	ThreadID string `json:"thread_id"`
}

// ServeConn runs one client connection until it closes: the read loop
// handles subscribe/unsubscribe frames, the write loop drains the session
// queue. Blocks until the connection is gone; the session is removed on
// return.
func (h *Hub) ServeConn(conn *websocket.Conn, session *Session) {
	defer func() {
		h.Remove(session.ID)
		_ = conn.Close()
	}()

	go h.writeLoop(conn, session)
	h.readLoop(conn, session)
}

func (h *Hub) readLoop(conn *websocket.Conn, session *Session) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("connection closed unexpectedly",
					slog.String("session_id", session.ID),
					slog.Any("error", err))
			}
			return
		}

		var frame controlFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		threadID := strings.TrimSpace(frame.ThreadID)
		if threadID == "" {
			continue
		}
		switch frame.Action {
		case "subscribe":
			h.Subscribe(session.ID, ThreadScope(threadID))
		case "unsubscribe":
			h.Unsubscribe(session.ID, ThreadScope(threadID))
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, session *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-session.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
