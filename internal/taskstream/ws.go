package taskstream

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

// pingInterval matches spec §6: "pings every 60 s".
const pingInterval = 60 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades r to a WebSocket and streams envelopes for task, sending
// a backlog first if the client supplied ?last_event_id=. One connection
// per task (spec §6).
func (s *Stream) ServeWS(w http.ResponseWriter, r *http.Request, task browsertypes.TaskId, log *slog.Logger) {
	if log == nil {
		log = s.log
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var lastEventID *uint64
	if raw := r.URL.Query().Get("last_event_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			lastEventID = &id
		}
	}

	live, backlog, unsubscribe := s.Subscribe(task, lastEventID)
	defer unsubscribe()

	for _, env := range backlog {
		if err := conn.WriteJSON(env); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	// A reader goroutine drains and discards client frames so control
	// frames (close, pong) are processed; the connection is otherwise
	// server-push only.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case env, ok := <-live:
			if !ok {
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
