package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"adorable/internal/events"
	"adorable/internal/logging"
)

const wsReadLimit = 512 * 1024

// safeConn serializes writes to a websocket connection.
type safeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
}

func newSafeConn(conn *websocket.Conn) *safeConn {
	return &safeConn{conn: conn}
}

// WriteJSON writes v as one text message. Writes after Close are ignored.
func (sc *safeConn) WriteJSON(v any) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	if sc.closed {
		return nil
	}
	sc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return sc.conn.WriteJSON(v)
}

func (sc *safeConn) Close() error {
	sc.writeMu.Lock()
	if !sc.closed {
		sc.closed = true
		sc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}
	sc.writeMu.Unlock()
	return sc.conn.Close()
}

// handleEditWebSocket runs one edit per connection. The client sends an
// edit request as its first message and receives the event stream; the
// connection is closed after done.
func (s *Server) handleEditWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.pipeline.Store().GetProject(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", "error", err)
		return
	}
	sc := newSafeConn(conn)
	defer sc.Close()

	conn.SetReadLimit(wsReadLimit)
	var req editRequest
	if err := conn.ReadJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		sc.WriteJSON(map[string]any{"type": events.TypeError, "message": "Message not found"})
		sc.WriteJSON(events.Done())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Any read error after the request means the client went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logging.Debug("websocket closed", "project", id, "error", err)
				}
				return
			}
		}
	}()

	stream := s.pipeline.NewStream()
	go s.pipeline.Edit(ctx, id, req.Message, req.messages(), stream)

	writer := events.WriterFunc(func(ev events.Event) error {
		return sc.WriteJSON(ev)
	})
	if err := events.Pump(ctx, stream, writer); err != nil {
		logging.Info("websocket client left before done", "project", id, "error", err)
	}
}
