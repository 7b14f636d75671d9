package fanout

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"videoingest/internal/videomodel"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades r to a WebSocket and streams videoID's status events to
// it until the client disconnects or the request context is cancelled. The
// caller is responsible for confirming videoID exists before calling this.
func (svc *Service) ServeWS(w http.ResponseWriter, r *http.Request, videoID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		svc.logger.Warn("fanout: websocket upgrade failed", "video_id", videoID, "error", err)
		return
	}

	events, unsubscribe := svc.Subscribe(videoID)
	defer unsubscribe()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	readDone := make(chan struct{})
	go func() {
		discardInbound(conn)
		close(readDone)
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-readDone:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// discardInbound reads and drops any client-sent frames so control frames
// (pong, close) are processed by gorilla's read loop; this connection is
// read-only from the client's perspective.
func discardInbound(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, event videomodel.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Default().Warn("fanout: failed to marshal status event", "video_id", event.VideoID, "error", err)
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
