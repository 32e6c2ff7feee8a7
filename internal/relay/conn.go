package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxFrameSize     int64 = 1024 * 1024
	writeWait              = 10 * time.Second
	watchdogInterval       = time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// envelope is the inbound frame: {"action": ..., "payload": {...}}.
type envelope struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// wsConn serializes writes to one websocket. The inbound loop writes error
// frames and the outbound loop writes events, so writes need a lock.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newWSConn(ws *websocket.Conn) *wsConn {
	ws.SetReadLimit(maxFrameSize)
	return &wsConn{ws: ws}
}

func (c *wsConn) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// writeError sends a caller-only error frame. Delivery is best effort; a
// failed error write surfaces on the next read or write anyway.
func (c *wsConn) writeError(message string) {
	frame, err := json.Marshal(map[string]any{
		"action":  "error",
		"payload": map[string]string{"message": message},
	})
	if err != nil {
		return
	}
	_ = c.Write(frame)
}
