package progress

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Client wraps one websocket connection subscribed to a flow's progress
// events.
type Client struct {
	conn *websocket.Conn
	send chan Event
}

// NewClient wraps conn, allocating its outgoing event buffer.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn, send: make(chan Event, sendBufferSize)}
}

// WritePump drains send and writes each Event as JSON, plus periodic pings,
// until send is closed or the connection errors. Run it in its own
// goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump discards inbound frames (this hub is publish-only to the
// client) but must run so the pong handler processes keepalives and a
// closed connection is detected; call Hub.Unregister once it returns.
func (c *Client) ReadPump(pongWaitOverride time.Duration) {
	limit := pongWait
	if pongWaitOverride > 0 {
		limit = pongWaitOverride
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(limit))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(limit))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
