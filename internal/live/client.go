package live

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

var clientIDCounter atomic.Uint64

// Client is one websocket connection.
type Client struct {
	id     uint64
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan Message
}

func newClient(h *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		id:     clientIDCounter.Add(1),
		userID: userID,
		hub:    h,
		conn:   conn,
		send:   make(chan Message, 64),
	}
}

func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}

// readPump only answers pings and notices disconnects; clients do not send
// anything else.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.log.Debug("live client read error", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if msg.Type == messageTypePing {
			c.hub.mu.RLock()
			_, live := c.hub.clients[c]
			if live {
				select {
				case c.send <- Message{Type: messageTypePong}:
				default:
				}
			}
			c.hub.mu.RUnlock()
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case m, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(m); err != nil {
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
