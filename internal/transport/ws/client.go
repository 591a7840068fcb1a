package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ref   string          `json:"ref,omitempty"`
}

type OutboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Ref   string `json:"ref,omitempty"`
}

// Ack answers a client request. Business failures come back here instead of
// closing the socket.
type Ack struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type Client struct {
	id        string
	userID    uint
	namespace string
	hub       *Hub
	conn      *websocket.Conn

	send     chan []byte
	sendOnce sync.Once
	// guarded by hub.mu
	topics map[string]struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint, namespace string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		id:        uuid.NewString(),
		userID:    userID,
		namespace: namespace,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, buffer),
		topics:    make(map[string]struct{}),
	}
}

func (c *Client) closeSend() {
	c.sendOnce.Do(func() { close(c.send) })
}

// enqueue must be called with hub.mu held so it never races closeSend.
func (c *Client) enqueue(data []byte) bool {
	if c.topics == nil {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) reply(ref string, ack Ack) {
	data, err := json.Marshal(OutboundFrame{Event: "ack", Ref: ref, Data: ack})
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	ok := c.enqueue(data)
	c.hub.mu.RUnlock()
	if !ok {
		slog.Warn("websocket ack dropped, send buffer full", "conn_id", c.id)
	}
}

func (c *Client) readPump(ctx context.Context, maxMessageBytes int64, pongWait time.Duration, dispatch func(context.Context, *Client, InboundFrame)) {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	if maxMessageBytes > 0 {
		c.conn.SetReadLimit(maxMessageBytes)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info("websocket closed unexpectedly", "namespace", c.namespace, "conn_id", c.id, "error", err)
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.reply("", Ack{OK: false, Error: "malformed frame"})
			continue
		}
		dispatch(ctx, c, frame)
	}
}

func (c *Client) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
