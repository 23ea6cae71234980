package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 64 * 1024
)

// Client wraps one websocket session and feeds its events into the router.
type Client struct {
	router *Router
	conn   *websocket.Conn
	send   chan []byte
	id     string
	userID string
}

func NewClient(router *Router, conn *websocket.Conn, id, userID string) *Client {
	return &Client{
		router: router,
		conn:   conn,
		send:   make(chan []byte, 256),
		id:     id,
		userID: userID,
	}
}

func (c *Client) ID() string { return c.id }

// Send implements Conn. It never blocks; a client that cannot keep up loses
// messages rather than stalling the event loop.
func (c *Client) Send(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal message", "error", err)
		return
	}

	select {
	case c.send <- data:
	default:
		slog.Warn("client send buffer full, dropping message", "conn", c.id, "event", msg.Event)
	}
}

// ReadPump pulls frames until the connection dies, then reports the
// disconnect so the router can sweep this connection's state.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.router.Disconnect(c.id)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMsgSize)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return
			}
			slog.Debug("read error", "error", err, "conn", c.id)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid message frame", "error", err, "conn", c.id)
			continue
		}

		c.router.HandleMessage(c.id, &msg)
	}
}

func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case data := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("write error", "error", err, "conn", c.id)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
