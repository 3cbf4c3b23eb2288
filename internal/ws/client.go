// Package ws carries protocol frames over gorilla websocket connections.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/protocol"
	"github.com/gogotex/gogotex/backend/go-collab/internal/wire"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is one websocket connection. It implements room.Conn.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, buffer int) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues frame without blocking. A client whose queue is full is shut
// down; its read loop then runs the normal leave path.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		metrics.SlowConsumers.Inc()
		logger.Warnf("client %s send buffer full, closing", c.id)
		c.shutdown()
		return false
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump feeds inbound frames to the engine until the peer goes away, the
// engine reaches Closed, or the client is shut down.
func (c *Client) readPump(ctx context.Context, engine *protocol.Engine, maxMessage int64) {
	defer func() {
		engine.Close()
		c.shutdown()
	}()
	if maxMessage > 0 {
		c.conn.SetReadLimit(maxMessage)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, p, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debugf("client %s read: %v", c.id, err)
			}
			return
		}
		msg, err := wire.Decode(p)
		if err != nil {
			metrics.EventsDropped.WithLabelValues("malformed").Inc()
			logger.Debugf("client %s: %v", c.id, err)
			continue
		}
		engine.Handle(ctx, msg)
		if engine.State() == protocol.Closed {
			return
		}
	}
}

// writePump drains the send queue in FIFO order and keeps the connection
// alive with pings. It owns closing the underlying connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.flush()
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debugf("client %s write: %v", c.id, err)
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

// flush writes whatever is already queued, then a close frame.
func (c *Client) flush() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	for {
		select {
		case frame := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
