package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const (
	// sendBufferSize is the number of events that can be queued per client.
	sendBufferSize = 64

	// writeTimeout is the max time to wait for a single write to complete.
	writeTimeout = 5 * time.Second
)

// Client wraps one WebSocket connection with a buffered outbound queue and
// a write pump, so the room coordinator can push events without ever
// blocking on a slow peer. It implements room.Conn.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps an accepted WebSocket connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Send queues an event for delivery. Returns false if the client's buffer
// is full (slow consumer) or the client is closed; the event is dropped.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Printf("ws: send buffer full, dropping event")
		return false
	}
}

// Close force-closes the connection. Safe to call multiple times.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close(websocket.StatusNormalClosure, reason)
	})
}

// WritePump drains the send queue onto the wire. It exits when the client
// is closed or ctx is cancelled; a failed write closes the connection.
func (c *Client) WritePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.Printf("ws: write failed: %v", err)
				c.Close("write failed")
				return
			}
		}
	}
}
