package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one websocket connection watching a post.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	PostID int64

	// Buffered channel of outbound messages. It is never closed.
	Send chan []byte

	// Closed by the hub when the client is dropped.
	done chan struct{}
}

// NewClient creates a new Client.
func NewClient(hub *Hub, conn *websocket.Conn, postID int64) *Client {
	return &Client{hub: hub, conn: conn, PostID: postID, Send: make(chan []byte, 16), done: make(chan struct{})}
}

// ReadPump reads messages from the connection until it fails, passing each to handle.
func (c *Client) ReadPump(handle func(*Client, []byte)) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Int64("post_id", c.PostID).Msg("Websocket closed unexpectedly")
			}
			return
		}
		handle(c, message)
	}
}

// Done is closed once the hub has dropped the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// WritePump sends queued messages and keepalive pings until the hub drops the client or a
// write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Reply queues message for this client without blocking. It is dropped once the client
// has left the hub or its buffer is full.
func (c *Client) Reply(message []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.Send <- message:
	default:
	}
}
