package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/overlaylabs/copresence/internal/domain"
	"github.com/overlaylabs/copresence/internal/logger"
)

const (
	// writeWait is the deadline for a single outbound frame.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds inbound frames.
	maxMessageSize = 64 << 10
	// DefaultSendBuffer sizes the per-connection outbound queue.
	DefaultSendBuffer = 64
)

// Client is one live websocket connection bound to an authenticated user.
//
// The connection lifecycle is authenticated on construction, optionally
// bound to one room at a time, then disconnected for good. A client is
// never bound to two rooms at once.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	user domain.UserInfo
	send chan []byte

	mu     sync.Mutex
	roomID string
	closed bool

	closeOnce sync.Once
}

// NewClient wraps an authenticated websocket connection.
func NewClient(h *Hub, conn *websocket.Conn, user domain.UserInfo, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Client{
		hub:  h,
		conn: conn,
		user: user,
		send: make(chan []byte, sendBuffer),
	}
}

// User returns the authenticated identity behind the connection.
func (c *Client) User() domain.UserInfo { return c.user }

// RoomID returns the room the client is currently bound to, if any.
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Client) setRoom(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

// ReadPump processes inbound messages in arrival order until the connection
// dies, then runs the full disconnect sequence. One goroutine per connection.
func (c *Client) ReadPump() {
	defer c.hub.Disconnect(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed",
					logger.String("user_id", c.user.ID),
					logger.Error(err))
			}
			return
		}
		c.hub.handleMessage(c, raw)
	}
}

// WritePump flushes the outbound queue and keeps the connection alive with
// pings. One goroutine per connection; exits when the queue is closed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// enqueue queues a frame for delivery without ever blocking the caller.
// Returns false when the client is gone or its buffer is full; a full
// buffer means the client cannot keep up and will be disconnected.
func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// sendEnvelope marshals and queues a typed frame.
func (c *Client) sendEnvelope(msgType string, payload any) {
	frame, err := encodeEnvelope(msgType, payload)
	if err != nil {
		c.hub.logger.Error("failed to encode outbound frame",
			logger.String("type", msgType),
			logger.Error(err))
		return
	}
	c.enqueue(frame)
}

// sendError reports a per-message failure without dropping the connection.
func (c *Client) sendError(err error) {
	c.sendEnvelope(EvtError, errorPayload{
		Code:    domain.ErrorCode(err),
		Message: err.Error(),
	})
}

// close tears the connection down exactly once. Closing the send channel
// stops WritePump, which closes the underlying socket.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
