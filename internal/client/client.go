package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Buffer size for outbound messages
	sendBufferSize = 256
)

// Role distinguishes the two connection kinds on a match session.
type Role int

const (
	// RoleObserver receives broadcasts only.
	RoleObserver Role = iota
	// RoleWriter may additionally submit referee actions.
	RoleWriter
)

func (r Role) String() string {
	if r == RoleWriter {
		return "writer"
	}
	return "observer"
}

// Conn wraps one WebSocket connection attached to a match session. Outbound
// messages go through a bounded buffer so a stalled peer never blocks the
// session loop.
type Conn struct {
	ID   string
	Role Role

	ws   *websocket.Conn
	send chan []byte

	onMessage func([]byte)
	onClose   func(*Conn)

	// mu guards closed: TrySend can race CloseSend because inbound frames
	// arrive on the ReadPump goroutine while the session loop drops the
	// connection.
	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
}

// New creates a connection wrapper. onMessage receives every inbound text
// frame; onClose fires exactly once when either pump exits.
func New(id string, role Role, ws *websocket.Conn, onMessage func([]byte), onClose func(*Conn)) *Conn {
	return &Conn{
		ID:        id,
		Role:      role,
		ws:        ws,
		send:      make(chan []byte, sendBufferSize),
		onMessage: onMessage,
		onClose:   onClose,
	}
}

// TrySend queues a message without blocking. Returns false when the buffer is
// full, which the session treats as a dead peer, or when the send side has
// already been closed.
func (c *Conn) TrySend(msg []byte) bool {
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

// CloseSend stops the write pump after draining queued messages. Safe to call
// more than once and concurrently with TrySend.
func (c *Conn) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump pumps inbound frames to the session until the peer goes away.
func (c *Conn) ReadPump() {
	defer c.finish()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				fmt.Printf("client %s unexpected close: %v\n", c.ID, err)
			}
			return
		}
		if c.onMessage != nil {
			c.onMessage(message)
		}
	}
}

// WritePump drains the send buffer to the peer and keeps the connection
// alive with pings.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.finish()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Session closed the channel: normal closure
				c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) finish() {
	c.closeOnce.Do(func() {
		if c.onClose != nil {
			c.onClose(c)
		}
		c.ws.Close()
	})
}
