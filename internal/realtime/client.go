package realtime

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 32 * 1024           // Maximum frame size allowed from peer.
)

type State int32

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// FrameHandler interprets one inbound frame from a connected client.
type FrameHandler interface {
	HandleFrame(c *Client, frame []byte)
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	ID       string
	UserID   string
	TenantID string

	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte // closed by the hub only
	state atomic.Int32
	log   *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, tenantID string, buffer int, log *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:       id,
		UserID:   userID,
		TenantID: tenantID,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, max(buffer, 1)),
		log:      log.With("connection_id", id, "user_id", userID),
	}
}

func (c *Client) State() State {
	return State(c.state.Load())
}

// Start registers the client and launches both pumps. It returns false if the hub is gone,
// in which case the connection is closed.
func (c *Client) Start(handler FrameHandler) bool {
	if !c.hub.Register(c) {
		_ = c.conn.Close()
		return false
	}
	go c.writePump()
	go c.readPump(handler)
	return true
}

// readPump pumps frames from the websocket connection to the handler.
func (c *Client) readPump(handler FrameHandler) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Websocket closed unexpectedly", "error", err)
			}
			return
		}
		handler.HandleFrame(c, frame)
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(frame)

			// Queued frames go out in the same write, newline separated.
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(next)
			}

			if err := w.Close(); err != nil {
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
