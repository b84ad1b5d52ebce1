package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"campus-chat/internal/chat"
)

const publishTimeout = 5 * time.Second

type membership struct {
	client         *Client
	conversationID string
	join           bool
	result         chan bool
}

type reply struct {
	client  *Client
	payload []byte
}

// Hub owns every room of this instance. All membership state lives in the Run goroutine;
// other goroutines only talk to it through channels.
type Hub struct {
	broker Broker
	log    *slog.Logger

	clients map[*Client]map[string]struct{} // client -> joined conversations
	rooms   map[string]map[*Client]struct{} // conversation -> members

	register   chan *Client
	unregister chan *Client
	membership chan membership
	direct     chan reply
	done       chan struct{}
}

func NewHub(broker Broker, log *slog.Logger) *Hub {
	return &Hub{
		broker:     broker,
		log:        log,
		clients:    make(map[*Client]map[string]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		membership: make(chan membership),
		direct:     make(chan reply, 64),
		done:       make(chan struct{}),
	}
}

var _ chat.Notifier = (*Hub)(nil)

// Run subscribes to the broker and serves the hub until ctx ends. On return every client's
// send channel is closed, which makes their write pumps hang up.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	events, err := h.broker.Subscribe(ctx)
	if err != nil {
		h.shutdown()
		return err
	}

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil

		case c := <-h.register:
			h.clients[c] = make(map[string]struct{})
			c.state.Store(int32(StateConnected))
			h.push(c, Frame{Type: FrameConnected, ConnectionID: c.ID, UserID: c.UserID})

		case c := <-h.unregister:
			h.drop(c)

		case m := <-h.membership:
			m.result <- h.apply(m)

		case r := <-h.direct:
			if _, ok := h.clients[r.client]; ok {
				h.enqueue(r.client, r.payload)
			}

		case evt, ok := <-events:
			if !ok {
				h.shutdown()
				return errors.New("realtime: broker subscription closed")
			}
			h.fanout(evt)
		}
	}
}

// Register hands c to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Join subscribes a connected client to a conversation room. Access must already be checked.
func (h *Hub) Join(c *Client, conversationID string) bool {
	return h.changeMembership(c, conversationID, true)
}

func (h *Hub) Leave(c *Client, conversationID string) bool {
	return h.changeMembership(c, conversationID, false)
}

// Reply sends a frame to a single client, dropping it if the client is gone.
func (h *Hub) Reply(c *Client, frame Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("Failed to encode frame", "type", frame.Type, "error", err)
		return
	}
	select {
	case h.direct <- reply{client: c, payload: payload}:
	case <-h.done:
	}
}

// Notify publishes a committed event. Fan-out is best effort: failures are logged, never returned.
func (h *Hub) Notify(ctx context.Context, evt chat.Event) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := h.broker.Publish(ctx, evt); err != nil {
		h.log.Warn("Failed to publish event",
			"type", evt.Kind, "conversation_id", evt.ConversationID, "error", err)
	}
}

func (h *Hub) changeMembership(c *Client, conversationID string, join bool) bool {
	m := membership{client: c, conversationID: conversationID, join: join, result: make(chan bool, 1)}
	select {
	case h.membership <- m:
	case <-h.done:
		return false
	}
	select {
	case ok := <-m.result:
		return ok
	case <-h.done:
		return false
	}
}

func (h *Hub) apply(m membership) bool {
	joined, ok := h.clients[m.client]
	if !ok {
		return false
	}
	if m.join {
		room := h.rooms[m.conversationID]
		if room == nil {
			room = make(map[*Client]struct{})
			h.rooms[m.conversationID] = room
		}
		room[m.client] = struct{}{}
		joined[m.conversationID] = struct{}{}
		return true
	}
	h.leave(m.client, m.conversationID)
	delete(joined, m.conversationID)
	return true
}

func (h *Hub) fanout(evt chat.Event) {
	room := h.rooms[evt.ConversationID]
	if len(room) == 0 {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("Failed to encode event", "conversation_id", evt.ConversationID, "error", err)
		return
	}
	for c := range room {
		h.enqueue(c, payload)
	}
}

func (h *Hub) push(c *Client, frame Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("Failed to encode frame", "type", frame.Type, "error", err)
		return
	}
	h.enqueue(c, payload)
}

// enqueue never blocks the run loop. A client whose buffer is full is evicted.
func (h *Hub) enqueue(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.log.Warn("Evicting slow client", "connection_id", c.ID, "user_id", c.UserID)
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	joined, ok := h.clients[c]
	if !ok {
		return
	}
	for conversationID := range joined {
		h.leave(c, conversationID)
	}
	delete(h.clients, c)
	c.state.Store(int32(StateDisconnected))
	close(c.send)
}

func (h *Hub) leave(c *Client, conversationID string) {
	room := h.rooms[conversationID]
	if room == nil {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}

func (h *Hub) shutdown() {
	for c := range h.clients {
		h.drop(c)
	}
	if err := h.broker.Close(); err != nil {
		h.log.Warn("Failed to close broker", "error", err)
	}
}
