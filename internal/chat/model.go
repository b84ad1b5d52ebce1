package chat

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

// Shape tells which historical document layout a stored conversation has.
type Shape int

const (
	// ShapeTagged is the current layout: the conversation carries its tenant.
	ShapeTagged Shape = iota
	// ShapeUntagged is the legacy layout written before tenants existed.
	ShapeUntagged
)

func (s Shape) String() string {
	if s == ShapeUntagged {
		return "untagged"
	}
	return "tagged"
}

// Pair is an order-independent couple of participant ids. Lo <= Hi always.
type Pair struct {
	Lo string
	Hi string
}

func NewPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{Lo: a, Hi: b}
}

func (p Pair) Contains(userID string) bool {
	return p.Lo == userID || p.Hi == userID
}

// ConversationKey is the uniqueness scope of a conversation.
type ConversationKey struct {
	TenantID   string
	ResourceID string
	Pair       Pair
}

type Conversation struct {
	ID                 string            `json:"conversation_id"`
	TenantID           string            `json:"tenant_id"`
	ResourceID         string            `json:"resource_id,omitempty"` // empty for a pure DM
	ParticipantA       string            `json:"participant_a"`         // initiator
	ParticipantB       string            `json:"participant_b"`         // counterpart
	LastMessagePreview string            `json:"last_message_preview"`
	LastMessageAt      *time.Time        `json:"last_message_at,omitempty"`
	ReadCursors        map[string]string `json:"read_cursors,omitempty"` // userID -> last read message id
	CreatedAt          time.Time         `json:"created_at"`
}

func (c Conversation) Pair() Pair {
	return NewPair(c.ParticipantA, c.ParticipantB)
}

func (c Conversation) Key() ConversationKey {
	return ConversationKey{TenantID: c.TenantID, ResourceID: c.ResourceID, Pair: c.Pair()}
}

func (c Conversation) HasParticipant(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Counterpart returns the other participant, or "" when userID is not part of the conversation.
func (c Conversation) Counterpart(userID string) string {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return ""
}

func (c Conversation) clone() Conversation {
	out := c
	if c.LastMessageAt != nil {
		out.LastMessageAt = lo.ToPtr(*c.LastMessageAt)
	}
	if c.ReadCursors != nil {
		out.ReadCursors = make(map[string]string, len(c.ReadCursors))
		for k, v := range c.ReadCursors {
			out.ReadCursors[k] = v
		}
	}
	return out
}

// Record is a conversation as found at the storage boundary, together with its layout.
type Record struct {
	Shape        Shape
	Conversation Conversation
}

// Message is an immutable log entry; only ReadBy grows after creation.
type Message struct {
	ID             string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
	ReadBy         []string  `json:"read_by"`
}

func (m Message) IsReadBy(userID string) bool {
	_, found := slices.BinarySearch(m.ReadBy, userID)
	return found
}

// IsUnreadFor reports whether the message counts towards userID's unread total.
func (m Message) IsUnreadFor(userID string) bool {
	return m.SenderID != userID && !m.IsReadBy(userID)
}

func (m Message) clone() Message {
	out := m
	out.ReadBy = slices.Clone(m.ReadBy)
	if out.ReadBy == nil {
		out.ReadBy = []string{}
	}
	return out
}

// addReader inserts userID into the sorted ReadBy set. It returns false when already present.
func (m *Message) addReader(userID string) bool {
	i, found := slices.BinarySearch(m.ReadBy, userID)
	if found {
		return false
	}
	m.ReadBy = slices.Insert(m.ReadBy, i, userID)
	return true
}

// ContactRequest is the "contact the seller/author" action that opens a conversation.
type ContactRequest struct {
	TenantID       string
	ResourceID     string
	RequesterID    string
	OwnerID        string
	InitialMessage string
}

// Resolution is the outcome of resolving a contact request.
// Seed is only set when this call created the conversation.
type Resolution struct {
	Conversation Conversation
	Created      bool
	Seed         *Message
}

type ListDirection string

const (
	// DirectionBefore lists messages older than the cursor, newest first.
	DirectionBefore ListDirection = "before"
	// DirectionAfter lists messages newer than the cursor, oldest first.
	DirectionAfter ListDirection = "after"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type ListQuery struct {
	Cursor    string // message id, exclusive; empty means "from the edge"
	Limit     int
	Direction ListDirection
}

func (q ListQuery) normalize() ListQuery {
	if q.Direction != DirectionAfter {
		q.Direction = DirectionBefore
	}
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	q.Limit = min(q.Limit, MaxListLimit)
	return q
}

// InboxEntry is one row of a user's conversation list.
type InboxEntry struct {
	ConversationID     string     `json:"conversation_id"`
	Counterpart        string     `json:"counterpart"`
	ResourceID         string     `json:"resource_id,omitempty"`
	LastMessagePreview string     `json:"last_message_preview"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCount        int        `json:"unread_count"`

	activity time.Time
}

// ---------------------------------------------
// ⚡ Live Events
// ---------------------------------------------

type EventKind string

const (
	EventMessageNew  EventKind = "message:new"
	EventReadUpdated EventKind = "read:updated"
)

// Event is a committed state change scoped to one conversation room.
type Event struct {
	Kind           EventKind `json:"type"`
	ConversationID string    `json:"conversation_id"`
	Message        *Message  `json:"message,omitempty"`
	ReaderID       string    `json:"reader_id,omitempty"`
	MessageIDs     []string  `json:"message_ids,omitempty"`
	At             time.Time `json:"at"`
}
