package chat

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

type legacyKey struct {
	ResourceID string
	Pair       Pair
}

type memConversation struct {
	mu       sync.Mutex
	conv     Conversation
	messages []*Message // creation order
}

// MemoryStore is a process-local Store. The index lock is only held to find or register
// conversations; message and read-state writes serialize on the owning conversation.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*memConversation
	tagged        map[ConversationKey]string
	legacy        map[legacyKey][]string
	next          Sequencer
}

func NewMemoryStore(next Sequencer) *MemoryStore {
	if next == nil {
		next = UUIDv7
	}
	return &MemoryStore{
		conversations: make(map[string]*memConversation),
		tagged:        make(map[ConversationKey]string),
		legacy:        make(map[legacyKey][]string),
		next:          next,
	}
}

var (
	_ Store          = (*MemoryStore)(nil)
	_ LegacyImporter = (*MemoryStore)(nil)
)

func (s *MemoryStore) LookupConversation(ctx context.Context, key ConversationKey) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, transient(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.tagged[key]; ok {
		return Record{Shape: ShapeTagged, Conversation: s.conversations[id].snapshot()}, nil
	}
	if ids := s.legacy[legacyKey{ResourceID: key.ResourceID, Pair: key.Pair}]; len(ids) > 0 {
		return Record{Shape: ShapeUntagged, Conversation: s.conversations[ids[0]].snapshot()}, nil
	}
	return Record{}, ErrConversationNotFound
}

func (s *MemoryStore) BackfillTenant(ctx context.Context, conversationID, tenantID string) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, transient(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mc, ok := s.conversations[conversationID]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.conv.TenantID != "" {
		return Conversation{}, ErrRaceLost
	}
	key := mc.conv.Key()
	key.TenantID = tenantID
	if _, taken := s.tagged[key]; taken {
		return Conversation{}, ErrRaceLost
	}

	lk := legacyKey{ResourceID: key.ResourceID, Pair: key.Pair}
	s.legacy[lk] = slices.DeleteFunc(s.legacy[lk], func(id string) bool { return id == conversationID })
	if len(s.legacy[lk]) == 0 {
		delete(s.legacy, lk)
	}
	mc.conv.TenantID = tenantID
	s.tagged[key] = conversationID
	return mc.conv.clone(), nil
}

func (s *MemoryStore) CreateConversation(ctx context.Context, conv Conversation, seed Message) error {
	if err := ctx.Err(); err != nil {
		return transient(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := conv.Key()
	if _, taken := s.tagged[key]; taken {
		return ErrRaceLost
	}
	if _, taken := s.conversations[conv.ID]; taken {
		return ErrRaceLost
	}
	seed = seed.clone()
	s.conversations[conv.ID] = &memConversation{conv: conv.clone(), messages: []*Message{&seed}}
	s.tagged[key] = conv.ID
	return nil
}

func (s *MemoryStore) ImportUntagged(ctx context.Context, conv Conversation, messages ...Message) error {
	if err := ctx.Err(); err != nil {
		return transient(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.conversations[conv.ID]; taken {
		return ErrRaceLost
	}
	conv, messages = canonicalLegacy(conv, messages)
	mc := &memConversation{conv: conv.clone()}
	for _, m := range messages {
		mc.messages = append(mc.messages, &m)
	}
	slices.SortFunc(mc.messages, func(a, b *Message) int { return cmp.Compare(a.ID, b.ID) })
	s.conversations[conv.ID] = mc
	lk := legacyKey{ResourceID: conv.ResourceID, Pair: conv.Pair()}
	s.legacy[lk] = append(s.legacy[lk], conv.ID)
	return nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, transient(err)
	}
	mc, err := s.get(conversationID)
	if err != nil {
		return Conversation{}, err
	}
	return mc.snapshot(), nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg Message, preview string) (Message, Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, Conversation{}, transient(err)
	}
	mc, err := s.get(msg.ConversationID)
	if err != nil {
		return Message{}, Conversation{}, err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if !mc.conv.HasParticipant(msg.SenderID) {
		return Message{}, Conversation{}, ErrNotParticipant
	}
	msg.ID, msg.CreatedAt = s.next()
	msg.ReadBy = []string{}
	stored := msg.clone()
	mc.messages = append(mc.messages, &stored)
	at := stored.CreatedAt
	mc.conv.LastMessagePreview = preview
	mc.conv.LastMessageAt = &at
	return msg, mc.conv.clone(), nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string, q ListQuery) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(err)
	}
	q = q.normalize()
	mc, err := s.get(conversationID)
	if err != nil {
		return nil, err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()

	out := make([]Message, 0, min(q.Limit, len(mc.messages)))
	switch q.Direction {
	case DirectionAfter:
		for _, m := range mc.messages {
			if len(out) == q.Limit {
				break
			}
			if q.Cursor == "" || m.ID > q.Cursor {
				out = append(out, m.clone())
			}
		}
	default:
		for i := len(mc.messages) - 1; i >= 0 && len(out) < q.Limit; i-- {
			if m := mc.messages[i]; q.Cursor == "" || m.ID < q.Cursor {
				out = append(out, m.clone())
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, conversationID, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(err)
	}
	mc, err := s.get(conversationID)
	if err != nil {
		return nil, err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if !mc.conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	updated := []string{}
	for _, m := range mc.messages {
		if m.SenderID != userID && m.addReader(userID) {
			updated = append(updated, m.ID)
		}
	}
	if n := len(mc.messages); n > 0 {
		if mc.conv.ReadCursors == nil {
			mc.conv.ReadCursors = make(map[string]string)
		}
		mc.conv.ReadCursors[userID] = mc.messages[n-1].ID
	}
	return updated, nil
}

func (s *MemoryStore) ListInbox(ctx context.Context, tenantID, userID string) ([]InboxEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(err)
	}
	s.mu.RLock()
	candidates := make([]*memConversation, 0)
	for _, mc := range s.conversations {
		candidates = append(candidates, mc)
	}
	s.mu.RUnlock()

	entries := make([]InboxEntry, 0)
	for _, mc := range candidates {
		mc.mu.Lock()
		conv := mc.conv
		if conv.HasParticipant(userID) && (conv.TenantID == tenantID || conv.TenantID == "") {
			entries = append(entries, mc.inboxEntry(userID))
		}
		mc.mu.Unlock()
	}
	sortInbox(entries)
	return entries, nil
}

func (s *MemoryStore) get(conversationID string) (*memConversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mc, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return mc, nil
}

func (mc *memConversation) snapshot() Conversation {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.conv.clone()
}

// inboxEntry must be called with mc.mu held.
func (mc *memConversation) inboxEntry(userID string) InboxEntry {
	conv := mc.conv.clone()
	unread := 0
	for _, m := range mc.messages {
		if m.IsUnreadFor(userID) {
			unread++
		}
	}
	activity := conv.CreatedAt
	if conv.LastMessageAt != nil {
		activity = *conv.LastMessageAt
	}
	return InboxEntry{
		ConversationID:     conv.ID,
		Counterpart:        conv.Counterpart(userID),
		ResourceID:         conv.ResourceID,
		LastMessagePreview: conv.LastMessagePreview,
		LastMessageAt:      conv.LastMessageAt,
		UnreadCount:        unread,
		activity:           activity,
	}
}

func sortInbox(entries []InboxEntry) {
	slices.SortStableFunc(entries, func(a, b InboxEntry) int {
		if c := b.activity.Compare(a.activity); c != 0 {
			return c
		}
		return cmp.Compare(a.ConversationID, b.ConversationID)
	})
}
