package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPreviewLength    = 80
	DefaultMaxMessageLength = 4000
)

type Options struct {
	PreviewLength    int
	MaxMessageLength int
	Sequencer        Sequencer
}

func (o Options) withDefaults() Options {
	if o.PreviewLength <= 0 {
		o.PreviewLength = DefaultPreviewLength
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = DefaultMaxMessageLength
	}
	if o.Sequencer == nil {
		o.Sequencer = UUIDv7
	}
	return o
}

// Service is the messaging core facade. Every write commits in the Store first and is
// only then handed to the Notifier; a notification can never undo or fail a write.
type Service struct {
	store    Store
	resolver *Resolver
	notifier Notifier
	log      *slog.Logger
	opts     Options
}

func NewService(store Store, notifier Notifier, log *slog.Logger, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		store:    store,
		resolver: NewResolver(store, log, opts),
		notifier: notifier,
		log:      log,
		opts:     opts,
	}
}

// StartConversation resolves a contact request. A newly created conversation broadcasts its
// seed message; resolving an existing one is a silent idempotent success.
func (s *Service) StartConversation(ctx context.Context, req ContactRequest) (Resolution, error) {
	res, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return Resolution{}, err
	}
	if res.Seed != nil {
		s.notify(ctx, Event{
			Kind:           EventMessageNew,
			ConversationID: res.Conversation.ID,
			Message:        res.Seed,
			At:             res.Seed.CreatedAt,
		})
	}
	return res, nil
}

// Conversation returns the conversation if userID may see it from tenantID.
// Untagged legacy conversations are visible from any tenant of their participants.
func (s *Service) Conversation(ctx context.Context, tenantID, userID, conversationID string) (Conversation, error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return Conversation{}, ErrConversationNotFound
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	if conv.TenantID != "" && conv.TenantID != strings.TrimSpace(tenantID) {
		return Conversation{}, ErrConversationNotFound
	}
	if !conv.HasParticipant(NormalizeID(userID)) {
		return Conversation{}, ErrNotParticipant
	}
	return conv, nil
}

// SendMessage appends body to the conversation and broadcasts it once committed.
func (s *Service) SendMessage(ctx context.Context, tenantID, conversationID, senderID, body string) (Message, error) {
	body, err := normalizeBody(body, s.opts.MaxMessageLength)
	if err != nil {
		return Message{}, err
	}
	senderID = NormalizeID(senderID)
	if _, err := s.Conversation(ctx, tenantID, senderID, conversationID); err != nil {
		return Message{}, err
	}

	msg, _, err := s.store.AppendMessage(ctx, Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
	}, preview(body, s.opts.PreviewLength))
	if err != nil {
		return Message{}, err
	}
	s.log.Debug("Message appended", "conversation_id", conversationID, "message_id", msg.ID, "user_id", senderID)

	s.notify(ctx, Event{
		Kind:           EventMessageNew,
		ConversationID: conversationID,
		Message:        &msg,
		At:             msg.CreatedAt,
	})
	return msg, nil
}

// ListSince pages through a conversation. See ListQuery for cursor semantics.
func (s *Service) ListSince(ctx context.Context, tenantID, userID, conversationID string, q ListQuery) ([]Message, error) {
	if !validCursor(q.Cursor) {
		return nil, ErrBadCursor
	}
	if _, err := s.Conversation(ctx, tenantID, userID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID, q)
}

// MarkRead records that userID has seen everything in the conversation. It returns the ids that
// changed and emits exactly one read event per call, with an empty id set when nothing was new.
func (s *Service) MarkRead(ctx context.Context, tenantID, conversationID, userID string) ([]string, error) {
	userID = NormalizeID(userID)
	if _, err := s.Conversation(ctx, tenantID, userID, conversationID); err != nil {
		return nil, err
	}
	updated, err := s.store.MarkRead(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = []string{}
	}
	s.notify(ctx, Event{
		Kind:           EventReadUpdated,
		ConversationID: conversationID,
		ReaderID:       userID,
		MessageIDs:     updated,
		At:             time.Now().UTC(),
	})
	return updated, nil
}

// Inbox lists every conversation of userID with its unread count.
func (s *Service) Inbox(ctx context.Context, tenantID, userID string) ([]InboxEntry, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", ErrInvalidRequest)
	}
	return s.store.ListInbox(ctx, tenantID, NormalizeID(userID))
}

func (s *Service) notify(ctx context.Context, evt Event) {
	if s.notifier == nil {
		return
	}
	// Detached so a caller hanging up after commit still gets the broadcast out.
	s.notifier.Notify(context.WithoutCancel(ctx), evt)
}
