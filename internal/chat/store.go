//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
package chat

import "context"

// Store is the single source of truth for conversations, messages and read state.
// Every mutating method is atomic: it either fully applies or leaves nothing behind.
// Infrastructure failures are reported wrapped in ErrTransientStore.
type Store interface {
	// LookupConversation returns the tenant-tagged conversation for key, or failing that an
	// untagged legacy conversation with the same resource and pair (Shape tells which).
	// ErrConversationNotFound when neither exists.
	LookupConversation(ctx context.Context, key ConversationKey) (Record, error)

	// BackfillTenant tags an untagged conversation in place. ErrRaceLost when the record is
	// no longer untagged or its key is already taken.
	BackfillTenant(ctx context.Context, conversationID, tenantID string) (Conversation, error)

	// CreateConversation inserts conv together with its seed message.
	// ErrRaceLost when another conversation already holds conv.Key().
	CreateConversation(ctx context.Context, conv Conversation, seed Message) error

	GetConversation(ctx context.Context, conversationID string) (Conversation, error)

	// AppendMessage stamps and inserts msg and moves the conversation preview to it.
	AppendMessage(ctx context.Context, msg Message, preview string) (Message, Conversation, error)

	ListMessages(ctx context.Context, conversationID string, q ListQuery) ([]Message, error)

	// MarkRead adds userID to ReadBy of every message it did not author and had not read,
	// returning the ids it changed in creation order.
	MarkRead(ctx context.Context, conversationID, userID string) ([]string, error)

	// ListInbox returns the conversations of userID in tenantID (legacy untagged ones
	// included), most recent activity first, with per-conversation unread counts.
	ListInbox(ctx context.Context, tenantID, userID string) ([]InboxEntry, error)
}

// LegacyImporter writes records in the pre-tenant layout. Used by data imports and tests.
type LegacyImporter interface {
	ImportUntagged(ctx context.Context, conv Conversation, messages ...Message) error
}

// Notifier receives committed events. Implementations are fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}
