package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// storeFactory returns an empty-enough Store. Contract cases use random tenants and
// resources so they can share one database.
type storeFactory func(t *testing.T) Store

type fixture struct {
	tenant   string
	resource string
	alice    string
	bob      string
}

func newFixture() fixture {
	return fixture{
		tenant:   "school-" + uuid.NewString(),
		resource: "listing-" + uuid.NewString(),
		alice:    "alice-" + uuid.NewString()[:8],
		bob:      "bob-" + uuid.NewString()[:8],
	}
}

func (f fixture) key() ConversationKey {
	return ConversationKey{TenantID: f.tenant, ResourceID: f.resource, Pair: NewPair(f.alice, f.bob)}
}

func (f fixture) conversation() (Conversation, Message) {
	seedID, at := UUIDv7()
	conv := Conversation{
		ID:                 uuid.NewString(),
		TenantID:           f.tenant,
		ResourceID:         f.resource,
		ParticipantA:       f.alice,
		ParticipantB:       f.bob,
		LastMessagePreview: "is this available?",
		LastMessageAt:      &at,
		CreatedAt:          at,
	}
	seed := Message{ID: seedID, ConversationID: conv.ID, SenderID: f.alice, Body: "is this available?", CreatedAt: at, ReadBy: []string{}}
	return conv, seed
}

func runStoreContract(t *testing.T, newStore storeFactory) {
	t.Run("create then lookup returns the tagged record", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		f := newFixture()

		// Given no conversation exists
		_, err := store.LookupConversation(ctx, f.key())
		req.ErrorIs(err, ErrConversationNotFound)

		// When one is created with its seed
		conv, seed := f.conversation()
		req.NoError(store.CreateConversation(ctx, conv, seed))

		// Then the lookup finds it as tagged, whatever the pair order
		k := f.key()
		k.Pair = NewPair(f.bob, f.alice)
		rec, err := store.LookupConversation(ctx, k)
		req.NoError(err)
		req.Equal(ShapeTagged, rec.Shape)
		req.Equal(conv.ID, rec.Conversation.ID)
		req.Equal(f.tenant, rec.Conversation.TenantID)

		// And the seed is its only message
		msgs, err := store.ListMessages(ctx, conv.ID, ListQuery{})
		req.NoError(err)
		req.Len(msgs, 1)
		req.Equal(seed.ID, msgs[0].ID)
		req.Equal(seed.Body, msgs[0].Body)
	})

	t.Run("second create for the same key loses the race", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		f := newFixture()

		first, firstSeed := f.conversation()
		req.NoError(store.CreateConversation(ctx, first, firstSeed))

		second, secondSeed := f.conversation()
		req.ErrorIs(store.CreateConversation(ctx, second, secondSeed), ErrRaceLost)

		// And the loser left nothing behind
		_, err := store.GetConversation(ctx, second.ID)
		req.ErrorIs(err, ErrConversationNotFound)
	})

	t.Run("untagged record is found then backfilled exactly once", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		importer, ok := store.(LegacyImporter)
		req.True(ok)
		f := newFixture()

		legacy, seed := f.conversation()
		req.NoError(importer.ImportUntagged(ctx, legacy, seed))

		rec, err := store.LookupConversation(ctx, f.key())
		req.NoError(err)
		req.Equal(ShapeUntagged, rec.Shape)
		req.Empty(rec.Conversation.TenantID)

		conv, err := store.BackfillTenant(ctx, legacy.ID, f.tenant)
		req.NoError(err)
		req.Equal(f.tenant, conv.TenantID)

		// A second backfill has nothing to migrate
		_, err = store.BackfillTenant(ctx, legacy.ID, f.tenant)
		req.ErrorIs(err, ErrRaceLost)

		rec, err = store.LookupConversation(ctx, f.key())
		req.NoError(err)
		req.Equal(ShapeTagged, rec.Shape)
		req.Equal(legacy.ID, rec.Conversation.ID)
	})

	t.Run("imported records are canonicalized", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		importer, ok := store.(LegacyImporter)
		req.True(ok)
		f := newFixture()

		// Given a legacy export with raw casing and an unsorted, repeated read set
		legacy, seed := f.conversation()
		legacy.ParticipantA = strings.ToUpper(f.alice)
		legacy.ParticipantB = " " + strings.ToUpper(f.bob)
		seed.SenderID = strings.ToUpper(f.alice)
		seed.ReadBy = []string{"zed", strings.ToUpper(f.bob), f.bob}
		laterID, at := UUIDv7()
		later := Message{ID: laterID, ConversationID: legacy.ID, SenderID: f.alice, Body: "anyone?", CreatedAt: at, ReadBy: []string{"zed", "carol"}}
		req.NoError(importer.ImportUntagged(ctx, legacy, seed, later))

		// Then lookup by normalized participants finds it
		rec, err := store.LookupConversation(ctx, f.key())
		req.NoError(err)
		req.Equal(ShapeUntagged, rec.Shape)
		req.Equal(legacy.ID, rec.Conversation.ID)
		req.True(rec.Conversation.HasParticipant(f.bob))

		// And read state treats ReadBy as a set
		entries, err := store.ListInbox(ctx, f.tenant, f.bob)
		req.NoError(err)
		req.Len(entries, 1)
		req.Equal(1, entries[0].UnreadCount)

		updated, err := store.MarkRead(ctx, legacy.ID, f.bob)
		req.NoError(err)
		req.Equal([]string{laterID}, updated)

		msgs, err := store.ListMessages(ctx, legacy.ID, ListQuery{Direction: DirectionAfter})
		req.NoError(err)
		req.Len(msgs, 2)
		req.Equal(f.alice, msgs[0].SenderID)
		req.Equal([]string{f.bob, "zed"}, msgs[0].ReadBy)
		req.Equal([]string{f.bob, "carol", "zed"}, msgs[1].ReadBy)
	})

	t.Run("append updates preview and rejects strangers", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		f := newFixture()
		conv, seed := f.conversation()
		req.NoError(store.CreateConversation(ctx, conv, seed))

		msg, updated, err := store.AppendMessage(ctx, Message{ConversationID: conv.ID, SenderID: f.bob, Body: "yes it is"}, "yes it is")
		req.NoError(err)
		req.NotEmpty(msg.ID)
		req.Greater(msg.ID, seed.ID)
		req.Equal("yes it is", updated.LastMessagePreview)
		req.NotNil(updated.LastMessageAt)
		req.Equal(msg.CreatedAt.UnixMilli(), updated.LastMessageAt.UnixMilli())

		_, _, err = store.AppendMessage(ctx, Message{ConversationID: conv.ID, SenderID: "mallory", Body: "hi"}, "hi")
		req.ErrorIs(err, ErrNotParticipant)

		_, _, err = store.AppendMessage(ctx, Message{ConversationID: uuid.NewString(), SenderID: f.bob, Body: "hi"}, "hi")
		req.ErrorIs(err, ErrConversationNotFound)

		// The rejected sends left no trace
		got, err := store.GetConversation(ctx, conv.ID)
		req.NoError(err)
		req.Equal("yes it is", got.LastMessagePreview)
		msgs, err := store.ListMessages(ctx, conv.ID, ListQuery{})
		req.NoError(err)
		req.Len(msgs, 2)
	})

	t.Run("list pages in both directions", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		f := newFixture()
		conv, seed := f.conversation()
		req.NoError(store.CreateConversation(ctx, conv, seed))
		ids := []string{seed.ID}
		for _, body := range []string{"one", "two", "three", "four"} {
			msg, _, err := store.AppendMessage(ctx, Message{ConversationID: conv.ID, SenderID: f.bob, Body: body}, body)
			req.NoError(err)
			ids = append(ids, msg.ID)
		}

		latest, err := store.ListMessages(ctx, conv.ID, ListQuery{Limit: 2})
		req.NoError(err)
		req.Equal([]string{ids[4], ids[3]}, messageIDs(latest))

		older, err := store.ListMessages(ctx, conv.ID, ListQuery{Cursor: ids[3], Limit: 2})
		req.NoError(err)
		req.Equal([]string{ids[2], ids[1]}, messageIDs(older))

		newer, err := store.ListMessages(ctx, conv.ID, ListQuery{Cursor: ids[1], Direction: DirectionAfter})
		req.NoError(err)
		req.Equal(ids[2:], messageIDs(newer))

		none, err := store.ListMessages(ctx, conv.ID, ListQuery{Cursor: ids[4], Direction: DirectionAfter})
		req.NoError(err)
		req.Empty(none)
	})

	t.Run("mark read is monotone and idempotent", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		f := newFixture()
		conv, seed := f.conversation()
		req.NoError(store.CreateConversation(ctx, conv, seed))
		reply, _, err := store.AppendMessage(ctx, Message{ConversationID: conv.ID, SenderID: f.bob, Body: "yes"}, "yes")
		req.NoError(err)

		// Bob only reads what Alice wrote
		updated, err := store.MarkRead(ctx, conv.ID, f.bob)
		req.NoError(err)
		req.Equal([]string{seed.ID}, updated)

		again, err := store.MarkRead(ctx, conv.ID, f.bob)
		req.NoError(err)
		req.Empty(again)

		updated, err = store.MarkRead(ctx, conv.ID, f.alice)
		req.NoError(err)
		req.Equal([]string{reply.ID}, updated)

		msgs, err := store.ListMessages(ctx, conv.ID, ListQuery{Direction: DirectionAfter})
		req.NoError(err)
		req.Equal([]string{f.bob}, msgs[0].ReadBy)
		req.Equal([]string{f.alice}, msgs[1].ReadBy)

		got, err := store.GetConversation(ctx, conv.ID)
		req.NoError(err)
		req.Equal(reply.ID, got.ReadCursors[f.bob])
		req.Equal(reply.ID, got.ReadCursors[f.alice])

		_, err = store.MarkRead(ctx, conv.ID, "mallory")
		req.ErrorIs(err, ErrNotParticipant)
	})

	t.Run("inbox counts unread per conversation", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		f := newFixture()
		conv, seed := f.conversation()
		req.NoError(store.CreateConversation(ctx, conv, seed))
		_, _, err := store.AppendMessage(ctx, Message{ConversationID: conv.ID, SenderID: f.alice, Body: "still there?"}, "still there?")
		req.NoError(err)

		entries, err := store.ListInbox(ctx, f.tenant, f.bob)
		req.NoError(err)
		req.Len(entries, 1)
		req.Equal(conv.ID, entries[0].ConversationID)
		req.Equal(f.alice, entries[0].Counterpart)
		req.Equal(2, entries[0].UnreadCount)
		req.Equal("still there?", entries[0].LastMessagePreview)

		entries, err = store.ListInbox(ctx, f.tenant, f.alice)
		req.NoError(err)
		req.Len(entries, 1)
		req.Zero(entries[0].UnreadCount)

		// Another tenant sees nothing
		entries, err = store.ListInbox(ctx, "school-"+uuid.NewString(), f.bob)
		req.NoError(err)
		req.Empty(entries)
	})

	t.Run("concurrent appends keep id order equal to list order", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		store := newStore(t)
		f := newFixture()
		conv, seed := f.conversation()
		req.NoError(store.CreateConversation(ctx, conv, seed))

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sender := f.alice
				if i%2 == 0 {
					sender = f.bob
				}
				_, _, err := store.AppendMessage(ctx, Message{ConversationID: conv.ID, SenderID: sender, Body: "ping"}, "ping")
				req.NoError(err)
			}(i)
		}
		wg.Wait()

		msgs, err := store.ListMessages(ctx, conv.ID, ListQuery{Direction: DirectionAfter, Limit: MaxListLimit})
		req.NoError(err)
		req.Len(msgs, 21)
		for i := 1; i < len(msgs); i++ {
			req.Less(msgs[i-1].ID, msgs[i].ID)
			req.False(msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt.Add(-time.Millisecond)))
		}
	})
}

func messageIDs(msgs []Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}
