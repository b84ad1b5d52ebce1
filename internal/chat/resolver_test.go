package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestResolver(store Store) *Resolver {
	return NewResolver(store, logs.GetLoggerFromLevel(slog.LevelDebug), Options{})
}

func contactRequest(f fixture, message string) ContactRequest {
	return ContactRequest{
		TenantID:       f.tenant,
		ResourceID:     f.resource,
		RequesterID:    f.alice,
		OwnerID:        f.bob,
		InitialMessage: message,
	}
}

func TestResolver_CreatesConversationWithSeed(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore(nil)
	resolver := newTestResolver(store)
	f := newFixture()

	res, err := resolver.Resolve(ctx, contactRequest(f, "  is this available?  "))
	req.NoError(err)
	req.True(res.Created)
	req.NotNil(res.Seed)
	req.Equal("is this available?", res.Seed.Body)
	req.Equal(f.alice, res.Seed.SenderID)
	req.Equal(f.alice, res.Conversation.ParticipantA)
	req.Equal(f.bob, res.Conversation.ParticipantB)
	req.Equal("is this available?", res.Conversation.LastMessagePreview)

	msgs, err := store.ListMessages(ctx, res.Conversation.ID, ListQuery{})
	req.NoError(err)
	req.Len(msgs, 1)
	req.Equal(res.Seed.ID, msgs[0].ID)
}

func TestResolver_DoubleClickReturnsSameConversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore(nil)
	resolver := newTestResolver(store)
	f := newFixture()

	first, err := resolver.Resolve(ctx, contactRequest(f, "is this available?"))
	req.NoError(err)
	second, err := resolver.Resolve(ctx, contactRequest(f, "is this available?"))
	req.NoError(err)

	req.Equal(first.Conversation.ID, second.Conversation.ID)
	req.False(second.Created)
	req.Nil(second.Seed)

	msgs, err := store.ListMessages(ctx, first.Conversation.ID, ListQuery{})
	req.NoError(err)
	req.Len(msgs, 1)
}

func TestResolver_OwnerContactingBackResolvesSamePair(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	resolver := newTestResolver(NewMemoryStore(nil))
	f := newFixture()

	first, err := resolver.Resolve(ctx, contactRequest(f, "hello"))
	req.NoError(err)

	reverse := contactRequest(f, "hi back")
	reverse.RequesterID, reverse.OwnerID = strings.ToUpper(f.bob), f.alice
	second, err := resolver.Resolve(ctx, reverse)
	req.NoError(err)
	req.Equal(first.Conversation.ID, second.Conversation.ID)
	req.False(second.Created)
}

func TestResolver_ConcurrentDuplicatesYieldOneConversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore(nil)
	resolver := newTestResolver(store)
	f := newFixture()

	const callers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[string]struct{})
		created atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := resolver.Resolve(ctx, contactRequest(f, "is this available?"))
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			if res.Created {
				created.Add(1)
			}
			mu.Lock()
			ids[res.Conversation.ID] = struct{}{}
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	req.Len(ids, 1)
	req.Equal(int32(1), created.Load())
	for id := range ids {
		msgs, err := store.ListMessages(ctx, id, ListQuery{})
		req.NoError(err)
		req.Len(msgs, 1)
	}
}

func TestResolver_SelfContactIsRejected(t *testing.T) {
	resolver := newTestResolver(NewMemoryStore(nil))
	for _, user := range []string{"alice", "Alice ", "  ALICE", "é", "0"} {
		t.Run(user, func(t *testing.T) {
			req := require.New(t)
			f := newFixture()
			r := contactRequest(f, "hello")
			r.RequesterID, r.OwnerID = user, strings.ToLower(strings.TrimSpace(user))
			_, err := resolver.Resolve(context.Background(), r)
			req.ErrorIs(err, ErrInvalidRequest)
			req.ErrorIs(err, ErrSelfContact)
		})
	}
}

func TestResolver_RejectsInvalidRequests(t *testing.T) {
	resolver := newTestResolver(NewMemoryStore(nil))
	f := newFixture()
	cases := map[string]func(*ContactRequest){
		"blank message":   func(r *ContactRequest) { r.InitialMessage = " \n\t " },
		"missing tenant":  func(r *ContactRequest) { r.TenantID = "" },
		"missing owner":   func(r *ContactRequest) { r.OwnerID = "" },
		"message too long": func(r *ContactRequest) { r.InitialMessage = strings.Repeat("a", DefaultMaxMessageLength+1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := contactRequest(f, "hello")
			mutate(&r)
			_, err := resolver.Resolve(context.Background(), r)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestResolver_BackfillsLegacyConversationOnce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore(nil)
	resolver := newTestResolver(store)
	f := newFixture()

	// Given a conversation written before tenants existed
	legacy, seed := f.conversation()
	req.NoError(store.ImportUntagged(ctx, legacy, seed))

	// When the same pair contacts each other about the same resource
	first, err := resolver.Resolve(ctx, contactRequest(f, "is this still available?"))
	req.NoError(err)

	// Then the legacy record is reused with its tenant set
	req.Equal(legacy.ID, first.Conversation.ID)
	req.Equal(f.tenant, first.Conversation.TenantID)
	req.False(first.Created)
	req.Nil(first.Seed)

	// And resolving again finds the already migrated record
	second, err := resolver.Resolve(ctx, contactRequest(f, "is this still available?"))
	req.NoError(err)
	req.Equal(legacy.ID, second.Conversation.ID)

	rec, err := store.LookupConversation(ctx, f.key())
	req.NoError(err)
	req.Equal(ShapeTagged, rec.Shape)

	msgs, err := store.ListMessages(ctx, legacy.ID, ListQuery{})
	req.NoError(err)
	req.Len(msgs, 1)
}

func TestResolver_BackfillsLegacyConversationWithRawCasing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore(nil)
	resolver := newTestResolver(store)
	f := newFixture()

	// Given a legacy record whose participants were stored as typed
	legacy, seed := f.conversation()
	legacy.ParticipantA = strings.ToUpper(f.alice)
	legacy.ParticipantB = strings.ToUpper(f.bob)
	req.NoError(store.ImportUntagged(ctx, legacy, seed))

	// When the requester contacts the owner with differently cased ids
	got, err := resolver.Resolve(ctx, ContactRequest{
		TenantID:       f.tenant,
		ResourceID:     f.resource,
		RequesterID:    strings.ToUpper(f.alice),
		OwnerID:        f.bob,
		InitialMessage: "still available?",
	})
	req.NoError(err)

	// Then the legacy conversation is adopted rather than duplicated
	req.False(got.Created)
	req.Equal(legacy.ID, got.Conversation.ID)
	req.Equal(f.tenant, got.Conversation.TenantID)
}

func TestResolver_ConcurrentBackfillsConverge(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore(nil)
	resolver := newTestResolver(store)
	f := newFixture()
	legacy, seed := f.conversation()
	req.NoError(store.ImportUntagged(ctx, legacy, seed))

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := resolver.Resolve(ctx, contactRequest(f, "hello"))
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			results[i] = res.Conversation.ID
		}(i)
	}
	wg.Wait()

	for _, id := range results {
		req.Equal(legacy.ID, id)
	}
}

// staleStore answers the first lookups with "not found" to force the create path
// into a uniqueness conflict, as a concurrent resolver would.
type staleStore struct {
	Store
	stale atomic.Int32
}

func (s *staleStore) LookupConversation(ctx context.Context, key ConversationKey) (Record, error) {
	if s.stale.Add(-1) >= 0 {
		return Record{}, ErrConversationNotFound
	}
	return s.Store.LookupConversation(ctx, key)
}

func TestResolver_LostCreateRaceReturnsWinner(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	mem := NewMemoryStore(nil)
	f := newFixture()
	winner, err := newTestResolver(mem).Resolve(ctx, contactRequest(f, "first"))
	req.NoError(err)

	store := &staleStore{Store: mem}
	store.stale.Store(1)
	res, err := newTestResolver(store).Resolve(ctx, contactRequest(f, "second"))

	req.NoError(err)
	req.Equal(winner.Conversation.ID, res.Conversation.ID)
	req.False(res.Created)
	req.Nil(res.Seed)
	msgs, err := mem.ListMessages(ctx, winner.Conversation.ID, ListQuery{})
	req.NoError(err)
	req.Len(msgs, 1)
	req.Equal("first", msgs[0].Body)
}

func TestResolver_GivesUpWhenRacesNeverSettle(t *testing.T) {
	req := require.New(t)
	mem := NewMemoryStore(nil)
	f := newFixture()
	_, err := newTestResolver(mem).Resolve(context.Background(), contactRequest(f, "first"))
	req.NoError(err)

	store := &staleStore{Store: mem}
	store.stale.Store(maxResolvePasses)
	_, err = newTestResolver(store).Resolve(context.Background(), contactRequest(f, "second"))
	req.ErrorIs(err, ErrTransientStore)
	req.NotErrorIs(err, ErrRaceLost)
}
