package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// maxResolvePasses bounds how many times Resolve re-reads after losing a race.
// One lost race is normal; a second means a backfill and a create interleaved.
const maxResolvePasses = 3

// Resolver turns a contact request into the single conversation for its resource and pair.
// It is the only component allowed to migrate untagged conversations.
type Resolver struct {
	store         Store
	next          Sequencer
	log           *slog.Logger
	previewLength int
	maxBody       int
}

func NewResolver(store Store, log *slog.Logger, opts Options) *Resolver {
	opts = opts.withDefaults()
	return &Resolver{
		store:         store,
		next:          opts.Sequencer,
		log:           log,
		previewLength: opts.PreviewLength,
		maxBody:       opts.MaxMessageLength,
	}
}

// Resolve finds, migrates or creates the conversation for req. Calling it repeatedly with the
// same input, sequentially or concurrently, always yields the same conversation and at most
// one seed message.
func (r *Resolver) Resolve(ctx context.Context, req ContactRequest) (Resolution, error) {
	req, err := r.validate(req)
	if err != nil {
		return Resolution{}, err
	}
	key := ConversationKey{
		TenantID:   req.TenantID,
		ResourceID: req.ResourceID,
		Pair:       NewPair(req.RequesterID, req.OwnerID),
	}
	log := r.log.With("tenant_id", key.TenantID, "resource_id", key.ResourceID, "requester_id", req.RequesterID)

	for pass := 0; pass < maxResolvePasses; pass++ {
		rec, err := r.store.LookupConversation(ctx, key)
		switch {
		case err == nil && rec.Shape == ShapeTagged:
			return Resolution{Conversation: rec.Conversation}, nil

		case err == nil && rec.Shape == ShapeUntagged:
			conv, err := r.store.BackfillTenant(ctx, rec.Conversation.ID, key.TenantID)
			if errors.Is(err, ErrRaceLost) {
				log.Debug("Backfill lost to a concurrent writer, re-reading", "conversation_id", rec.Conversation.ID)
				continue
			}
			if err != nil {
				return Resolution{}, err
			}
			log.Info("Backfilled tenant on legacy conversation", "conversation_id", conv.ID)
			return Resolution{Conversation: conv}, nil

		case errors.Is(err, ErrConversationNotFound):
			res, err := r.create(ctx, req)
			if errors.Is(err, ErrRaceLost) {
				log.Debug("Create lost to a concurrent writer, re-reading")
				continue
			}
			if err != nil {
				return Resolution{}, err
			}
			log.Info("Conversation created", "conversation_id", res.Conversation.ID)
			return res, nil

		default:
			return Resolution{}, err
		}
	}
	return Resolution{}, fmt.Errorf("%w: conversation kept changing while resolving", ErrTransientStore)
}

func (r *Resolver) create(ctx context.Context, req ContactRequest) (Resolution, error) {
	seedID, at := r.next()
	conv := Conversation{
		ID:                 uuid.NewString(),
		TenantID:           req.TenantID,
		ResourceID:         req.ResourceID,
		ParticipantA:       req.RequesterID,
		ParticipantB:       req.OwnerID,
		LastMessagePreview: preview(req.InitialMessage, r.previewLength),
		LastMessageAt:      &at,
		CreatedAt:          at,
	}
	seed := Message{
		ID:             seedID,
		ConversationID: conv.ID,
		SenderID:       req.RequesterID,
		Body:           req.InitialMessage,
		CreatedAt:      at,
		ReadBy:         []string{},
	}
	if err := r.store.CreateConversation(ctx, conv, seed); err != nil {
		return Resolution{}, err
	}
	return Resolution{Conversation: conv, Created: true, Seed: &seed}, nil
}

func (r *Resolver) validate(req ContactRequest) (ContactRequest, error) {
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.ResourceID = strings.TrimSpace(req.ResourceID)
	req.RequesterID = NormalizeID(req.RequesterID)
	req.OwnerID = NormalizeID(req.OwnerID)

	if req.TenantID == "" || req.RequesterID == "" || req.OwnerID == "" {
		return ContactRequest{}, fmt.Errorf("%w: tenant, requester and owner are required", ErrInvalidRequest)
	}
	if req.RequesterID == req.OwnerID {
		return ContactRequest{}, ErrSelfContact
	}
	body, err := normalizeBody(req.InitialMessage, r.maxBody)
	if err != nil {
		return ContactRequest{}, err
	}
	req.InitialMessage = body
	return req, nil
}
