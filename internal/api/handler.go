package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"campus-chat/internal/chat"
	"campus-chat/internal/identity"
	myMiddleware "campus-chat/internal/middleware"
	"campus-chat/internal/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Pinger reports whether a dependency is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Options struct {
	ClientBuffer int
	WriteTimeout time.Duration
	// SyncLimit caps the catch-up batch sent on join. Larger gaps are paged over REST.
	SyncLimit int
	Health    Pinger
}

type Handler struct {
	svc      *chat.Service
	hub      *realtime.Hub
	log      *slog.Logger
	validate *validator.Validate
	opts     Options
}

func NewHandler(svc *chat.Service, hub *realtime.Hub, log *slog.Logger, opts Options) *Handler {
	if opts.ClientBuffer <= 0 {
		opts.ClientBuffer = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.SyncLimit <= 0 || opts.SyncLimit > chat.MaxListLimit {
		opts.SyncLimit = chat.MaxListLimit
	}
	return &Handler{
		svc:      svc,
		hub:      hub,
		log:      log,
		validate: validator.New(),
		opts:     opts,
	}
}

type contactRequestBody struct {
	ResourceID string `json:"resource_id" validate:"max=256"`
	OwnerID    string `json:"owner_id" validate:"required,max=256"`
	Message    string `json:"message"`
}

type contactResponse struct {
	Conversation chat.Conversation `json:"conversation"`
	Created      bool              `json:"created"`
}

type sendMessageBody struct {
	Body string `json:"body"`
}

type listParams struct {
	Cursor    string `validate:"omitempty,uuid"`
	Limit     int    `validate:"min=0,max=200"`
	Direction string `validate:"omitempty,oneof=before after"`
}

type listResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type markReadResponse struct {
	UpdatedMessageIDs []string `json:"updated_message_ids"`
}

// StartConversation handles a contact request. Repeating it is safe: the existing
// conversation comes back with 200 instead of 201.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var body contactRequestBody
	if !h.decode(w, r, &body) {
		return
	}

	ctx, cancel := h.writeContext(r)
	defer cancel()
	res, err := h.svc.StartConversation(ctx, chat.ContactRequest{
		TenantID:       id.TenantID,
		ResourceID:     body.ResourceID,
		RequesterID:    id.UserID,
		OwnerID:        body.OwnerID,
		InitialMessage: body.Message,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := lo.Ternary(res.Created, http.StatusCreated, http.StatusOK)
	writeJSON(w, status, contactResponse{Conversation: res.Conversation, Created: res.Created})
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.Inbox(r.Context(), id.TenantID, id.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[chat.InboxEntry]{Items: nonNil(entries)})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	params, err := h.listParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := chat.ListQuery{
		Cursor:    params.Cursor,
		Limit:     params.Limit,
		Direction: chat.ListDirection(params.Direction),
	}
	msgs, err := h.svc.ListSince(r.Context(), id.TenantID, id.UserID, chi.URLParam(r, "conversationID"), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := listResponse[chat.Message]{Items: nonNil(msgs)}
	limit := lo.Ternary(q.Limit > 0, q.Limit, chat.DefaultListLimit)
	if len(msgs) == limit {
		resp.NextCursor = msgs[len(msgs)-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var body sendMessageBody
	if !h.decode(w, r, &body) {
		return
	}

	ctx, cancel := h.writeContext(r)
	defer cancel()
	msg, err := h.svc.SendMessage(ctx, id.TenantID, chi.URLParam(r, "conversationID"), id.UserID, body.Body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.writeContext(r)
	defer cancel()
	updated, err := h.svc.MarkRead(ctx, id.TenantID, chi.URLParam(r, "conversationID"), id.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{UpdatedMessageIDs: nonNil(updated)})
}

func (h *Handler) UnreadSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	summary, err := h.svc.UnreadSummary(r.Context(), id.TenantID, id.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	summary.Items = nonNil(summary.Items)
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Health.PingContext(ctx); err != nil {
			h.log.Warn("Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := myMiddleware.IdentityFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: codeUnauthorized, Message: "missing identity"})
	}
	return id, ok
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(v); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: malformed JSON body", chat.ErrInvalidRequest))
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

func (h *Handler) listParams(r *http.Request) (listParams, error) {
	query := r.URL.Query()
	params := listParams{
		Cursor:    query.Get("cursor"),
		Direction: query.Get("direction"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return listParams{}, fmt.Errorf("%w: limit must be a number", chat.ErrInvalidRequest)
		}
		params.Limit = limit
	}
	if err := h.validate.Struct(params); err != nil {
		return listParams{}, err
	}
	return params, nil
}

// writeContext detaches a write from the client connection so a hang-up after the request
// was accepted cannot abort the commit halfway.
func (h *Handler) writeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), h.opts.WriteTimeout)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
