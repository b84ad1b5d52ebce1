package api

import (
	"context"
	"encoding/json"
	"net/http"

	"campus-chat/internal/chat"
	myMiddleware "campus-chat/internal/middleware"
	"campus-chat/internal/realtime"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers on any campus origin may connect; the bearer token is what authorizes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	frameJoin    = "join"
	frameLeave   = "leave"
	frameMessage = "message"
	frameRead    = "read"
)

type inboundFrame struct {
	Type           string  `json:"type"`
	ConversationID string  `json:"conversation_id"`
	Body           string  `json:"body,omitempty"`
	Since          *string `json:"since,omitempty"`
}

// ServeWs upgrades an authenticated request. The identity handshake is the token check that
// already ran in the middleware; registration with the hub completes the connection.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	id, ok := myMiddleware.IdentityFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: codeUnauthorized, Message: "missing identity"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "user_id", id.UserID, "error", err)
		return
	}

	client := realtime.NewClient(h.hub, conn, id.UserID, id.TenantID, h.opts.ClientBuffer, h.log)
	if !client.Start(h) {
		h.log.Warn("Hub stopped, refusing websocket", "user_id", id.UserID)
	}
}

// HandleFrame runs on the client's read pump, so frames of one connection are handled in order.
func (h *Handler) HandleFrame(c *realtime.Client, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.hub.Reply(c, realtime.ErrorFrame("", codeInvalidRequest, "invalid payload"))
		return
	}
	if frame.ConversationID == "" {
		h.hub.Reply(c, realtime.ErrorFrame("", codeInvalidRequest, "conversation_id is required"))
		return
	}

	// Not tied to the socket: a disconnect mid-write must not abort the commit.
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteTimeout)
	defer cancel()

	switch frame.Type {
	case frameJoin:
		h.handleJoin(ctx, c, frame)
	case frameLeave:
		h.hub.Leave(c, frame.ConversationID)
		h.hub.Reply(c, realtime.Frame{Type: realtime.FrameLeft, ConversationID: frame.ConversationID})
	case frameMessage:
		if _, err := h.svc.SendMessage(ctx, c.TenantID, frame.ConversationID, c.UserID, frame.Body); err != nil {
			h.replyError(c, frame.ConversationID, err)
		}
	case frameRead:
		if _, err := h.svc.MarkRead(ctx, c.TenantID, frame.ConversationID, c.UserID); err != nil {
			h.replyError(c, frame.ConversationID, err)
		}
	default:
		h.hub.Reply(c, realtime.ErrorFrame(frame.ConversationID, codeUnsupported, "unknown frame type"))
	}
}

// handleJoin subscribes first and reads the backlog second, so nothing committed in between is
// lost. Clients dedupe the overlap by message id.
func (h *Handler) handleJoin(ctx context.Context, c *realtime.Client, frame inboundFrame) {
	if _, err := h.svc.Conversation(ctx, c.TenantID, c.UserID, frame.ConversationID); err != nil {
		h.replyError(c, frame.ConversationID, err)
		return
	}
	if !h.hub.Join(c, frame.ConversationID) {
		return
	}
	h.hub.Reply(c, realtime.Frame{Type: realtime.FrameJoined, ConversationID: frame.ConversationID})

	if frame.Since == nil {
		return
	}
	msgs, err := h.svc.ListSince(ctx, c.TenantID, c.UserID, frame.ConversationID, chat.ListQuery{
		Cursor:    *frame.Since,
		Direction: chat.DirectionAfter,
		Limit:     h.opts.SyncLimit,
	})
	if err != nil {
		h.replyError(c, frame.ConversationID, err)
		return
	}
	batch := realtime.Frame{Type: realtime.FrameSync, ConversationID: frame.ConversationID, Messages: msgs}
	if len(msgs) == h.opts.SyncLimit {
		batch.NextCursor = msgs[len(msgs)-1].ID
	}
	h.hub.Reply(c, batch)
}

func (h *Handler) replyError(c *realtime.Client, conversationID string, err error) {
	status, code := classify(err)
	h.log.Log(context.Background(), logLevelFor(status), "Frame rejected",
		"connection_id", c.ID, "conversation_id", conversationID, "code", code, "error", err)
	h.hub.Reply(c, realtime.ErrorFrame(conversationID, code, publicMessage(status, err)))
}
