package realtime

import (
	"campus-chat/internal/chat"
)

// Outbound frame types besides the chat.Event kinds.
const (
	FrameConnected = "connected"
	FrameJoined    = "joined"
	FrameLeft      = "left"
	FrameSync      = "sync"
	FrameError     = "error"
)

// Frame is a reply addressed to one connection. Room broadcasts are plain chat.Event payloads.
// NextCursor is set on a full sync batch: more messages follow it.
type Frame struct {
	Type           string         `json:"type"`
	ConnectionID   string         `json:"connection_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Messages       []chat.Message `json:"messages,omitempty"`
	NextCursor     string         `json:"next_cursor,omitempty"`
	Code           string         `json:"code,omitempty"`
	Error          string         `json:"error,omitempty"`
}

func ErrorFrame(conversationID, code, msg string) Frame {
	return Frame{Type: FrameError, ConversationID: conversationID, Code: code, Error: msg}
}
