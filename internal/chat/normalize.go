package chat

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeID canonicalizes an identity string so that the same person always maps
// to the same participant key regardless of casing or Unicode composition.
func NormalizeID(id string) string {
	// cases.Caser is stateful, one per call.
	return cases.Lower(language.Und).String(norm.NFC.String(strings.TrimSpace(id)))
}

func normalizeBody(body string, maxLength int) (string, error) {
	body = norm.NFC.String(strings.TrimSpace(body))
	if body == "" {
		return "", ErrEmptyBody
	}
	if maxLength > 0 && utf8.RuneCountInString(body) > maxLength {
		return "", ErrBodyTooLong
	}
	return body, nil
}

// preview truncates body to at most length runes, marking the cut with an ellipsis.
func preview(body string, length int) string {
	if length <= 0 || utf8.RuneCountInString(body) <= length {
		return body
	}
	runes := []rune(body)
	return strings.TrimSpace(string(runes[:length-1])) + "…"
}

// Sequencer stamps a new message with a creation-ordered id and its timestamp.
// Stores call it while holding the conversation lock so id order matches commit order.
type Sequencer func() (string, time.Time)

// UUIDv7 is the default Sequencer. Version 7 ids sort lexically by creation time.
func UUIDv7() (string, time.Time) {
	id := uuid.Must(uuid.NewV7())
	return id.String(), time.Now().UTC()
}

// canonicalLegacy brings an imported record to the shape the stores maintain: normalized
// participant and sender ids, and a sorted duplicate-free ReadBy set.
func canonicalLegacy(conv Conversation, messages []Message) (Conversation, []Message) {
	conv.TenantID = ""
	conv.ParticipantA = NormalizeID(conv.ParticipantA)
	conv.ParticipantB = NormalizeID(conv.ParticipantB)
	out := make([]Message, len(messages))
	for i, m := range messages {
		m = m.clone()
		m.ConversationID = conv.ID
		m.SenderID = NormalizeID(m.SenderID)
		for j, reader := range m.ReadBy {
			m.ReadBy[j] = NormalizeID(reader)
		}
		slices.Sort(m.ReadBy)
		m.ReadBy = slices.Compact(m.ReadBy)
		out[i] = m
	}
	return conv, out
}

func validCursor(cursor string) bool {
	if cursor == "" {
		return true
	}
	_, err := uuid.Parse(cursor)
	return err == nil
}
