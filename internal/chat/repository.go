package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Repository is the PostgreSQL Store. The unique index on
// (tenant_id, resource_id, participant_lo, participant_hi) arbitrates creation races;
// per-conversation writes serialize on the conversation row lock.
type Repository struct {
	db   *sql.DB
	next Sequencer
}

func NewRepository(db *sql.DB, next Sequencer) *Repository {
	if next == nil {
		next = UUIDv7
	}
	return &Repository{db: db, next: next}
}

var (
	_ Store          = (*Repository)(nil)
	_ LegacyImporter = (*Repository)(nil)
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const conversationColumns = `c.id::text, COALESCE(c.tenant_id, ''), c.resource_id, c.participant_a,
	c.participant_b, c.last_message_preview, c.last_message_at, c.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner, extra ...any) (Conversation, error) {
	var (
		c      Conversation
		lastAt sql.NullTime
	)
	dest := append([]any{&c.ID, &c.TenantID, &c.ResourceID, &c.ParticipantA,
		&c.ParticipantB, &c.LastMessagePreview, &lastAt, &c.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Conversation{}, err
	}
	if lastAt.Valid {
		at := lastAt.Time.UTC()
		c.LastMessageAt = &at
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (r *Repository) LookupConversation(ctx context.Context, key ConversationKey) (Record, error) {
	// Tagged rows sort before untagged ones, so an exact match always wins over a legacy one.
	query := `
		SELECT ` + conversationColumns + `, c.tenant_id IS NULL
		FROM conversations c
		WHERE c.resource_id = $1 AND c.participant_lo = $2 AND c.participant_hi = $3
		  AND (c.tenant_id = $4 OR c.tenant_id IS NULL)
		ORDER BY c.tenant_id NULLS LAST, c.created_at
		LIMIT 1
	`
	var untagged bool
	conv, err := scanConversation(r.db.QueryRowContext(ctx, query,
		key.ResourceID, key.Pair.Lo, key.Pair.Hi, key.TenantID), &untagged)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrConversationNotFound
	}
	if err != nil {
		return Record{}, transient(err)
	}
	if conv.ReadCursors, err = loadCursors(ctx, r.db, conv.ID); err != nil {
		return Record{}, err
	}
	rec := Record{Shape: ShapeTagged, Conversation: conv}
	if untagged {
		rec.Shape = ShapeUntagged
	}
	return rec, nil
}

func (r *Repository) BackfillTenant(ctx context.Context, conversationID, tenantID string) (Conversation, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE conversations SET tenant_id = $2 WHERE id = $1::uuid AND tenant_id IS NULL",
		conversationID, tenantID)
	if isUniqueViolation(err) {
		return Conversation{}, ErrRaceLost
	}
	if err != nil {
		return Conversation{}, transient(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Conversation{}, transient(err)
	}
	if n == 0 {
		return Conversation{}, ErrRaceLost
	}
	return r.GetConversation(ctx, conversationID)
}

func (r *Repository) CreateConversation(ctx context.Context, conv Conversation, seed Message) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		pair := conv.Pair()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, tenant_id, resource_id, participant_a, participant_b,
				participant_lo, participant_hi, last_message_preview, last_message_at, created_at)
			VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, conv.ID, conv.TenantID, conv.ResourceID, conv.ParticipantA, conv.ParticipantB,
			pair.Lo, pair.Hi, conv.LastMessagePreview, conv.LastMessageAt, conv.CreatedAt)
		if isUniqueViolation(err) {
			return ErrRaceLost
		}
		if err != nil {
			return transient(err)
		}
		return insertMessage(ctx, tx, seed)
	})
}

func (r *Repository) ImportUntagged(ctx context.Context, conv Conversation, messages ...Message) error {
	conv, messages = canonicalLegacy(conv, messages)
	return r.inTx(ctx, func(tx *sql.Tx) error {
		pair := conv.Pair()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, tenant_id, resource_id, participant_a, participant_b,
				participant_lo, participant_hi, last_message_preview, last_message_at, created_at)
			VALUES ($1::uuid, NULL, $2, $3, $4, $5, $6, $7, $8, $9)
		`, conv.ID, conv.ResourceID, conv.ParticipantA, conv.ParticipantB,
			pair.Lo, pair.Hi, conv.LastMessagePreview, conv.LastMessageAt, conv.CreatedAt)
		if isUniqueViolation(err) {
			return ErrRaceLost
		}
		if err != nil {
			return transient(err)
		}
		for _, m := range messages {
			if err := insertMessage(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	return getConversation(ctx, r.db, conversationID, false)
}

func (r *Repository) AppendMessage(ctx context.Context, msg Message, preview string) (Message, Conversation, error) {
	var conv Conversation
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if conv, err = getConversation(ctx, tx, msg.ConversationID, true); err != nil {
			return err
		}
		if !conv.HasParticipant(msg.SenderID) {
			return ErrNotParticipant
		}
		msg.ID, msg.CreatedAt = r.next()
		msg.ReadBy = []string{}
		if err := insertMessage(ctx, tx, msg); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE conversations SET last_message_preview = $2, last_message_at = $3 WHERE id = $1::uuid",
			msg.ConversationID, preview, msg.CreatedAt); err != nil {
			return transient(err)
		}
		conv.LastMessagePreview = preview
		conv.LastMessageAt = &msg.CreatedAt
		return nil
	})
	if err != nil {
		return Message{}, Conversation{}, err
	}
	return msg, conv, nil
}

func (r *Repository) ListMessages(ctx context.Context, conversationID string, q ListQuery) ([]Message, error) {
	q = q.normalize()
	if _, err := r.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	comparison, order := "<", "DESC"
	if q.Direction == DirectionAfter {
		comparison, order = ">", "ASC"
	}
	query := `
		SELECT m.id::text, m.conversation_id::text, m.sender_id, m.body, m.created_at,
			COALESCE((SELECT json_agg(r.user_id ORDER BY r.user_id) FROM message_reads r
				WHERE r.message_id = m.id), '[]')::text
		FROM messages m
		WHERE m.conversation_id = $1::uuid
		  AND (NULLIF($2::text, '') IS NULL OR m.id ` + comparison + ` NULLIF($2::text, '')::uuid)
		ORDER BY m.id ` + order + `
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID, q.Cursor, q.Limit)
	if err != nil {
		return nil, transient(err)
	}
	defer rows.Close()

	messages := make([]Message, 0, q.Limit)
	for rows.Next() {
		var (
			m      Message
			readBy string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt, &readBy); err != nil {
			return nil, transient(err)
		}
		if err := json.Unmarshal([]byte(readBy), &m.ReadBy); err != nil {
			return nil, transient(err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err)
	}
	return messages, nil
}

func (r *Repository) MarkRead(ctx context.Context, conversationID, userID string) ([]string, error) {
	var updated []string
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		conv, err := getConversation(ctx, tx, conversationID, true)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(userID) {
			return ErrNotParticipant
		}
		rows, err := tx.QueryContext(ctx, `
			INSERT INTO message_reads (message_id, user_id, read_at)
			SELECT m.id, $2, $3 FROM messages m
			WHERE m.conversation_id = $1::uuid AND m.sender_id <> $2
			ON CONFLICT (message_id, user_id) DO NOTHING
			RETURNING message_id::text
		`, conversationID, userID, time.Now().UTC())
		if err != nil {
			return transient(err)
		}
		defer rows.Close()
		updated = []string{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return transient(err)
			}
			updated = append(updated, id)
		}
		if err := rows.Err(); err != nil {
			return transient(err)
		}
		_ = rows.Close()
		slices.Sort(updated)

		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_read_cursors (conversation_id, user_id, last_read_message_id, updated_at)
			SELECT latest.conversation_id, $2, latest.id, now() FROM (
				SELECT m.conversation_id, m.id FROM messages m
				WHERE m.conversation_id = $1::uuid
				ORDER BY m.id DESC
				LIMIT 1
			) latest
			ON CONFLICT (conversation_id, user_id)
			DO UPDATE SET last_read_message_id = EXCLUDED.last_read_message_id,
			              updated_at = EXCLUDED.updated_at
		`, conversationID, userID)
		if err != nil {
			return transient(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *Repository) ListInbox(ctx context.Context, tenantID, userID string) ([]InboxEntry, error) {
	query := `
		SELECT ` + conversationColumns + `,
			(SELECT count(*) FROM messages m
			 WHERE m.conversation_id = c.id AND m.sender_id <> $2
			   AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = $2))
		FROM conversations c
		WHERE (c.tenant_id = $1 OR c.tenant_id IS NULL)
		  AND (c.participant_a = $2 OR c.participant_b = $2)
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, userID)
	if err != nil {
		return nil, transient(err)
	}
	defer rows.Close()

	entries := make([]InboxEntry, 0)
	for rows.Next() {
		var unread int
		conv, err := scanConversation(rows, &unread)
		if err != nil {
			return nil, transient(err)
		}
		entries = append(entries, InboxEntry{
			ConversationID:     conv.ID,
			Counterpart:        conv.Counterpart(userID),
			ResourceID:         conv.ResourceID,
			LastMessagePreview: conv.LastMessagePreview,
			LastMessageAt:      conv.LastMessageAt,
			UnreadCount:        unread,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err)
	}
	return entries, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return transient(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return transient(err)
	}
	return nil
}

func getConversation(ctx context.Context, q querier, conversationID string, forUpdate bool) (Conversation, error) {
	query := "SELECT " + conversationColumns + " FROM conversations c WHERE c.id = $1::uuid"
	if forUpdate {
		query += " FOR UPDATE"
	}
	conv, err := scanConversation(q.QueryRowContext(ctx, query, conversationID))
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, transient(err)
	}
	if conv.ReadCursors, err = loadCursors(ctx, q, conv.ID); err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func loadCursors(ctx context.Context, q querier, conversationID string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT user_id, last_read_message_id::text FROM conversation_read_cursors WHERE conversation_id = $1::uuid",
		conversationID)
	if err != nil {
		return nil, transient(err)
	}
	defer rows.Close()

	var cursors map[string]string
	for rows.Next() {
		var userID, messageID string
		if err := rows.Scan(&userID, &messageID); err != nil {
			return nil, transient(err)
		}
		if cursors == nil {
			cursors = make(map[string]string)
		}
		cursors[userID] = messageID
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err)
	}
	return cursors, nil
}

func insertMessage(ctx context.Context, q querier, m Message) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, sender_id, body, created_at) VALUES ($1::uuid, $2::uuid, $3, $4, $5)",
		m.ID, m.ConversationID, m.SenderID, m.Body, m.CreatedAt)
	if err != nil {
		return transient(err)
	}
	for _, reader := range m.ReadBy {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1::uuid, $2, $3) ON CONFLICT DO NOTHING",
			m.ID, reader, m.CreatedAt); err != nil {
			return transient(err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
