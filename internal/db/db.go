package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// AutoMigrate creates the messaging schema. tenant_id stays nullable: rows written before
// tenants existed keep NULL until the resolver backfills them.
func (d *Database) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY,
            tenant_id TEXT NULL,
            resource_id TEXT NOT NULL DEFAULT '',
            participant_a TEXT NOT NULL,
            participant_b TEXT NOT NULL,
            participant_lo TEXT NOT NULL,
            participant_hi TEXT NOT NULL,
            last_message_preview TEXT NOT NULL DEFAULT '',
            last_message_at TIMESTAMPTZ NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            CHECK (participant_lo < participant_hi)
        )`,

		// NULL tenants never collide, so legacy duplicates survive until migrated.
		`CREATE UNIQUE INDEX IF NOT EXISTS conversations_scope_key
            ON conversations (tenant_id, resource_id, participant_lo, participant_hi)`,

		`CREATE INDEX IF NOT EXISTS conversations_legacy_idx
            ON conversations (resource_id, participant_lo, participant_hi)
            WHERE tenant_id IS NULL`,

		`CREATE INDEX IF NOT EXISTS conversations_participant_a_idx ON conversations (participant_a)`,
		`CREATE INDEX IF NOT EXISTS conversations_participant_b_idx ON conversations (participant_b)`,

		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            conversation_id UUID NOT NULL REFERENCES conversations(id),
            sender_id TEXT NOT NULL,
            body TEXT NOT NULL CHECK (length(btrim(body)) > 0),
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, id)`,

		`CREATE TABLE IF NOT EXISTS message_reads (
            message_id UUID REFERENCES messages(id),
            user_id TEXT NOT NULL,
            read_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (message_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS conversation_read_cursors (
            conversation_id UUID REFERENCES conversations(id),
            user_id TEXT NOT NULL,
            last_read_message_id UUID NOT NULL REFERENCES messages(id),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (conversation_id, user_id)
        )`,
	}

	for _, query := range queries {
		_, err := d.Conn.ExecContext(ctx, query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
