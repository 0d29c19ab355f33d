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

func New(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error { return d.Conn.Close() }

// Migrate creates the schema. Statements are idempotent so this runs on
// every startup.
func (d *Database) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            display_name VARCHAR(100) NOT NULL,
            role VARCHAR(10) NOT NULL DEFAULT 'player' CHECK (role IN ('player', 'admin')),
            password VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY,
            type VARCHAR(10) NOT NULL CHECK (type IN ('group', 'direct')) DEFAULT 'direct',
            name VARCHAR(100),
            is_team_chat BOOLEAN NOT NULL DEFAULT FALSE,
            last_message_at TIMESTAMPTZ,
            last_message_preview VARCHAR(120),
            last_message_by VARCHAR(100),
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		// At most one team chat row.
		`CREATE UNIQUE INDEX IF NOT EXISTS conversations_team_chat_idx
            ON conversations (is_team_chat) WHERE is_team_chat`,

		`CREATE TABLE IF NOT EXISTS participants (
            conversation_id UUID REFERENCES conversations(id) ON DELETE CASCADE,
            user_id UUID REFERENCES users(id) ON DELETE CASCADE,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (conversation_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL,
            sender_name VARCHAR(100) NOT NULL,
            sender_role VARCHAR(10) NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            gif JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE INDEX IF NOT EXISTS messages_conversation_created_idx
            ON messages (conversation_id, created_at, id)`,

		`CREATE TABLE IF NOT EXISTS message_images (
            id UUID PRIMARY KEY,
            message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            position INT NOT NULL,
            full_key VARCHAR(255) NOT NULL,
            thumb_key VARCHAR(255) NOT NULL,
            width INT NOT NULL,
            height INT NOT NULL
        )`,

		// Reverse lookup from either blob key to the owning message.
		`CREATE INDEX IF NOT EXISTS message_images_full_key_idx ON message_images (full_key)`,
		`CREATE INDEX IF NOT EXISTS message_images_thumb_key_idx ON message_images (thumb_key)`,

		`CREATE TABLE IF NOT EXISTS reactions (
            message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id UUID NOT NULL,
            emoji VARCHAR(16) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (message_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS link_previews (
            url_hash CHAR(64) PRIMARY KEY,
            url TEXT NOT NULL,
            status VARCHAR(12) NOT NULL CHECK (status IN ('pending', 'success', 'error', 'no_preview')),
            title TEXT,
            description TEXT,
            site_name TEXT,
            favicon_url TEXT,
            image_url TEXT,
            image_full_key VARCHAR(255),
            image_thumb_key VARCHAR(255),
            video_id TEXT,
            video_provider VARCHAR(20),
            error_message TEXT,
            fetched_at TIMESTAMPTZ,
            expires_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE INDEX IF NOT EXISTS link_previews_expires_idx ON link_previews (expires_at)`,

		`CREATE TABLE IF NOT EXISTS push_subscriptions (
            id UUID PRIMARY KEY,
            user_id UUID NOT NULL,
            endpoint TEXT UNIQUE NOT NULL,
            p256dh VARCHAR(255) NOT NULL,
            auth VARCHAR(255) NOT NULL,
            platform VARCHAR(20) NOT NULL DEFAULT 'web',
            last_sent_at TIMESTAMPTZ,
            error_count INT NOT NULL DEFAULT 0,
            last_status INT,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE INDEX IF NOT EXISTS push_subscriptions_user_idx ON push_subscriptions (user_id, updated_at)`,
	}

	for _, query := range queries {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
