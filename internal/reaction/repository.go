package reaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"teamchat/internal/apperr"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetUserReaction is a direct keyed lookup on the (message, reactor)
// primary key, never a scan of the message's reactions.
func (r *Repository) GetUserReaction(ctx context.Context, messageID, userID uuid.UUID) (*Reaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT message_id, user_id, emoji, created_at
		FROM reactions WHERE message_id = $1 AND user_id = $2`, messageID, userID)

	re := &Reaction{}
	if err := row.Scan(&re.MessageID, &re.UserID, &re.Emoji, &re.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("reaction")
		}
		return nil, err
	}
	return re, nil
}

// Upsert inserts or replaces the reactor's row. The key constraint
// serializes concurrent toggles from the same user.
func (r *Repository) Upsert(ctx context.Context, re *Reaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id) DO UPDATE
		SET emoji = EXCLUDED.emoji, created_at = EXCLUDED.created_at`,
		re.MessageID, re.UserID, re.Emoji, re.CreatedAt)
	return err
}

func (r *Repository) Delete(ctx context.Context, messageID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM reactions WHERE message_id = $1 AND user_id = $2`, messageID, userID)
	return err
}

// Aggregate groups one message's reactions by emoji. viewerID may be
// uuid.Nil for anonymous viewers; reacted_by_me is then false everywhere.
func (r *Repository) Aggregate(ctx context.Context, messageID, viewerID uuid.UUID) ([]Aggregate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT emoji, COUNT(*) AS cnt, BOOL_OR(user_id = $2)
		FROM reactions WHERE message_id = $1
		GROUP BY emoji
		ORDER BY cnt DESC, emoji`, messageID, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Aggregate
	for rows.Next() {
		var a Aggregate
		if err := rows.Scan(&a.Emoji, &a.Count, &a.ReactedByMe); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AggregateMany is the batched read for a page of messages.
func (r *Repository) AggregateMany(ctx context.Context, messageIDs []uuid.UUID, viewerID uuid.UUID) (map[uuid.UUID][]Aggregate, error) {
	out := make(map[uuid.UUID][]Aggregate, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(messageIDs))
	args := []any{viewerID}
	for i, id := range messageIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, emoji, COUNT(*) AS cnt, BOOL_OR(user_id = $1)
		FROM reactions WHERE message_id IN (`+strings.Join(placeholders, ", ")+`)
		GROUP BY message_id, emoji
		ORDER BY message_id, cnt DESC, emoji`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var messageID uuid.UUID
		var a Aggregate
		if err := rows.Scan(&messageID, &a.Emoji, &a.Count, &a.ReactedByMe); err != nil {
			return nil, err
		}
		out[messageID] = append(out[messageID], a)
	}
	return out, rows.Err()
}

// ConversationForMessage resolves a message to its conversation for the
// membership check.
func (r *Repository) ConversationForMessage(ctx context.Context, messageID uuid.UUID) (uuid.UUID, error) {
	var conversationID uuid.UUID
	err := r.db.QueryRowContext(ctx,
		`SELECT conversation_id FROM messages WHERE id = $1`, messageID).Scan(&conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, apperr.NotFound("message")
		}
		return uuid.Nil, err
	}
	return conversationID, nil
}
