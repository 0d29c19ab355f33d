package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"teamchat/internal/apperr"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// --- conversations ---

const conversationCols = `id, type, COALESCE(name, ''), is_team_chat,
       last_message_at, COALESCE(last_message_preview, ''), COALESCE(last_message_by, ''),
       created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	c := &Conversation{}
	err := row.Scan(&c.ID, &c.Type, &c.Name, &c.IsTeamChat,
		&c.LastMessageAt, &c.LastMessagePreview, &c.LastMessageBy,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("conversation")
		}
		return nil, err
	}
	return c, nil
}

func (r *Repository) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (r *Repository) TeamConversation(ctx context.Context) (*Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE is_team_chat`)
	return scanConversation(row)
}

// FindDirect returns the direct conversation between two users, if any.
func (r *Repository) FindDirect(ctx context.Context, a, b uuid.UUID) (*Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+conversationCols+` FROM conversations c
		WHERE c.type = 'direct'
		  AND EXISTS (SELECT 1 FROM participants WHERE conversation_id = c.id AND user_id = $1)
		  AND EXISTS (SELECT 1 FROM participants WHERE conversation_id = c.id AND user_id = $2)`,
		a, b)
	return scanConversation(row)
}

func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+conversationCols+` FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.last_message_at DESC NULLS LAST`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateConversation inserts the conversation and its initial participant
// set in one transaction.
func (r *Repository) CreateConversation(ctx context.Context, c *Conversation, participantIDs []uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, type, name, is_team_chat, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $5)`,
		c.ID, c.Type, c.Name, c.IsTeamChat, c.CreatedAt)
	if err != nil {
		return err
	}
	for _, userID := range participantIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO participants (conversation_id, user_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, c.ID, userID)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repository) AddParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO participants (conversation_id, user_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`, conversationID, userID)
	return err
}

func (r *Repository) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2
		)`, conversationID, userID).Scan(&exists)
	return exists, err
}

func (r *Repository) Participants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM participants WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) UpdateSummary(ctx context.Context, conversationID uuid.UUID, at time.Time, preview, by string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_at = $2, last_message_preview = $3, last_message_by = $4, updated_at = $2
		WHERE id = $1`, conversationID, at, preview, by)
	return err
}

// --- messages ---

func (r *Repository) InsertMessage(ctx context.Context, m *Message) error {
	var gifJSON []byte
	if m.GIF != nil {
		var err error
		gifJSON, err = json.Marshal(m.GIF)
		if err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, sender_role, body, gif, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ConversationID, m.SenderID, m.SenderName, m.SenderRole, m.Body, gifJSON, m.CreatedAt)
	if err != nil {
		return err
	}
	for _, img := range m.Images {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO message_images (id, message_id, position, full_key, thumb_key, width, height)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			img.ID, m.ID, img.Position, img.FullKey, img.ThumbKey, img.Width, img.Height)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

const messageCols = `id, conversation_id, sender_id, sender_name, sender_role, body, gif, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	m := &Message{}
	var gifJSON []byte
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName,
		&m.SenderRole, &m.Body, &gifJSON, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("message")
		}
		return nil, err
	}
	if len(gifJSON) > 0 {
		m.GIF = &GIF{}
		if err := json.Unmarshal(gifJSON, m.GIF); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (r *Repository) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageCols+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadImages(ctx, []*Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns up to limit messages after the cursor, oldest first.
func (r *Repository) ListMessages(ctx context.Context, conversationID uuid.UUID, cursor Cursor, limit int) ([]*Message, error) {
	query := `SELECT ` + messageCols + ` FROM messages
		WHERE conversation_id = $1 AND (created_at, id) > ($2::timestamptz, $3::uuid)
		ORDER BY created_at, id
		LIMIT $4`
	after := cursor.CreatedAt
	if cursor.IsZero() {
		after = time.Time{}
	}
	rows, err := r.db.QueryContext(ctx, query, conversationID, after, cursor.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadImages(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) loadImages(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Message, len(msgs))
	placeholders := make([]string, 0, len(msgs))
	args := make([]any, 0, len(msgs))
	for i, m := range msgs {
		byID[m.ID] = m
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, m.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_id, position, full_key, thumb_key, width, height
		FROM message_images WHERE message_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY message_id, position`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var img ImageAttachment
		var messageID uuid.UUID
		if err := rows.Scan(&img.ID, &messageID, &img.Position,
			&img.FullKey, &img.ThumbKey, &img.Width, &img.Height); err != nil {
			return err
		}
		if m, ok := byID[messageID]; ok {
			m.Images = append(m.Images, img)
		}
	}
	return rows.Err()
}

// LastSentAt returns the author's most recent message time in the
// conversation, or the zero time when they have not sent anything yet.
func (r *Repository) LastSentAt(ctx context.Context, conversationID, senderID uuid.UUID) (time.Time, error) {
	var at sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM messages
		WHERE conversation_id = $1 AND sender_id = $2`, conversationID, senderID).Scan(&at)
	if err != nil {
		return time.Time{}, err
	}
	if !at.Valid {
		return time.Time{}, nil
	}
	return at.Time, nil
}

func (r *Repository) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	return err
}

// RedactAuthor rewrites the snapshotted display name on all of the author's
// messages. Idempotent.
func (r *Repository) RedactAuthor(ctx context.Context, authorID uuid.UUID, sentinel string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET sender_name = $2 WHERE sender_id = $1 AND sender_name <> $2`,
		authorID, sentinel)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
