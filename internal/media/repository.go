package media

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"teamchat/internal/apperr"
)

// ImageRef is the reverse-lookup result: a stored image resolved back to
// its owning message and conversation.
type ImageRef struct {
	ImageID        uuid.UUID
	MessageID      uuid.UUID
	ConversationID uuid.UUID
	Position       int
	FullKey        string
	ThumbKey       string
	Width          int
	Height         int
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const imageRefQuery = `
	SELECT mi.id, mi.message_id, m.conversation_id, mi.position,
	       mi.full_key, mi.thumb_key, mi.width, mi.height
	FROM message_images mi
	JOIN messages m ON m.id = mi.message_id`

func scanImageRef(row interface{ Scan(...any) error }) (*ImageRef, error) {
	ref := &ImageRef{}
	err := row.Scan(&ref.ImageID, &ref.MessageID, &ref.ConversationID, &ref.Position,
		&ref.FullKey, &ref.ThumbKey, &ref.Width, &ref.Height)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("image")
		}
		return nil, err
	}
	return ref, nil
}

// ImageByID resolves an image attachment id to its owning message and
// conversation. A bare storage reference carries no conversation context;
// this lookup is what access control hangs on.
func (r *Repository) ImageByID(ctx context.Context, imageID uuid.UUID) (*ImageRef, error) {
	row := r.db.QueryRowContext(ctx, imageRefQuery+` WHERE mi.id = $1`, imageID)
	return scanImageRef(row)
}

// ImagesForMessage lists a message's image refs in display order.
func (r *Repository) ImagesForMessage(ctx context.Context, messageID uuid.UUID) ([]*ImageRef, error) {
	rows, err := r.db.QueryContext(ctx, imageRefQuery+` WHERE mi.message_id = $1 ORDER BY mi.position`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []*ImageRef
	for rows.Next() {
		ref, err := scanImageRef(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
