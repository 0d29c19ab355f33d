package chat

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ConversationGroup  = "group"
	ConversationDirect = "direct"
)

type Conversation struct {
	ID                 uuid.UUID  `json:"id"`
	Type               string     `json:"type"`
	Name               string     `json:"name,omitempty"`
	IsTeamChat         bool       `json:"is_team_chat"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	LastMessagePreview string     `json:"last_message_preview,omitempty"`
	LastMessageBy      string     `json:"last_message_by,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// GIF describes an externally hosted animation picked from a GIF provider.
type GIF struct {
	Provider   string `json:"provider"`
	ProviderID string `json:"provider_id"`
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// ImageAttachment references a pre-compressed blob pair uploaded by the
// client. Both blobs belong exclusively to the owning message.
type ImageAttachment struct {
	ID       uuid.UUID `json:"id"`
	Position int       `json:"position"`
	FullKey  string    `json:"full_key"`
	ThumbKey string    `json:"thumb_key"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
}

// Message is a chat message. SenderName and SenderRole are snapshotted at
// send time so history survives later profile edits.
type Message struct {
	ID             uuid.UUID         `json:"id"`
	ConversationID uuid.UUID         `json:"conversation_id"`
	SenderID       uuid.UUID         `json:"sender_id"`
	SenderName     string            `json:"sender_name"`
	SenderRole     string            `json:"sender_role"`
	Body           string            `json:"body"`
	Images         []ImageAttachment `json:"images,omitempty"`
	GIF            *GIF              `json:"gif,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// HasAttachments reports whether the message carries any displayable
// attachment. Body may be empty only when this is true.
func (m *Message) HasAttachments() bool {
	return len(m.Images) > 0 || m.GIF != nil
}

// Cursor marks a position in a conversation's message log. The zero value
// means "from the beginning". Filtering strictly after (CreatedAt, ID) keeps
// pages stable while new messages are appended.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func (c Cursor) IsZero() bool { return c.CreatedAt.IsZero() }

// Encode renders the cursor as an opaque query-string token.
func (c Cursor) Encode() string {
	if c.IsZero() {
		return ""
	}
	raw := fmt.Sprintf("%s|%s", c.CreatedAt.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by Encode. An empty or malformed
// token yields the zero cursor.
func DecodeCursor(token string) Cursor {
	if token == "" {
		return Cursor{}
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return Cursor{}
	}
	at, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Cursor{}
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return Cursor{}
	}
	return Cursor{CreatedAt: at, ID: id}
}

// Page is one page of a conversation's message log, oldest first.
type Page struct {
	Messages   []*Message `json:"messages"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type SendRequest struct {
	ConversationID uuid.UUID    `json:"conversation_id" validate:"required"`
	Body           string       `json:"body"`
	Images         []ImageInput `json:"images" validate:"omitempty,dive"`
	GIF            *GIFInput    `json:"gif"`
}

type ImageInput struct {
	FullKey  string `json:"full_key" validate:"required"`
	ThumbKey string `json:"thumb_key" validate:"required"`
	Width    int    `json:"width" validate:"required,min=1"`
	Height   int    `json:"height" validate:"required,min=1"`
}

type GIFInput struct {
	Provider   string `json:"provider" validate:"required"`
	ProviderID string `json:"provider_id" validate:"required"`
	URL        string `json:"url" validate:"required,url"`
	PreviewURL string `json:"preview_url" validate:"required,url"`
	Width      int    `json:"width" validate:"required,min=1"`
	Height     int    `json:"height" validate:"required,min=1"`
}
