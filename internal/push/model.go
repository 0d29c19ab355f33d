package push

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is one device's Web Push registration. Unique by endpoint;
// a user keeps at most the N most recently updated devices.
type Subscription struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	Endpoint   string     `json:"endpoint"`
	P256dh     string     `json:"-"`
	Auth       string     `json:"-"`
	Platform   string     `json:"platform"`
	LastSentAt *time.Time `json:"last_sent_at,omitempty"`
	ErrorCount int        `json:"error_count"`
	LastStatus *int       `json:"last_status,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type SubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
	Platform string `json:"platform"`
}

// DispatchStats aggregates one dispatch run for observability. There is no
// retry and no dead-letter path: a failed push is a lost notification,
// acceptable because the message store stays authoritative.
type DispatchStats struct {
	Recipients int `json:"recipients"`
	Attempted  int `json:"attempted"`
	Succeeded  int `json:"succeeded"`
	Gone       int `json:"gone"`
	Failed     int `json:"failed"`
	Suppressed int `json:"suppressed"`
}

// notificationPayload is what the service worker receives. Tag is shared by
// all chat notifications so the OS collapses pending ones into one.
type notificationPayload struct {
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Tag            string    `json:"tag"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

const notificationTag = "teamchat-message"
