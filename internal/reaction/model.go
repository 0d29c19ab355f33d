package reaction

import (
	"time"

	"github.com/google/uuid"
)

// Allowed is the fixed emoji allow-list. Composition-time constant; the
// client picker renders exactly this set.
var Allowed = []string{"👍", "❤️", "😂", "😮", "😢", "🔥"}

func IsAllowed(emoji string) bool {
	for _, e := range Allowed {
		if e == emoji {
			return true
		}
	}
	return false
}

// Reaction is one reactor's current reaction to a message. The
// (message, reactor) pair is the primary key: at most one row per pair.
type Reaction struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// Aggregate is the read-side view of one emoji group on a message.
type Aggregate struct {
	Emoji       string `json:"emoji"`
	Count       int    `json:"count"`
	ReactedByMe bool   `json:"reacted_by_me"`
}

// ToggleResult tells the caller what the toggle did.
type ToggleResult struct {
	// Action is one of added, switched, removed.
	Action string `json:"action"`
	Emoji  string `json:"emoji"`
}
