package chat

import (
	"context"

	"github.com/google/uuid"

	"teamchat/internal/apperr"
	"teamchat/internal/identity"
)

// MembershipStore is the slice of the repository the guard needs.
type MembershipStore interface {
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

// Guard enforces conversation membership. Checks hit the store on every
// call: participant sets change with roster edits, so results are never
// cached.
type Guard struct {
	store MembershipStore
}

func NewGuard(store MembershipStore) *Guard {
	return &Guard{store: store}
}

// IsMember reports whether the principal belongs to the conversation.
// Anonymous principals are never members.
func (g *Guard) IsMember(ctx context.Context, p identity.Principal, conversationID uuid.UUID) (bool, error) {
	if p.Anonymous() {
		return false, nil
	}
	return g.store.IsParticipant(ctx, conversationID, p.UserID)
}

// RequireMember returns an authorization error unless the principal belongs
// to the conversation. Write paths use this; read paths use IsMember and
// degrade to empty results.
func (g *Guard) RequireMember(ctx context.Context, p identity.Principal, conversationID uuid.UUID) error {
	ok, err := g.IsMember(ctx, p, conversationID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Authorization("not a participant of this conversation")
	}
	return nil
}
