package reaction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"teamchat/internal/apperr"
	"teamchat/internal/identity"
)

// Store is the repository slice the service consumes.
type Store interface {
	GetUserReaction(ctx context.Context, messageID, userID uuid.UUID) (*Reaction, error)
	Upsert(ctx context.Context, re *Reaction) error
	Delete(ctx context.Context, messageID, userID uuid.UUID) error
	Aggregate(ctx context.Context, messageID, viewerID uuid.UUID) ([]Aggregate, error)
	AggregateMany(ctx context.Context, messageIDs []uuid.UUID, viewerID uuid.UUID) (map[uuid.UUID][]Aggregate, error)
	ConversationForMessage(ctx context.Context, messageID uuid.UUID) (uuid.UUID, error)
}

// Membership is satisfied by chat.Guard.
type Membership interface {
	IsMember(ctx context.Context, p identity.Principal, conversationID uuid.UUID) (bool, error)
	RequireMember(ctx context.Context, p identity.Principal, conversationID uuid.UUID) error
}

type Service struct {
	store Store
	guard Membership

	now func() time.Time
}

func NewService(store Store, guard Membership) *Service {
	return &Service{store: store, guard: guard, now: time.Now}
}

// Toggle applies the caller's emoji to a message. Three cases against the
// caller's existing row: absent inserts, same emoji removes, different
// emoji switches in place.
func (s *Service) Toggle(ctx context.Context, p identity.Principal, messageID uuid.UUID, emoji string) (*ToggleResult, error) {
	if p.Anonymous() {
		return nil, apperr.Authorization("authentication required")
	}
	if !IsAllowed(emoji) {
		return nil, apperr.Validation("emoji %q is not allowed", emoji)
	}

	conversationID, err := s.store.ConversationForMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireMember(ctx, p, conversationID); err != nil {
		return nil, err
	}

	existing, err := s.store.GetUserReaction(ctx, messageID, p.UserID)
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	if existing != nil && existing.Emoji == emoji {
		if err := s.store.Delete(ctx, messageID, p.UserID); err != nil {
			return nil, err
		}
		return &ToggleResult{Action: "removed", Emoji: emoji}, nil
	}

	action := "added"
	if existing != nil {
		action = "switched"
	}
	re := &Reaction{
		MessageID: messageID,
		UserID:    p.UserID,
		Emoji:     emoji,
		CreatedAt: s.now(),
	}
	if err := s.store.Upsert(ctx, re); err != nil {
		return nil, err
	}
	return &ToggleResult{Action: action, Emoji: emoji}, nil
}

// ForMessage aggregates a message's reactions for the viewer. Non-members
// (including anonymous callers) get an empty aggregate, never an error and
// never other members' data.
func (s *Service) ForMessage(ctx context.Context, p identity.Principal, messageID uuid.UUID) ([]Aggregate, error) {
	conversationID, err := s.store.ConversationForMessage(ctx, messageID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return []Aggregate{}, nil
		}
		return nil, err
	}
	ok, err := s.guard.IsMember(ctx, p, conversationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Aggregate{}, nil
	}

	aggs, err := s.store.Aggregate(ctx, messageID, p.UserID)
	if err != nil {
		return nil, err
	}
	if aggs == nil {
		aggs = []Aggregate{}
	}
	return aggs, nil
}

// ForMessages is the batched read for a message page. Messages whose
// conversations the viewer cannot access are silently omitted.
func (s *Service) ForMessages(ctx context.Context, p identity.Principal, messageIDs []uuid.UUID) (map[uuid.UUID][]Aggregate, error) {
	authorized := make([]uuid.UUID, 0, len(messageIDs))
	memberOf := make(map[uuid.UUID]bool)
	for _, messageID := range messageIDs {
		conversationID, err := s.store.ConversationForMessage(ctx, messageID)
		if err != nil {
			continue
		}
		ok, seen := memberOf[conversationID]
		if !seen {
			ok, err = s.guard.IsMember(ctx, p, conversationID)
			if err != nil {
				return nil, err
			}
			memberOf[conversationID] = ok
		}
		if ok {
			authorized = append(authorized, messageID)
		}
	}
	return s.store.AggregateMany(ctx, authorized, p.UserID)
}
