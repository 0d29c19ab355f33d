package push

import (
	"context"
	"time"

	"github.com/google/uuid"

	"teamchat/internal/apperr"
	"teamchat/internal/identity"
)

// Registrar manages device subscriptions for signed-in users.
type Registrar struct {
	repo       *Repository
	maxPerUser int
	publicKey  string

	now func() time.Time
}

func NewRegistrar(repo *Repository, maxPerUser int, vapidPublicKey string) *Registrar {
	return &Registrar{
		repo:       repo,
		maxPerUser: maxPerUser,
		publicKey:  vapidPublicKey,
		now:        time.Now,
	}
}

// VAPIDPublicKey is what browsers pass to PushManager.subscribe.
func (g *Registrar) VAPIDPublicKey() string { return g.publicKey }

func (g *Registrar) Subscribe(ctx context.Context, p identity.Principal, req *SubscribeRequest) (*Subscription, error) {
	if p.Anonymous() {
		return nil, apperr.Authorization("sign in to enable notifications")
	}
	platform := req.Platform
	if platform == "" {
		platform = "web"
	}
	sub := &Subscription{
		ID:        uuid.New(),
		UserID:    p.UserID,
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		Platform:  platform,
		UpdatedAt: g.now(),
	}
	if err := g.repo.Upsert(ctx, sub, g.maxPerUser); err != nil {
		return nil, err
	}
	return sub, nil
}

func (g *Registrar) Unsubscribe(ctx context.Context, p identity.Principal, endpoint string) error {
	if p.Anonymous() {
		return apperr.Authorization("sign in required")
	}
	return g.repo.DeleteByEndpoint(ctx, p.UserID, endpoint)
}

// DropUser removes every device a removed teammate registered.
func (g *Registrar) DropUser(ctx context.Context, userID uuid.UUID) error {
	return g.repo.DeleteForUser(ctx, userID)
}
