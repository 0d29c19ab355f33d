package push

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"teamchat/internal/logging"
)

// RedisPresence tracks which users are actively viewing which conversation.
// An open websocket stream refreshes the key; the dispatcher treats a live
// key as "already looking at it" and suppresses the notification.
type RedisPresence struct {
	client    *redis.Client
	threshold time.Duration
}

func NewRedisPresence(client *redis.Client, threshold time.Duration) *RedisPresence {
	return &RedisPresence{client: client, threshold: threshold}
}

func presenceKey(userID, conversationID uuid.UUID) string {
	return fmt.Sprintf("presence:%s:%s", userID, conversationID)
}

// Heartbeat marks the user active in the conversation. The key carries its
// own TTL, so a dropped connection goes stale without any cleanup pass.
func (p *RedisPresence) Heartbeat(ctx context.Context, userID, conversationID uuid.UUID) {
	err := p.client.Set(ctx, presenceKey(userID, conversationID), "1", p.threshold).Err()
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID.String()).Msg("presence heartbeat failed")
	}
}

// Active reports whether the user has a fresh heartbeat for the conversation.
// Redis errors count as inactive: a spurious notification beats a silently
// dropped one.
func (p *RedisPresence) Active(ctx context.Context, userID, conversationID uuid.UUID) bool {
	n, err := p.client.Exists(ctx, presenceKey(userID, conversationID)).Result()
	if err != nil {
		logging.Warn().Err(err).Msg("presence lookup failed")
		return false
	}
	return n > 0
}

// RedisDebounce coalesces burst sends into one scheduled job per
// conversation. Only the first acquire within the window wins.
type RedisDebounce struct {
	client *redis.Client
}

func NewRedisDebounce(client *redis.Client) *RedisDebounce {
	return &RedisDebounce{client: client}
}

func (d *RedisDebounce) TryAcquire(ctx context.Context, conversationID uuid.UUID, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, "push:"+conversationID.String(), "1", ttl).Result()
}
