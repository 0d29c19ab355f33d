package chat

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"teamchat/internal/logging"
)

const redisChannel = "teamchat:messages"

// envelope is the wire format published to Redis so every instance can fan
// a message out to its own connected clients.
type envelope struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Message        *Message  `json:"message"`
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	// done is closed when Run returns so pump goroutines never block on
	// the register/unregister channels after shutdown.
	done     chan struct{}
	redis    *redis.Client
	presence Presence
}

func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		redis:      redisClient,
	}
}

// BroadcastMessage publishes a persisted message; every instance's hub
// (including this one) picks it up over Redis pub/sub.
func (h *Hub) BroadcastMessage(m *Message) {
	payload, err := json.Marshal(envelope{ConversationID: m.ConversationID, Message: m})
	if err != nil {
		return
	}
	if err := h.redis.Publish(context.Background(), redisChannel, payload).Err(); err != nil {
		logging.Error().Err(err).Msg("redis publish failed")
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case payload := <-h.broadcast:
			var env envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				continue
			}
			for client := range h.clients {
				if client.conversationID != env.ConversationID {
					continue
				}
				select {
				case client.send <- payload:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// SubscribeToRedis pipes cross-instance messages into the hub. Blocks;
// start in a goroutine.
func (h *Hub) SubscribeToRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast <- []byte(msg.Payload)
		}
	}
}
