package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"teamchat/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// presencePeriod must stay well under the push dispatcher's presence
	// threshold so an open socket reliably suppresses pushes.
	presencePeriod = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Presence records that a user is actively viewing a conversation. The push
// dispatcher reads the same store to suppress redundant notifications.
type Presence interface {
	Heartbeat(ctx context.Context, userID, conversationID uuid.UUID)
}

// SetPresence wires the heartbeat store. Optional.
func (h *Hub) SetPresence(p Presence) { h.presence = p }

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	hub            *Hub
	conn           *websocket.Conn
	send           chan []byte
	userID         uuid.UUID
	conversationID uuid.UUID
}

// Serve upgrades the connection and starts the pumps. Membership has been
// checked by the caller.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID, conversationID uuid.UUID) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:            h,
		conn:           conn,
		send:           make(chan []byte, 256),
		userID:         userID,
		conversationID: conversationID,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	client.heartbeat()

	go client.writePump()
	go client.readPump()
}

// detach hands the client back to the hub, or gives up immediately if the
// hub has already shut down.
func (c *Client) detach() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

func (c *Client) heartbeat() {
	if c.hub.presence != nil {
		c.hub.presence.Heartbeat(context.Background(), c.userID, c.conversationID)
	}
}

// readPump drains control frames and keeps the read deadline fresh. The
// stream is one-way; client text frames are ignored.
func (c *Client) readPump() {
	defer func() {
		c.detach()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Msg("websocket closed")
			}
			break
		}
	}
}

// writePump pumps hub broadcasts to the connection and refreshes the
// presence heartbeat while the socket stays open.
func (c *Client) writePump() {
	pingTicker := time.NewTicker(pingPeriod)
	presenceTicker := time.NewTicker(presencePeriod)
	defer func() {
		pingTicker.Stop()
		presenceTicker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)

			// Flush anything queued behind this frame in one writer.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-presenceTicker.C:
			c.heartbeat()

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
