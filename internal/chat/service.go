package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"teamchat/internal/apperr"
	"teamchat/internal/config"
	"teamchat/internal/identity"
	"teamchat/internal/logging"
	"teamchat/internal/metrics"
)

// ConversationStore and MessageStore are the repository slices the service
// consumes; *Repository satisfies both.
type ConversationStore interface {
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
	TeamConversation(ctx context.Context) (*Conversation, error)
	FindDirect(ctx context.Context, a, b uuid.UUID) (*Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Conversation, error)
	CreateConversation(ctx context.Context, c *Conversation, participantIDs []uuid.UUID) error
	AddParticipant(ctx context.Context, conversationID, userID uuid.UUID) error
	Participants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	UpdateSummary(ctx context.Context, conversationID uuid.UUID, at time.Time, preview, by string) error
}

type MessageStore interface {
	InsertMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, cursor Cursor, limit int) ([]*Message, error)
	LastSentAt(ctx context.Context, conversationID, senderID uuid.UUID) (time.Time, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error
	RedactAuthor(ctx context.Context, authorID uuid.UUID, sentinel string) (int64, error)
}

// BlobDeleter releases stored image blobs when a message is deleted.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// SideEffects schedules the decoupled follow-up work of a send (link
// preview enrichment, debounced push). Implementations must not block and
// must never fail the send.
type SideEffects interface {
	MessageSent(conversationID, messageID, senderID uuid.UUID, senderName, body string)
}

// Roster lists the active players; the team conversation tracks this set.
type Roster interface {
	ActiveUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Broadcaster pushes persisted messages to connected websocket clients.
type Broadcaster interface {
	BroadcastMessage(m *Message)
}

type Service struct {
	convs   ConversationStore
	msgs    MessageStore
	guard   *Guard
	blobs   BlobDeleter
	effects SideEffects
	roster  Roster
	hub     Broadcaster
	cfg     config.ChatConfig

	now func() time.Time
}

func NewService(convs ConversationStore, msgs MessageStore, guard *Guard, blobs BlobDeleter, roster Roster, cfg config.ChatConfig) *Service {
	return &Service{
		convs:  convs,
		msgs:   msgs,
		guard:  guard,
		blobs:  blobs,
		roster: roster,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SetSideEffects wires the preview/push schedulers. Optional; a nil value
// means sends have no follow-up work (tests).
func (s *Service) SetSideEffects(effects SideEffects) { s.effects = effects }

// SetBroadcaster wires the websocket hub. Optional.
func (s *Service) SetBroadcaster(hub Broadcaster) { s.hub = hub }

// Send validates and persists a message, updates the conversation summary,
// and schedules follow-up work. Body and attachments follow one rule: the
// body may be empty only when an attachment is present.
func (s *Service) Send(ctx context.Context, p identity.Principal, req *SendRequest) (*Message, error) {
	if p.Anonymous() {
		return nil, apperr.Authorization("authentication required")
	}
	if err := s.guard.RequireMember(ctx, p, req.ConversationID); err != nil {
		return nil, err
	}

	body := strings.TrimSpace(req.Body)
	if len([]rune(body)) > s.cfg.MaxBodyLen {
		return nil, apperr.Validation("message exceeds %d characters", s.cfg.MaxBodyLen)
	}
	if len(req.Images) > s.cfg.MaxImages {
		return nil, apperr.Validation("at most %d images per message", s.cfg.MaxImages)
	}
	if body == "" && len(req.Images) == 0 && req.GIF == nil {
		return nil, apperr.Validation("message needs text or an attachment")
	}

	last, err := s.msgs.LastSentAt(ctx, req.ConversationID, p.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !last.IsZero() && now.Sub(last) < s.cfg.SendInterval {
		return nil, apperr.RateLimit("sending too fast, slow down")
	}

	m := &Message{
		ID:             uuid.New(),
		ConversationID: req.ConversationID,
		SenderID:       p.UserID,
		SenderName:     p.DisplayName,
		SenderRole:     p.Role,
		Body:           body,
		CreatedAt:      now,
	}
	for i, img := range req.Images {
		m.Images = append(m.Images, ImageAttachment{
			ID:       uuid.New(),
			Position: i,
			FullKey:  img.FullKey,
			ThumbKey: img.ThumbKey,
			Width:    img.Width,
			Height:   img.Height,
		})
	}
	if req.GIF != nil {
		m.GIF = &GIF{
			Provider:   req.GIF.Provider,
			ProviderID: req.GIF.ProviderID,
			URL:        req.GIF.URL,
			PreviewURL: req.GIF.PreviewURL,
			Width:      req.GIF.Width,
			Height:     req.GIF.Height,
		}
	}

	if err := s.msgs.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues(messageKind(m)).Inc()

	// Cross-entity follow-ups are deliberately non-transactional with the
	// insert: a failure here loses a summary or a notification, never the
	// message.
	if err := s.convs.UpdateSummary(ctx, m.ConversationID, m.CreatedAt, summaryPreview(m), m.SenderName); err != nil {
		logging.Error().Err(err).Str("conversation_id", m.ConversationID.String()).Msg("summary update failed")
	}
	if s.effects != nil {
		s.effects.MessageSent(m.ConversationID, m.ID, m.SenderID, m.SenderName, m.Body)
	}
	if s.hub != nil {
		s.hub.BroadcastMessage(m)
	}
	return m, nil
}

func messageKind(m *Message) string {
	switch {
	case len(m.Images) > 0:
		return "images"
	case m.GIF != nil:
		return "gif"
	default:
		return "text"
	}
}

const summaryPreviewLen = 120

func summaryPreview(m *Message) string {
	if m.Body != "" {
		runes := []rune(m.Body)
		if len(runes) > summaryPreviewLen {
			return string(runes[:summaryPreviewLen])
		}
		return m.Body
	}
	if m.GIF != nil {
		return "[gif]"
	}
	return "[photo]"
}

// List returns one page of messages, oldest first. Anonymous callers and
// non-members get an empty page rather than an error so conversation
// existence never leaks.
func (s *Service) List(ctx context.Context, p identity.Principal, conversationID uuid.UUID, cursorToken string, limit int) (*Page, error) {
	ok, err := s.guard.IsMember(ctx, p, conversationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Page{Messages: []*Message{}}, nil
	}

	if limit <= 0 || limit > s.cfg.PageSize {
		limit = s.cfg.PageSize
	}
	msgs, err := s.msgs.ListMessages(ctx, conversationID, DecodeCursor(cursorToken), limit)
	if err != nil {
		return nil, err
	}

	page := &Page{Messages: msgs}
	if len(msgs) == limit {
		last := msgs[len(msgs)-1]
		page.NextCursor = Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return page, nil
}

// Delete removes a message. Allowed for admins, and for the author within
// the self-delete window. Image blobs are released before the row goes.
func (s *Service) Delete(ctx context.Context, p identity.Principal, messageID uuid.UUID) error {
	if p.Anonymous() {
		return apperr.Authorization("authentication required")
	}
	m, err := s.msgs.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	owner := m.SenderID == p.UserID
	withinWindow := s.now().Sub(m.CreatedAt) <= s.cfg.SelfDeleteWindow
	if !p.IsAdmin() && !(owner && withinWindow) {
		return apperr.Authorization("cannot delete this message")
	}

	for _, img := range m.Images {
		for _, key := range []string{img.FullKey, img.ThumbKey} {
			if err := s.blobs.Delete(ctx, key); err != nil {
				logging.Error().Err(err).Str("key", key).Msg("blob delete failed")
			}
		}
	}
	return s.msgs.DeleteMessage(ctx, messageID)
}

// RedactAuthor rewrites the display name on all of a removed account's
// messages to the tombstone sentinel, preserving conversational context.
func (s *Service) RedactAuthor(ctx context.Context, authorID uuid.UUID) error {
	n, err := s.msgs.RedactAuthor(ctx, authorID, identity.RedactedName)
	if err != nil {
		return err
	}
	if n > 0 {
		logging.Info().Int64("messages", n).Str("author_id", authorID.String()).Msg("redacted author display name")
	}
	return nil
}

// TeamConversation returns the singleton team chat, creating it on first
// access and syncing its participant set against the active roster.
func (s *Service) TeamConversation(ctx context.Context, p identity.Principal) (*Conversation, error) {
	if p.Anonymous() {
		return nil, apperr.Authorization("authentication required")
	}

	conv, err := s.convs.TeamConversation(ctx)
	if apperr.IsKind(err, apperr.KindNotFound) {
		conv, err = s.createTeamConversation(ctx)
	}
	if err != nil {
		return nil, err
	}

	// Roster adds since creation: every active player belongs here.
	active, err := s.roster.ActiveUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.convs.Participants(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	have := make(map[uuid.UUID]bool, len(current))
	for _, id := range current {
		have[id] = true
	}
	for _, id := range active {
		if !have[id] {
			if err := s.convs.AddParticipant(ctx, conv.ID, id); err != nil {
				return nil, err
			}
		}
	}
	return conv, nil
}

func (s *Service) createTeamConversation(ctx context.Context) (*Conversation, error) {
	ids, err := s.roster.ActiveUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	conv := &Conversation{
		ID:         uuid.New(),
		Type:       ConversationGroup,
		Name:       s.cfg.TeamChatName,
		IsTeamChat: true,
		CreatedAt:  s.now(),
	}
	if err := s.convs.CreateConversation(ctx, conv, ids); err != nil {
		// Lost the creation race; the unique index keeps this a singleton.
		if existing, getErr := s.convs.TeamConversation(ctx); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return conv, nil
}

// StartDirect finds or creates the direct conversation between the caller
// and another user.
func (s *Service) StartDirect(ctx context.Context, p identity.Principal, otherID uuid.UUID) (*Conversation, error) {
	if p.Anonymous() {
		return nil, apperr.Authorization("authentication required")
	}
	if otherID == p.UserID {
		return nil, apperr.Validation("cannot start a conversation with yourself")
	}

	conv, err := s.convs.FindDirect(ctx, p.UserID, otherID)
	if err == nil {
		return conv, nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	conv = &Conversation{
		ID:        uuid.New(),
		Type:      ConversationDirect,
		CreatedAt: s.now(),
	}
	if err := s.convs.CreateConversation(ctx, conv, []uuid.UUID{p.UserID, otherID}); err != nil {
		return nil, err
	}
	return conv, nil
}

// Conversations lists the caller's conversations, most recently active first.
func (s *Service) Conversations(ctx context.Context, p identity.Principal) ([]*Conversation, error) {
	if p.Anonymous() {
		return []*Conversation{}, nil
	}
	return s.convs.ListForUser(ctx, p.UserID)
}

// AddParticipant adds a user to a group conversation. Admin only; this is
// the roster-change entry point.
func (s *Service) AddParticipant(ctx context.Context, p identity.Principal, conversationID, userID uuid.UUID) error {
	if !p.IsAdmin() {
		return apperr.Authorization("admin role required")
	}
	conv, err := s.convs.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Type != ConversationGroup {
		return apperr.Validation("can only add participants to group conversations")
	}
	return s.convs.AddParticipant(ctx, conversationID, userID)
}
