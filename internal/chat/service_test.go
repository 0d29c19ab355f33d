package chat

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"teamchat/internal/apperr"
	"teamchat/internal/config"
	"teamchat/internal/identity"
)

type memStore struct {
	convs       map[uuid.UUID]*Conversation
	members     map[uuid.UUID]map[uuid.UUID]bool
	messages    map[uuid.UUID]*Message
	active      []uuid.UUID
	blobDeleted []string
}

func newMemStore() *memStore {
	return &memStore{
		convs:    make(map[uuid.UUID]*Conversation),
		members:  make(map[uuid.UUID]map[uuid.UUID]bool),
		messages: make(map[uuid.UUID]*Message),
	}
}

func (m *memStore) GetConversation(_ context.Context, id uuid.UUID) (*Conversation, error) {
	c, ok := m.convs[id]
	if !ok {
		return nil, apperr.NotFound("conversation")
	}
	return c, nil
}

func (m *memStore) TeamConversation(context.Context) (*Conversation, error) {
	for _, c := range m.convs {
		if c.IsTeamChat {
			return c, nil
		}
	}
	return nil, apperr.NotFound("team conversation")
}

func (m *memStore) FindDirect(_ context.Context, a, b uuid.UUID) (*Conversation, error) {
	for id, c := range m.convs {
		if c.Type == ConversationDirect && m.members[id][a] && m.members[id][b] {
			return c, nil
		}
	}
	return nil, apperr.NotFound("conversation")
}

func (m *memStore) ListForUser(_ context.Context, userID uuid.UUID) ([]*Conversation, error) {
	var out []*Conversation
	for id, c := range m.convs {
		if m.members[id][userID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) CreateConversation(_ context.Context, c *Conversation, participantIDs []uuid.UUID) error {
	m.convs[c.ID] = c
	m.members[c.ID] = make(map[uuid.UUID]bool)
	for _, id := range participantIDs {
		m.members[c.ID][id] = true
	}
	return nil
}

func (m *memStore) AddParticipant(_ context.Context, conversationID, userID uuid.UUID) error {
	if m.members[conversationID] == nil {
		m.members[conversationID] = make(map[uuid.UUID]bool)
	}
	m.members[conversationID][userID] = true
	return nil
}

func (m *memStore) IsParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	return m.members[conversationID][userID], nil
}

func (m *memStore) Participants(_ context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id := range m.members[conversationID] {
		out = append(out, id)
	}
	return out, nil
}

func (m *memStore) UpdateSummary(_ context.Context, conversationID uuid.UUID, at time.Time, preview, by string) error {
	if c, ok := m.convs[conversationID]; ok {
		c.LastMessageAt = &at
		c.LastMessagePreview = preview
		c.LastMessageBy = by
	}
	return nil
}

func (m *memStore) InsertMessage(_ context.Context, msg *Message) error {
	m.messages[msg.ID] = msg
	return nil
}

func (m *memStore) GetMessage(_ context.Context, id uuid.UUID) (*Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, apperr.NotFound("message")
	}
	return msg, nil
}

func (m *memStore) ListMessages(_ context.Context, conversationID uuid.UUID, cursor Cursor, limit int) ([]*Message, error) {
	var all []*Message
	for _, msg := range m.messages {
		if msg.ConversationID != conversationID {
			continue
		}
		if !cursor.IsZero() {
			if msg.CreatedAt.Before(cursor.CreatedAt) {
				continue
			}
			if msg.CreatedAt.Equal(cursor.CreatedAt) && msg.ID.String() <= cursor.ID.String() {
				continue
			}
		}
		all = append(all, msg)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memStore) LastSentAt(_ context.Context, conversationID, senderID uuid.UUID) (time.Time, error) {
	var last time.Time
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && msg.SenderID == senderID && msg.CreatedAt.After(last) {
			last = msg.CreatedAt
		}
	}
	return last, nil
}

func (m *memStore) DeleteMessage(_ context.Context, id uuid.UUID) error {
	delete(m.messages, id)
	return nil
}

func (m *memStore) RedactAuthor(_ context.Context, authorID uuid.UUID, sentinel string) (int64, error) {
	var n int64
	for _, msg := range m.messages {
		if msg.SenderID == authorID && msg.SenderName != sentinel {
			msg.SenderName = sentinel
			n++
		}
	}
	return n, nil
}

func (m *memStore) ActiveUserIDs(context.Context) ([]uuid.UUID, error) {
	return m.active, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.blobDeleted = append(m.blobDeleted, key)
	return nil
}

func testConfig() config.ChatConfig {
	return config.ChatConfig{
		MaxBodyLen:       2000,
		MaxImages:        4,
		MaxURLsPerBody:   3,
		SendInterval:     time.Second,
		SelfDeleteWindow: 15 * time.Minute,
		PageSize:         50,
		TeamChatName:     "Team",
	}
}

func newTestService(store *memStore) *Service {
	return NewService(store, store, NewGuard(store), store, store, testConfig())
}

func player(name string) identity.Principal {
	return identity.Principal{UserID: uuid.New(), Username: name, DisplayName: name, Role: identity.RolePlayer}
}

func admin(name string) identity.Principal {
	p := player(name)
	p.Role = identity.RoleAdmin
	return p
}

func seedConversation(store *memStore, members ...identity.Principal) *Conversation {
	conv := &Conversation{ID: uuid.New(), Type: ConversationGroup, CreatedAt: time.Now()}
	ids := make([]uuid.UUID, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	store.CreateConversation(context.Background(), conv, ids)
	return conv
}

func TestSendRejectsAnonymous(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	conv := seedConversation(store)

	_, err := svc.Send(context.Background(), identity.Principal{}, &SendRequest{ConversationID: conv.ID, Body: "hi"})
	if !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestSendRequiresMembership(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	conv := seedConversation(store, player("alice"))

	outsider := player("mallory")
	_, err := svc.Send(context.Background(), outsider, &SendRequest{ConversationID: conv.ID, Body: "hi"})
	if !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestSendBodyAttachmentRule(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	alice := player("alice")
	conv := seedConversation(store, alice)
	ctx := context.Background()

	_, err := svc.Send(ctx, alice, &SendRequest{ConversationID: conv.ID, Body: "   "})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("blank body without attachment: expected validation error, got %v", err)
	}

	gif := &GIFInput{Provider: "giphy", ProviderID: "abc", URL: "https://example.com/a.gif",
		PreviewURL: "https://example.com/a-s.gif", Width: 200, Height: 100}
	m, err := svc.Send(ctx, alice, &SendRequest{ConversationID: conv.ID, GIF: gif})
	if err != nil {
		t.Fatalf("empty body with gif should be allowed: %v", err)
	}
	if m.Body != "" || m.GIF == nil {
		t.Fatalf("unexpected message %+v", m)
	}
}

func TestSendBodyTooLong(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	alice := player("alice")
	conv := seedConversation(store, alice)

	long := make([]rune, 2001)
	for i := range long {
		long[i] = 'x'
	}
	_, err := svc.Send(context.Background(), alice, &SendRequest{ConversationID: conv.ID, Body: string(long)})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSendTooManyImages(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	alice := player("alice")
	conv := seedConversation(store, alice)

	imgs := make([]ImageInput, 5)
	for i := range imgs {
		imgs[i] = ImageInput{FullKey: "f", ThumbKey: "t", Width: 10, Height: 10}
	}
	_, err := svc.Send(context.Background(), alice, &SendRequest{ConversationID: conv.ID, Images: imgs})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSendRateLimit(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	alice := player("alice")
	conv := seedConversation(store, alice)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	if _, err := svc.Send(ctx, alice, &SendRequest{ConversationID: conv.ID, Body: "one"}); err != nil {
		t.Fatalf("first send: %v", err)
	}

	svc.now = func() time.Time { return base.Add(200 * time.Millisecond) }
	_, err := svc.Send(ctx, alice, &SendRequest{ConversationID: conv.ID, Body: "two"})
	if !apperr.IsKind(err, apperr.KindRateLimit) {
		t.Fatalf("expected rate limit error, got %v", err)
	}

	svc.now = func() time.Time { return base.Add(2 * time.Second) }
	if _, err := svc.Send(ctx, alice, &SendRequest{ConversationID: conv.ID, Body: "three"}); err != nil {
		t.Fatalf("send after interval: %v", err)
	}
}

func TestSendSnapshotsSender(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	alice := player("alice")
	conv := seedConversation(store, alice)

	m, err := svc.Send(context.Background(), alice, &SendRequest{ConversationID: conv.ID, Body: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.SenderName != "alice" || m.SenderRole != identity.RolePlayer {
		t.Fatalf("sender snapshot missing: %+v", m)
	}
	if store.convs[conv.ID].LastMessagePreview != "hello" {
		t.Fatalf("summary not updated: %+v", store.convs[conv.ID])
	}
}

func TestListNonMemberGetsEmptyPage(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	alice := player("alice")
	conv := seedConversation(store, alice)
	if _, err := svc.Send(context.Background(), alice, &SendRequest{ConversationID: conv.ID, Body: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, p := range []identity.Principal{{}, player("mallory")} {
		page, err := svc.List(context.Background(), p, conv.ID, "", 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(page.Messages) != 0 || page.NextCursor != "" {
			t.Fatalf("expected empty page, got %+v", page)
		}
	}
}

func TestListPagination(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	alice := player("alice")
	conv := seedConversation(store, alice)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * 2 * time.Second)
		svc.now = func() time.Time { return at }
		if _, err := svc.Send(ctx, alice, &SendRequest{ConversationID: conv.ID, Body: "m"}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	first, err := svc.List(ctx, alice, conv.ID, "", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Messages) != 2 || first.NextCursor == "" {
		t.Fatalf("expected full first page with cursor, got %d messages", len(first.Messages))
	}

	second, err := svc.List(ctx, alice, conv.ID, first.NextCursor, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second.Messages) != 2 {
		t.Fatalf("expected 2 messages on second page, got %d", len(second.Messages))
	}
	if !second.Messages[0].CreatedAt.After(first.Messages[1].CreatedAt) {
		t.Fatal("second page should start after the first page's last message")
	}

	third, err := svc.List(ctx, alice, conv.ID, second.NextCursor, 2)
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(third.Messages) != 1 {
		t.Fatalf("expected 1 message on third page, got %d", len(third.Messages))
	}
}

func TestDeleteReleasesBlobs(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	alice := player("alice")
	conv := seedConversation(store, alice)

	m, err := svc.Send(context.Background(), alice, &SendRequest{
		ConversationID: conv.ID,
		Images: []ImageInput{
			{FullKey: "a/full", ThumbKey: "a/thumb", Width: 10, Height: 10},
			{FullKey: "b/full", ThumbKey: "b/thumb", Width: 10, Height: 10},
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.Delete(context.Background(), alice, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.blobDeleted) != 4 {
		t.Fatalf("expected 4 blob deletes, got %v", store.blobDeleted)
	}
	if _, err := store.GetMessage(context.Background(), m.ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatal("message row should be gone")
	}
}

func TestDeleteAuthorization(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	alice := player("alice")
	bob := player("bob")
	boss := admin("boss")
	conv := seedConversation(store, alice, bob, boss)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	m, err := svc.Send(ctx, alice, &SendRequest{ConversationID: conv.ID, Body: "oops"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.Delete(ctx, bob, m.ID); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("other player should not delete, got %v", err)
	}

	svc.now = func() time.Time { return base.Add(16 * time.Minute) }
	if err := svc.Delete(ctx, alice, m.ID); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("author past window should not delete, got %v", err)
	}

	if err := svc.Delete(ctx, boss, m.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestRedactAuthorIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	alice := player("alice")
	conv := seedConversation(store, alice)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * 2 * time.Second)
		svc.now = func() time.Time { return at }
		if _, err := svc.Send(ctx, alice, &SendRequest{ConversationID: conv.ID, Body: "m"}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	if err := svc.RedactAuthor(ctx, alice.UserID); err != nil {
		t.Fatalf("redact: %v", err)
	}
	for _, m := range store.messages {
		if m.SenderName != identity.RedactedName {
			t.Fatalf("message not redacted: %+v", m)
		}
	}
	// Second pass is a no-op.
	if err := svc.RedactAuthor(ctx, alice.UserID); err != nil {
		t.Fatalf("second redact: %v", err)
	}
}

func TestTeamConversationSingletonAndRosterSync(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	alice := player("alice")
	bob := player("bob")
	store.active = []uuid.UUID{alice.UserID}
	ctx := context.Background()

	conv, err := svc.TeamConversation(ctx, alice)
	if err != nil {
		t.Fatalf("team conversation: %v", err)
	}
	if !conv.IsTeamChat || conv.Type != ConversationGroup {
		t.Fatalf("unexpected conversation %+v", conv)
	}

	// New roster member is picked up on next access.
	store.active = []uuid.UUID{alice.UserID, bob.UserID}
	again, err := svc.TeamConversation(ctx, alice)
	if err != nil {
		t.Fatalf("second access: %v", err)
	}
	if again.ID != conv.ID {
		t.Fatal("team conversation must be a singleton")
	}
	if !store.members[conv.ID][bob.UserID] {
		t.Fatal("new roster member not added")
	}
}

func TestStartDirect(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	alice := player("alice")
	bob := player("bob")
	ctx := context.Background()

	if _, err := svc.StartDirect(ctx, alice, alice.UserID); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("self conversation should be rejected, got %v", err)
	}

	conv, err := svc.StartDirect(ctx, alice, bob.UserID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	again, err := svc.StartDirect(ctx, bob, alice.UserID)
	if err != nil {
		t.Fatalf("start again: %v", err)
	}
	if conv.ID != again.ID {
		t.Fatal("direct conversation should be reused from either side")
	}
}

func TestAddParticipantAdminOnly(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	alice := player("alice")
	bob := player("bob")
	boss := admin("boss")
	conv := seedConversation(store, alice, boss)
	ctx := context.Background()

	if err := svc.AddParticipant(ctx, alice, conv.ID, bob.UserID); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("player should not add participants, got %v", err)
	}
	if err := svc.AddParticipant(ctx, boss, conv.ID, bob.UserID); err != nil {
		t.Fatalf("admin add: %v", err)
	}
	if !store.members[conv.ID][bob.UserID] {
		t.Fatal("participant not added")
	}
}
