package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"teamchat/internal/identity"
	"teamchat/internal/middleware"
)

type tokenMap map[string]identity.Principal

func (m tokenMap) ValidateToken(token string) (identity.Principal, error) {
	p, ok := m[token]
	if !ok {
		return identity.Principal{}, fmt.Errorf("invalid token")
	}
	return p, nil
}

// newTestRouter mounts the message routes the way the server does: reads
// behind the optional resolver, writes behind the required one.
func newTestRouter(handler *Handler, tokens tokenMap) http.Handler {
	auth := middleware.NewAuth(tokens)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Optional)
		r.Get("/api/messages", handler.ListMessages)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.Require)
		r.Post("/api/messages", handler.Send)
	})
	return r
}

func TestListMessagesAnonymousGetsEmptyPage(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	member := player("casey")
	conv := seedConversation(store, member)
	if _, err := svc.Send(context.Background(), member, &SendRequest{ConversationID: conv.ID, Body: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	router := newTestRouter(NewHandler(svc, nil), tokenMap{"member-token": member})

	req := httptest.NewRequest(http.MethodGet, "/api/messages?conversation_id="+conv.ID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous list status = %d, want %d", rec.Code, http.StatusOK)
	}
	var page Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Messages) != 0 {
		t.Fatalf("anonymous list returned %d messages, want 0", len(page.Messages))
	}
}

func TestListMessagesMemberSeesMessages(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	member := player("casey")
	conv := seedConversation(store, member)
	if _, err := svc.Send(context.Background(), member, &SendRequest{ConversationID: conv.ID, Body: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	router := newTestRouter(NewHandler(svc, nil), tokenMap{"member-token": member})

	req := httptest.NewRequest(http.MethodGet, "/api/messages?conversation_id="+conv.ID.String(), nil)
	req.Header.Set("Authorization", "Bearer member-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("member list status = %d, want %d", rec.Code, http.StatusOK)
	}
	var page Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("member list returned %d messages, want 1", len(page.Messages))
	}
}

func TestSendStillRequiresAuthentication(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	member := player("casey")
	conv := seedConversation(store, member)

	router := newTestRouter(NewHandler(svc, nil), tokenMap{"member-token": member})

	body := fmt.Sprintf(`{"conversation_id":%q,"body":"hi"}`, conv.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous send status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
