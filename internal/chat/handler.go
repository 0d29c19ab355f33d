package chat

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"teamchat/internal/apperr"
	"teamchat/internal/middleware"
)

type Handler struct {
	service  *Service
	hub      *Hub
	validate *validator.Validate
}

func NewHandler(service *Service, hub *Hub) *Handler {
	return &Handler{service: service, hub: hub, validate: validator.New()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), apperr.Status(err))
}

// Send handles text sends; images and GIFs arrive on their own routes but
// share the request shape and validation.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, func(req *SendRequest) {
		req.Images = nil
		req.GIF = nil
	})
}

func (h *Handler) SendWithImages(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, func(req *SendRequest) {
		req.GIF = nil
	})
}

func (h *Handler) SendGIF(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, func(req *SendRequest) {
		req.Images = nil
	})
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request, shape func(*SendRequest)) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	shape(&req)
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p := middleware.PrincipalFrom(r.Context())
	m, err := h.service.Send(r.Context(), p, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(r.URL.Query().Get("conversation_id"))
	if err != nil {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	p := middleware.PrincipalFrom(r.Context())
	page, err := h.service.List(r.Context(), p, conversationID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	p := middleware.PrincipalFrom(r.Context())
	if err := h.service.Delete(r.Context(), p, messageID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	convs, err := h.service.Conversations(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *Handler) TeamConversation(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	conv, err := h.service.TeamConversation(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uuid.UUID `json:"user_id" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p := middleware.PrincipalFrom(r.Context())
	conv, err := h.service.StartDirect(r.Context(), p, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	var req struct {
		UserID uuid.UUID `json:"user_id" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p := middleware.PrincipalFrom(r.Context())
	if err := h.service.AddParticipant(r.Context(), p, conversationID, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeWs upgrades to the live message stream for one conversation. The open
// socket doubles as the presence heartbeat for push suppression.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	if p.Anonymous() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID, err := uuid.Parse(r.URL.Query().Get("conversation_id"))
	if err != nil {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}
	if err := h.service.guard.RequireMember(r.Context(), p, conversationID); err != nil {
		writeError(w, err)
		return
	}
	h.hub.Serve(w, r, p.UserID, conversationID)
}
