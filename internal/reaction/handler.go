package reaction

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"teamchat/internal/apperr"
	"teamchat/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p := middleware.PrincipalFrom(r.Context())
	result, err := h.service.Toggle(r.Context(), p, messageID, req.Emoji)
	if err != nil {
		http.Error(w, err.Error(), apperr.Status(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *Handler) ForMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	p := middleware.PrincipalFrom(r.Context())
	aggs, err := h.service.ForMessage(r.Context(), p, messageID)
	if err != nil {
		http.Error(w, err.Error(), apperr.Status(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(aggs)
}

// ForMessages answers ?ids=a,b,c with a map of message id to aggregates.
func (h *Handler) ForMessages(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		http.Error(w, "ids is required", http.StatusBadRequest)
		return
	}
	parts := strings.Split(raw, ",")
	if len(parts) > 100 {
		http.Error(w, "too many ids", http.StatusBadRequest)
		return
	}
	ids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(part)
		if err != nil {
			http.Error(w, "invalid message id", http.StatusBadRequest)
			return
		}
		ids = append(ids, id)
	}

	p := middleware.PrincipalFrom(r.Context())
	aggs, err := h.service.ForMessages(r.Context(), p, ids)
	if err != nil {
		http.Error(w, err.Error(), apperr.Status(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(aggs)
}
