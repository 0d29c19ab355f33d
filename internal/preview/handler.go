package preview

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"teamchat/internal/apperr"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// GetByHash returns one cached preview entry.
func (h *Handler) GetByHash(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	entry, err := h.service.GetByHash(r.Context(), hash)
	if err != nil {
		http.Error(w, err.Error(), apperr.Status(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// GetBatch returns the cached entries among a comma-separated hash list.
// Absent hashes are simply omitted; the client treats them as no preview
// yet.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("hashes")
	if raw == "" {
		http.Error(w, "hashes is required", http.StatusBadRequest)
		return
	}
	hashes := strings.Split(raw, ",")
	if len(hashes) > 50 {
		http.Error(w, "too many hashes", http.StatusBadRequest)
		return
	}

	entries, err := h.service.GetByHashes(r.Context(), hashes)
	if err != nil {
		http.Error(w, err.Error(), apperr.Status(err))
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
