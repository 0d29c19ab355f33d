package media

import (
	"errors"
	"io"
	"net/http"

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

func (h *Handler) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID uuid.UUID `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConversationID == uuid.Nil {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	p := middleware.PrincipalFrom(r.Context())
	ticket, err := h.service.CreateUploadURL(r.Context(), p, req.ConversationID)
	if err != nil {
		http.Error(w, err.Error(), apperr.Status(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ticket)
}

func (h *Handler) MessageImageURLs(w http.ResponseWriter, r *http.Request) {
	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	p := middleware.PrincipalFrom(r.Context())
	urls, err := h.service.URLsForMessage(r.Context(), p, messageID)
	if err != nil {
		http.Error(w, err.Error(), apperr.Status(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(urls)
}

// GetImage is the direct fetch path used by <img> tags: authenticated by
// bearer header or token query param, authorized through the reverse
// lookup. 401 without identity, 403 as a non-member, 404 when absent.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	if p.Anonymous() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	imageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid image id", http.StatusBadRequest)
		return
	}
	variant := r.URL.Query().Get("variant")
	if variant == "" {
		variant = VariantFull
	}

	body, contentType, err := h.service.Open(r.Context(), p, imageID, variant)
	if err != nil {
		h.writeBlobError(w, err)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	io.Copy(w, body)
}

// GetPreviewBlob serves link-preview proxied images.
func (h *Handler) GetPreviewBlob(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	if p.Anonymous() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	key := chi.URLParam(r, "*")
	body, contentType, err := h.service.OpenPreviewBlob(r.Context(), p, "preview/"+key)
	if err != nil {
		h.writeBlobError(w, err)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	io.Copy(w, body)
}

// writeBlobError never leaks blob bytes: the body is only a status phrase.
func (h *Handler) writeBlobError(w http.ResponseWriter, err error) {
	var e *apperr.Error
	if errors.As(err, &e) {
		http.Error(w, http.StatusText(e.HTTPStatus()), e.HTTPStatus())
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
