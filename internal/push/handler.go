package push

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"teamchat/internal/apperr"
	"teamchat/internal/middleware"
)

type Handler struct {
	registrar *Registrar
	validate  *validator.Validate
}

func NewHandler(g *Registrar) *Handler {
	return &Handler{registrar: g, validate: validator.New()}
}

func (h *Handler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"public_key": h.registrar.VAPIDPublicKey()})
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p := middleware.PrincipalFrom(r.Context())
	sub, err := h.registrar.Subscribe(r.Context(), p, &req)
	if err != nil {
		http.Error(w, err.Error(), apperr.Status(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sub)
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p := middleware.PrincipalFrom(r.Context())
	if err := h.registrar.Unsubscribe(r.Context(), p, req.Endpoint); err != nil {
		http.Error(w, err.Error(), apperr.Status(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
