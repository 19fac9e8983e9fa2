package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/auth/apikey"
	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/logger"
)

// DefaultKeyRateLimit is applied to keys created without a rate_limit.
const DefaultKeyRateLimit = 100

// KeyStore manages admin API keys.
type KeyStore interface {
	CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, *apikey.KeyInfo, error)
	ListKeys(ctx context.Context) ([]apikey.KeyInfo, error)
	RevokeID(ctx context.Context, id string) error
}

// KeyHandler serves the admin key endpoints.
type KeyHandler struct {
	keys   KeyStore
	logger *slog.Logger
}

func NewKeyHandler(keys KeyStore) *KeyHandler {
	return &KeyHandler{
		keys:   keys,
		logger: slog.Default().With("component", "key-handler"),
	}
}

// Create creates a new API key and returns the raw key, which is shown
// only once.
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		RateLimit int    `json:"rate_limit"`
		ExpiresIn string `json:"expires_in,omitempty"` // Go duration, e.g. "720h"
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid JSON body"))
		return
	}
	if req.Name == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "name is required"))
		return
	}
	if req.RateLimit <= 0 {
		req.RateLimit = DefaultKeyRateLimit
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid expires_in duration"))
			return
		}
		t := time.Now().Add(d).UTC()
		expiresAt = &t
	}

	raw, info, err := h.keys.CreateKey(r.Context(), req.Name, req.RateLimit, expiresAt)
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to create api key", "error", err)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"api_key": raw,
		"key":     info,
		"message": "store this key securely, it cannot be retrieved again",
	})
}

// List returns all active API keys without their hashes.
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListKeys(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to list api keys", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

// Revoke deactivates the key named by the id path value.
func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.keys.RevokeID(r.Context(), id)
	if errors.Is(err, apikey.ErrInvalidKey) {
		h.writeError(w, apperrors.New(apikey.ErrInvalidKey, http.StatusNotFound, "no active key with id "+id))
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *KeyHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *KeyHandler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{
		"status": "error",
		"error":  apperrors.Message(err),
	})
}
