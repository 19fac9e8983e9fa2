// Package handler exposes the ingestion trigger over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion/validator"
	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/logger"
)

// Runner executes one ingestion. *ingestion.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, req ingestion.Request) (ingestion.Report, error)
}

type Handler struct {
	runner Runner
	logger *slog.Logger
}

func New(runner Runner) *Handler {
	return &Handler{
		runner: runner,
		logger: slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest handles POST /admin/ingest. The body is optional; absent fields
// use the configured source, index and format. The run continues if the
// client goes away.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingestion.Request
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "unreadable request body"))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid JSON body"))
			return
		}
	}
	if err := validator.ValidateRequest(req.Source, req.Index, req.Format); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"status": "error",
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, err)
		return
	}

	rep, err := h.runner.Run(context.WithoutCancel(ctx), req)
	if err != nil {
		log.Error("ingestion trigger failed", "error", err, "status_code", apperrors.HTTPStatusCode(err))
		h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]any{
			"status": "error",
			"error":  apperrors.Message(err),
			"report": rep,
		})
		return
	}
	log.Info("ingestion triggered", "outcome", rep.Outcome, "generation", rep.Generation)
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "success", "report": rep})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{
		"status": "error",
		"error":  apperrors.Message(err),
	})
}
