package feedback

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/logger"
)

// Handler exposes feedback over HTTP. Routes carry the movie id as the
// {id} path value.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default().With("component", "feedback-handler"),
	}
}

// Submit handles POST /movies/feedback/{id}?score=N. score defaults to 3.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.movieID(w, r)
	if !ok {
		return
	}
	score := NeutralScore
	if s := r.URL.Query().Get("score"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			h.writeError(w, apperrors.Newf(apperrors.ErrInvalidScore, http.StatusBadRequest, "score %q is not an integer", s))
			return
		}
		score = v
	}

	value, err := h.service.Submit(r.Context(), id, score)
	if err != nil {
		logger.FromContext(r.Context()).Warn("feedback rejected", "movie_id", id, "score", score, "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "success", "feedback": value})
}

// ResetOne handles POST /admin/feedback/reset/{id}.
func (h *Handler) ResetOne(w http.ResponseWriter, r *http.Request) {
	id, ok := h.movieID(w, r)
	if !ok {
		return
	}
	if err := h.service.ResetOne(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "success", "feedback": 0})
}

// ResetAll handles POST /admin/feedback/reset.
func (h *Handler) ResetAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ResetAll(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("feedback reset failed", "error", err)
		h.writeError(w, err)
		return
	}
	status := "success"
	if report.FailedSlices > 0 {
		status = "partial"
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": status, "report": report})
}

func (h *Handler) movieID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "movie id %q is not an integer", raw))
		return 0, false
	}
	return id, true
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
