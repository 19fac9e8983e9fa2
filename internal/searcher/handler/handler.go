// Package handler serves the search, lookup, autocomplete and facet
// endpoints over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/analytics"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/index"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/searcher/cache"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/searcher/executor"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/suggest"
	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/logger"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/middleware"
)

// maxBodyBytes bounds a POST search body.
const maxBodyBytes = 1 << 20

type Searcher interface {
	Search(ctx context.Context, req movie.SearchRequest) (*movie.SearchResult, error)
	Get(ctx context.Context, id int64) (movie.Document, error)
	Status() (index.Status, error)
}

type Suggester interface {
	Suggest(ctx context.Context, prefix string) ([]string, error)
	Genres(ctx context.Context) ([]suggest.GenreCount, error)
}

// Tracker receives search events. *analytics.Collector implements it.
type Tracker interface {
	Track(event any)
}

type Handler struct {
	searcher  Searcher
	suggester Suggester
	cache     *cache.QueryCache
	tracker   Tracker
	logger    *slog.Logger
}

// New creates a Handler. queryCache and tracker may be nil.
func New(s Searcher, sg Suggester, queryCache *cache.QueryCache, tracker Tracker) *Handler {
	return &Handler{
		searcher:  s,
		suggester: sg,
		cache:     queryCache,
		tracker:   tracker,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Search handles GET with query parameters and POST with a JSON body.
// Malformed filter values are dropped rather than rejected.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req movie.SearchRequest
	if r.Method == http.MethodPost {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "unreadable request body"))
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "request body must be a JSON object"))
				return
			}
		}
	} else {
		req = movie.ParseQuery(r.URL.Query())
	}
	h.search(w, r, req)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, req movie.SearchRequest) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	result, err := h.searcher.Search(ctx, req)
	if err != nil {
		log.Error("search failed", "query", req.Query, "error", err)
		h.writeError(w, err)
		return
	}
	latencyMs := time.Since(start).Milliseconds()

	if h.tracker != nil {
		mode := executor.ModeRelevance
		if movie.IsSortAllowed(req.SortBy) {
			mode = executor.ModeSorted
		}
		h.tracker.Track(analytics.SearchEvent{
			Type:      analytics.EventSearch,
			Query:     req.Query,
			Filtered:  req.HasFilters(),
			Mode:      mode,
			TotalHits: result.Total,
			Returned:  len(result.Results),
			Page:      result.Page,
			LatencyMs: latencyMs,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r),
		})
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Get handles GET /movies/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "movie id %q is not an integer", raw))
		return
	}
	doc, err := h.searcher.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// Suggest handles GET /movies/suggest?query=.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	titles, err := h.suggester.Suggest(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		logger.FromContext(r.Context()).Error("suggest failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"suggestions": titles})
}

// Genres handles GET /movies/genres. ?counts=true adds document counts.
func (h *Handler) Genres(w http.ResponseWriter, r *http.Request) {
	counts, err := h.suggester.Genres(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("genre facet failed", "error", err)
		h.writeError(w, err)
		return
	}
	body := map[string]any{"genres": suggest.Names(counts)}
	if v, _ := strconv.ParseBool(r.URL.Query().Get("counts")); v {
		body["counts"] = counts
	}
	h.writeJSON(w, http.StatusOK, body)
}

// Status handles GET /index/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.searcher.Status()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	s := h.cache.Stats()
	total := s.Hits + s.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(s.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"enabled":  s.Enabled,
		"hits":     s.Hits,
		"misses":   s.Misses,
		"total":    total,
		"hit_rate": strconv.FormatFloat(hitRate, 'f', 1, 64) + "%",
		"breaker":  s.Breaker,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if !h.cache.Enabled() {
		h.writeError(w, apperrors.New(errors.New("cache disabled"), http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
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
