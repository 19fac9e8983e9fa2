package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Event sections served by Handler.Stats.
const (
	SectionSearch   = "search"
	SectionFeedback = "feedback"
	SectionIngest   = "ingest"
)

// SearchStats is the search section of the statistics.
type SearchStats struct {
	Total             int64        `json:"total"`
	ZeroResult        int64        `json:"zero_result"`
	Sorted            int64        `json:"sorted"`
	Filtered          int64        `json:"filtered"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	PerMinute         float64      `json:"per_minute"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
}

// FeedbackStats is the feedback section of the statistics.
type FeedbackStats struct {
	Events    int64        `json:"events"`
	NetDelta  int64        `json:"net_delta"`
	Resets    int64        `json:"resets"`
	TopMovies []MovieCount `json:"top_movies"`
}

// IngestStats is the ingest section of the statistics.
type IngestStats struct {
	Runs int64        `json:"runs"`
	Last *IngestEvent `json:"last,omitempty"`
}

// Section projects s onto one event type. ok is false for an unknown name.
func (s AggregatedStats) Section(name string) (v any, ok bool) {
	switch name {
	case SectionSearch:
		return SearchStats{
			Total:             s.TotalSearches,
			ZeroResult:        s.ZeroResultCount,
			Sorted:            s.SortedSearches,
			Filtered:          s.FilteredSearches,
			AvgLatencyMs:      s.AvgLatencyMs,
			P95LatencyMs:      s.P95LatencyMs,
			PerMinute:         s.QueriesPerMinute,
			TopQueries:        s.TopQueries,
			ZeroResultQueries: s.ZeroResultQueries,
		}, true
	case SectionFeedback:
		return FeedbackStats{
			Events:    s.FeedbackEvents,
			NetDelta:  s.FeedbackNetDelta,
			Resets:    s.FeedbackResets,
			TopMovies: s.TopFeedback,
		}, true
	case SectionIngest:
		return IngestStats{Runs: s.IngestRuns, Last: s.LastIngest}, true
	}
	return nil, false
}

type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats serves the live aggregated statistics. ?event=search, feedback or
// ingest narrows the response to that event type.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.aggregator.Stats()
	var body any = stats
	if name := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("event"))); name != "" {
		section, ok := stats.Section(name)
		if !ok {
			h.write(w, http.StatusBadRequest, map[string]string{
				"status": "error",
				"error":  "unknown event type " + name,
			})
			return
		}
		body = section
	}
	h.write(w, http.StatusOK, body)
}

func (h *Handler) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
