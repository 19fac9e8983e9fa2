package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func statsRequest(t *testing.T, h *Handler, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return rec.Code
}

func TestStatsByEventType(t *testing.T) {
	agg := NewAggregator(nil)
	ctx := context.Background()
	for _, e := range []any{
		SearchEvent{Type: EventSearch, Query: "dune", TotalHits: 0, LatencyMs: 12},
		FeedbackEvent{Type: EventFeedback, MovieID: 7, Delta: 2},
		FeedbackEvent{Type: EventFeedback, MovieID: 7, Delta: 2},
		IngestEvent{Type: EventIngest, Index: "movies", Outcome: "noop"},
	} {
		if err := agg.Deliver(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	h := NewHandler(agg)

	var all AggregatedStats
	if code := statsRequest(t, h, "/api/v1/analytics", &all); code != http.StatusOK || all.TotalSearches != 1 || all.IngestRuns != 1 {
		t.Errorf("full stats = %d %+v", code, all)
	}

	var search SearchStats
	if code := statsRequest(t, h, "/api/v1/analytics?event=search", &search); code != http.StatusOK {
		t.Fatalf("search section = %d", code)
	}
	if search.Total != 1 || search.ZeroResult != 1 || len(search.ZeroResultQueries) != 1 {
		t.Errorf("search section = %+v", search)
	}

	var fb FeedbackStats
	statsRequest(t, h, "/api/v1/analytics?event=Feedback", &fb)
	if fb.Events != 2 || fb.NetDelta != 4 || len(fb.TopMovies) != 1 || fb.TopMovies[0].MovieID != 7 {
		t.Errorf("feedback section = %+v", fb)
	}

	var ingest IngestStats
	statsRequest(t, h, "/api/v1/analytics?event=ingest", &ingest)
	if ingest.Runs != 1 || ingest.Last == nil || ingest.Last.Outcome != "noop" {
		t.Errorf("ingest section = %+v", ingest)
	}

	var bad map[string]string
	if code := statsRequest(t, h, "/api/v1/analytics?event=clicks", &bad); code != http.StatusBadRequest || bad["status"] != "error" {
		t.Errorf("unknown event = %d %v", code, bad)
	}
}
