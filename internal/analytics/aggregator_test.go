package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator(nil)
	ctx := context.Background()
	events := []any{
		SearchEvent{Type: EventSearch, Query: "Dune", TotalHits: 2, LatencyMs: 10},
		SearchEvent{Type: EventSearch, Query: "dune ", TotalHits: 2, LatencyMs: 30, Mode: "sorted"},
		SearchEvent{Type: EventSearch, Query: "zzz", TotalHits: 0, LatencyMs: 20, Filtered: true},
		FeedbackEvent{Type: EventFeedback, MovieID: 1, Delta: 2},
		FeedbackEvent{Type: EventFeedback, MovieID: 1, Delta: 2},
		FeedbackEvent{Type: EventFeedback, MovieID: 2, Delta: -3},
		IngestEvent{Type: EventIngest, Index: "movies", Outcome: "success", Indexed: 2},
	}
	for _, e := range events {
		if err := agg.Deliver(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	s := agg.Stats()
	if s.TotalSearches != 3 || s.ZeroResultCount != 1 || s.SortedSearches != 1 || s.FilteredSearches != 1 {
		t.Errorf("search counters = %+v", s)
	}
	if s.AvgLatencyMs != 20 || s.P50LatencyMs != 20 {
		t.Errorf("latency avg %v p50 %d", s.AvgLatencyMs, s.P50LatencyMs)
	}
	if len(s.TopQueries) == 0 || s.TopQueries[0] != (QueryCount{Query: "dune", Count: 2}) {
		t.Errorf("top queries = %+v", s.TopQueries)
	}
	if len(s.ZeroResultQueries) != 1 || s.ZeroResultQueries[0].Query != "zzz" {
		t.Errorf("zero result queries = %+v", s.ZeroResultQueries)
	}
	if s.FeedbackEvents != 3 || s.FeedbackNetDelta != 1 {
		t.Errorf("feedback = %d events, net %d", s.FeedbackEvents, s.FeedbackNetDelta)
	}
	if s.TopFeedback[0] != (MovieCount{MovieID: 1, Delta: 4}) {
		t.Errorf("top feedback = %+v", s.TopFeedback)
	}
	if s.LastIngest == nil || s.LastIngest.Indexed != 2 {
		t.Errorf("last ingest = %+v", s.LastIngest)
	}

	_ = agg.Deliver(ctx, ResetEvent{Type: EventFeedbackReset})
	if s := agg.Stats(); len(s.TopFeedback) != 0 || s.FeedbackResets != 1 {
		t.Errorf("after reset = %+v", s)
	}
}

func TestDecodeFromKafka(t *testing.T) {
	agg := NewAggregator(nil)
	handle := HandleEvent(agg)

	raw, _ := json.Marshal(FeedbackEvent{Type: EventFeedback, MovieID: 7, Delta: 1, Timestamp: time.Now()})
	if err := handle(context.Background(), []byte("feedback"), raw); err != nil {
		t.Fatal(err)
	}
	if err := handle(context.Background(), nil, []byte(`{"type":"mystery"}`)); err != nil {
		t.Fatalf("unknown events must not fail the consumer: %v", err)
	}
	if s := agg.Stats(); s.FeedbackEvents != 1 {
		t.Errorf("feedback events = %d", s.FeedbackEvents)
	}
	if err := agg.Decode([]byte(`not json`)); err == nil {
		t.Error("Decode accepted garbage")
	}
}

func TestCollectorDeliversToSink(t *testing.T) {
	agg := NewAggregator(nil)
	c := NewCollector(agg, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	for i := 0; i < 5; i++ {
		c.Track(SearchEvent{Type: EventSearch, Query: "q"})
	}
	c.Close()
	if n := agg.Stats().TotalSearches; n != 5 {
		t.Errorf("searches = %d, want 5", n)
	}

	var nilCollector *Collector
	nilCollector.Track(SearchEvent{})
}
