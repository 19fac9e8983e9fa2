package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iambluuu/CS419-MovieTextSearch/pkg/kafka"
)

// maxLatencies bounds the latency sample kept for percentiles.
const maxLatencies = 10000

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	SortedSearches    int64        `json:"sorted_searches"`
	FilteredSearches  int64        `json:"filtered_searches"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	FeedbackEvents    int64        `json:"feedback_events"`
	FeedbackNetDelta  int64        `json:"feedback_net_delta"`
	TopFeedback       []MovieCount `json:"top_feedback"`
	FeedbackResets    int64        `json:"feedback_resets"`
	IngestRuns        int64        `json:"ingest_runs"`
	LastIngest        *IngestEvent `json:"last_ingest,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// MovieCount is the net feedback delta received by one movie.
type MovieCount struct {
	MovieID int64 `json:"movie_id"`
	Delta   int64 `json:"delta"`
}

// Aggregator folds events into running statistics. It reads them from
// Kafka through HandleEvent or receives them in-process through Deliver.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     atomic.Int64
	zeroResults       atomic.Int64
	sortedSearches    atomic.Int64
	filteredSearches  atomic.Int64
	feedbackEvents    atomic.Int64
	feedbackNet       atomic.Int64
	feedbackResets    atomic.Int64
	ingestRuns        atomic.Int64
	latencies         []int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	feedbackByMovie   map[int64]int64
	lastIngest        *IngestEvent
	startTime         time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator. consumer may be nil when events
// are delivered in-process.
func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		feedbackByMovie:   make(map[int64]int64),
		startTime:         time.Now(),
		consumer:          consumer,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Start consumes events until ctx is done.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.consumer == nil {
		return fmt.Errorf("aggregator has no consumer")
	}
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent decodes Kafka analytics messages into agg.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		if err := agg.Decode(value); err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
		}
		return nil
	}
}

// Decode records one JSON-encoded event.
func (a *Aggregator) Decode(value []byte) error {
	env, err := kafka.DecodeJSON[envelope](value)
	if err != nil {
		return err
	}
	switch env.Type {
	case EventSearch:
		e, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return err
		}
		a.recordSearch(e)
	case EventFeedback:
		e, err := kafka.DecodeJSON[FeedbackEvent](value)
		if err != nil {
			return err
		}
		a.recordFeedback(e)
	case EventFeedbackReset:
		e, err := kafka.DecodeJSON[ResetEvent](value)
		if err != nil {
			return err
		}
		a.recordReset(e)
	case EventIngest:
		e, err := kafka.DecodeJSON[IngestEvent](value)
		if err != nil {
			return err
		}
		a.recordIngest(e)
	default:
		return fmt.Errorf("unknown event type %q", env.Type)
	}
	return nil
}

// Deliver records event directly, making the Aggregator a Sink.
func (a *Aggregator) Deliver(_ context.Context, event any) error {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearch(e)
	case FeedbackEvent:
		a.recordFeedback(e)
	case ResetEvent:
		a.recordReset(e)
	case IngestEvent:
		a.recordIngest(e)
	case []byte:
		return a.Decode(e)
	case json.RawMessage:
		return a.Decode(e)
	default:
		return fmt.Errorf("unsupported analytics event %T", event)
	}
	return nil
}

func (a *Aggregator) recordSearch(event SearchEvent) {
	a.totalSearches.Add(1)
	if event.TotalHits == 0 {
		a.zeroResults.Add(1)
	}
	if event.Mode == "sorted" {
		a.sortedSearches.Add(1)
	}
	if event.Filtered {
		a.filteredSearches.Add(1)
	}
	q := strings.ToLower(strings.TrimSpace(event.Query))

	a.mu.Lock()
	if len(a.latencies) >= maxLatencies {
		a.latencies = a.latencies[1:]
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	if q != "" {
		a.queryCounts[q]++
		if event.TotalHits == 0 {
			a.zeroResultQueries[q]++
		}
	}
	a.mu.Unlock()
}

func (a *Aggregator) recordFeedback(event FeedbackEvent) {
	a.feedbackEvents.Add(1)
	a.feedbackNet.Add(event.Delta)
	a.mu.Lock()
	a.feedbackByMovie[event.MovieID] += event.Delta
	a.mu.Unlock()
}

func (a *Aggregator) recordReset(event ResetEvent) {
	a.feedbackResets.Add(1)
	a.mu.Lock()
	if event.MovieID == 0 {
		clear(a.feedbackByMovie)
	} else {
		delete(a.feedbackByMovie, event.MovieID)
	}
	a.mu.Unlock()
}

func (a *Aggregator) recordIngest(event IngestEvent) {
	a.ingestRuns.Add(1)
	a.mu.Lock()
	a.lastIngest = &event
	a.mu.Unlock()
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:    a.totalSearches.Load(),
		ZeroResultCount:  a.zeroResults.Load(),
		SortedSearches:   a.sortedSearches.Load(),
		FilteredSearches: a.filteredSearches.Load(),
		FeedbackEvents:   a.feedbackEvents.Load(),
		FeedbackNetDelta: a.feedbackNet.Load(),
		FeedbackResets:   a.feedbackResets.Load(),
		IngestRuns:       a.ingestRuns.Load(),
	}
	if a.lastIngest != nil {
		last := *a.lastIngest
		stats.LastIngest = &last
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	stats.TopFeedback = topMovies(a.feedbackByMovie, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

func topMovies(deltas map[int64]int64, n int) []MovieCount {
	result := make([]MovieCount, 0, len(deltas))
	for id, d := range deltas {
		result = append(result, MovieCount{MovieID: id, Delta: d})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Delta != result[j].Delta {
			return result[i].Delta > result[j].Delta
		}
		return result[i].MovieID < result[j].MovieID
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
