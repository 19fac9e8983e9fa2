package analytics

import "time"

type EventType string

const (
	EventSearch        EventType = "search"
	EventFeedback      EventType = "feedback"
	EventFeedbackReset EventType = "feedback_reset"
	EventIngest        EventType = "ingest"
)

// SearchEvent is emitted once per executed search.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Filtered  bool      `json:"filtered"`
	Mode      string    `json:"mode"`
	TotalHits uint64    `json:"total_hits"`
	Returned  int       `json:"returned"`
	Page      int       `json:"page"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// FeedbackEvent is emitted for each accepted feedback submission.
type FeedbackEvent struct {
	Type      EventType `json:"type"`
	MovieID   int64     `json:"movie_id"`
	Score     int       `json:"score"`
	Delta     int64     `json:"delta"`
	Feedback  int64     `json:"feedback"`
	Timestamp time.Time `json:"timestamp"`
}

// ResetEvent is emitted for administrative feedback resets. MovieID is 0
// for a corpus-wide reset.
type ResetEvent struct {
	Type      EventType `json:"type"`
	MovieID   int64     `json:"movie_id,omitempty"`
	Reset     int64     `json:"reset"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestEvent is emitted at the end of every ingestion run.
type IngestEvent struct {
	Type       EventType `json:"type"`
	Index      string    `json:"index"`
	Outcome    string    `json:"outcome"`
	Indexed    int       `json:"indexed"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// envelope peeks at the discriminator of an encoded event.
type envelope struct {
	Type EventType `json:"type"`
}
