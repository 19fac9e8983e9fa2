// Package publisher announces completed index generations on Kafka so that
// every serving process can open the new generation and drop stale cache
// entries.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iambluuu/CS419-MovieTextSearch/pkg/kafka"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/resilience"
)

// EventIndexComplete is the event type of IndexComplete messages.
const EventIndexComplete = "index_complete"

// IndexComplete is published after a generation has been committed.
type IndexComplete struct {
	Type        string    `json:"type"`
	Index       string    `json:"index"`
	Generation  string    `json:"generation"`
	Path        string    `json:"path"`
	DocCount    int64     `json:"doc_count"`
	Fingerprint string    `json:"fingerprint"`
	CompletedAt time.Time `json:"completed_at"`
	Origin      string    `json:"origin"`
}

// Publisher writes IndexComplete events keyed by index name. Failed
// writes are retried with backoff unless the failure is permanent.
type Publisher struct {
	producer kafka.Publisher
	origin   string
	retry    resilience.RetryConfig
	logger   *slog.Logger
}

// New creates a Publisher. origin identifies this process so that it can
// ignore its own announcements.
func New(producer kafka.Publisher, origin string) *Publisher {
	return &Publisher{
		producer: producer,
		origin:   origin,
		retry:    resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
		logger:   slog.Default().With("component", "index-publisher"),
	}
}

// Origin returns the process identity stamped on published events.
func (p *Publisher) Origin() string { return p.origin }

// IndexComplete publishes ev, filling Type, Origin and CompletedAt.
func (p *Publisher) IndexComplete(ctx context.Context, ev IndexComplete) error {
	ev.Type = EventIndexComplete
	ev.Origin = p.origin
	if ev.CompletedAt.IsZero() {
		ev.CompletedAt = time.Now().UTC()
	}
	err := resilience.Retry(ctx, "publish index_complete", p.retry, func() error {
		err := p.producer.Publish(ctx, kafka.Event{Key: ev.Index, Type: EventIndexComplete, Value: ev})
		if kafka.Permanent(err) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("publishing index_complete for %s: %w", ev.Index, err)
	}
	p.logger.Info("index completion published", "index", ev.Index, "generation", ev.Generation, "docs", ev.DocCount)
	return nil
}

// Decode parses an IndexComplete message value.
func Decode(value []byte) (IndexComplete, error) {
	ev, err := kafka.DecodeJSON[IndexComplete](value)
	if err != nil {
		return IndexComplete{}, err
	}
	if ev.Type != EventIndexComplete || ev.Index == "" || ev.Generation == "" {
		return IndexComplete{}, fmt.Errorf("not an index_complete event")
	}
	return ev, nil
}
