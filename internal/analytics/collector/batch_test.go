package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/analytics"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (p *fakePublisher) Publish(ctx context.Context, e kafka.Event) error {
	return p.PublishBatch(ctx, []kafka.Event{e})
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.batches = append(p.batches, events)
	return nil
}

func TestDeliverFlushesFullBatch(t *testing.T) {
	p := &fakePublisher{}
	bc := NewBatchCollector(p, 2, time.Hour)
	ctx := context.Background()

	_ = bc.Deliver(ctx, analytics.SearchEvent{Type: analytics.EventSearch, Query: "dune"})
	if len(p.batches) != 0 || bc.BufferLen() != 1 {
		t.Fatalf("flushed early: %d batches, %d buffered", len(p.batches), bc.BufferLen())
	}
	_ = bc.Deliver(ctx, analytics.FeedbackEvent{Type: analytics.EventFeedback, MovieID: 1})
	if len(p.batches) != 1 || len(p.batches[0]) != 2 {
		t.Fatalf("batches = %v", p.batches)
	}
	if got := p.batches[0][1]; got.Type != "feedback" || got.Key != "feedback" {
		t.Errorf("event = %+v", got)
	}
}

func TestFailedFlushRequeues(t *testing.T) {
	p := &fakePublisher{fail: true}
	bc := NewBatchCollector(p, 1, time.Hour)
	_ = bc.Deliver(context.Background(), analytics.SearchEvent{Type: analytics.EventSearch})
	if bc.BufferLen() != 1 {
		t.Fatalf("buffered = %d, want 1 requeued", bc.BufferLen())
	}

	p.fail = false
	_ = bc.Deliver(context.Background(), analytics.SearchEvent{Type: analytics.EventSearch})
	if bc.BufferLen() != 0 || len(p.batches) != 1 || len(p.batches[0]) != 2 {
		t.Fatalf("after recovery: buffered %d, batches %v", bc.BufferLen(), p.batches)
	}
}

func TestStartFlushesOnShutdown(t *testing.T) {
	p := &fakePublisher{}
	bc := NewBatchCollector(p, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)
	_ = bc.Deliver(ctx, analytics.IngestEvent{Type: analytics.EventIngest})
	cancel()
	bc.Close()
	if len(p.batches) != 1 {
		t.Fatalf("batches after shutdown = %d, want 1", len(p.batches))
	}
}
