package analytics

import (
	"context"
	"log/slog"
)

// Sink receives tracked events. The Kafka batch collector and the
// in-process Aggregator both implement it.
type Sink interface {
	Deliver(ctx context.Context, event any) error
}

// Collector decouples request paths from event delivery: Track never
// blocks, and a background goroutine hands events to the sink.
type Collector struct {
	sink    Sink
	eventCh chan any
	logger  *slog.Logger
	done    chan struct{}
}

func NewCollector(sink Sink, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		sink:    sink,
		eventCh: make(chan any, bufferSize),
		logger:  slog.Default().With("component", "analytics-collector"),
		done:    make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.deliver(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track queues event, dropping it when the buffer is full. A nil
// Collector ignores events.
func (c *Collector) Track(event any) {
	if c == nil {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the queue to drain. Start
// must have been called.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) deliver(ctx context.Context, event any) {
	if err := c.sink.Deliver(ctx, event); err != nil {
		c.logger.Error("failed to deliver analytics event", "error", err)
	}
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.deliver(context.Background(), event)
		default:
			return
		}
	}
}
