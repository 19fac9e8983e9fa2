// Package feedback applies user relevance feedback to the per-movie
// counters and resets them, one movie at a time or corpus-wide in
// parallel slices.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/analytics"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/config"
	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/metrics"
)

// Score bounds. A neutral score leaves the counter unchanged.
const (
	MinScore     = 0
	MaxScore     = 5
	NeutralScore = 3
)

// Store is the counter storage. Every method must be atomic per movie.
type Store interface {
	AddFeedback(ctx context.Context, index string, id, delta int64) (int64, error)
	ResetFeedback(ctx context.Context, index string, id int64) error
	ResetFeedbackSlice(ctx context.Context, index string, n, k int) (int64, error)
}

// Tracker receives feedback events. *analytics.Collector implements it.
type Tracker interface {
	Track(event any)
}

// SliceResult is the outcome of one reset slice.
type SliceResult struct {
	Slice int    `json:"slice"`
	Reset int64  `json:"reset"`
	Error string `json:"error,omitempty"`
}

// ResetReport summarises a corpus-wide reset.
type ResetReport struct {
	Slices       int           `json:"slices"`
	Reset        int64         `json:"reset"`
	FailedSlices int           `json:"failed_slices"`
	Results      []SliceResult `json:"results"`
}

// Service owns feedback for one index.
type Service struct {
	store   Store
	index   string
	slices  int
	tracker Tracker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Service. A non-positive cfg.Slices means 4.
func New(store Store, index string, cfg config.FeedbackConfig) *Service {
	slices := cfg.Slices
	if slices <= 0 {
		slices = 4
	}
	return &Service{
		store:  store,
		index:  index,
		slices: slices,
		logger: slog.Default().With("component", "feedback", "index", index),
	}
}

// SetTracker routes feedback events to t.
func (s *Service) SetTracker(t Tracker) { s.tracker = t }

// SetMetrics records feedback outcomes in m.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// Delta maps a score on the 0..5 scale to a counter adjustment.
func Delta(score int) int64 {
	return int64(score - NeutralScore)
}

// Submit adjusts the counter of movieID by score-3 and returns the new
// value. A score outside [0,5] is rejected without touching the counter.
func (s *Service) Submit(ctx context.Context, movieID int64, score int) (int64, error) {
	if score < MinScore || score > MaxScore {
		s.count("rejected")
		return 0, apperrors.Newf(apperrors.ErrInvalidScore, http.StatusBadRequest,
			"score %d is outside [%d,%d]", score, MinScore, MaxScore)
	}
	delta := Delta(score)
	value, err := s.store.AddFeedback(ctx, s.index, movieID, delta)
	if err != nil {
		s.count("error")
		return 0, err
	}
	s.count("accepted")
	s.logger.Debug("feedback applied", "movie_id", movieID, "score", score, "delta", delta, "feedback", value)
	if s.tracker != nil {
		s.tracker.Track(analytics.FeedbackEvent{
			Type:      analytics.EventFeedback,
			MovieID:   movieID,
			Score:     score,
			Delta:     delta,
			Feedback:  value,
			Timestamp: time.Now().UTC(),
		})
	}
	return value, nil
}

// ResetOne sets the counter of movieID to 0.
func (s *Service) ResetOne(ctx context.Context, movieID int64) error {
	if err := s.store.ResetFeedback(ctx, s.index, movieID); err != nil {
		return err
	}
	s.logger.Info("feedback reset", "movie_id", movieID)
	s.resetDone("one", movieID, 1)
	return nil
}

// ResetAll zeroes every non-zero counter. The corpus is split into
// slices by id modulo the slice count; slices run in parallel, and a
// failing slice is logged and reported without stopping its siblings.
// The error is non-nil only when every slice failed.
func (s *Service) ResetAll(ctx context.Context) (ResetReport, error) {
	report := ResetReport{Slices: s.slices, Results: make([]SliceResult, s.slices)}
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	start := time.Now()
	for k := 0; k < s.slices; k++ {
		g.Go(func() error {
			n, err := s.store.ResetFeedbackSlice(ctx, s.index, s.slices, k)
			res := SliceResult{Slice: k, Reset: n}
			if err != nil {
				res.Error = err.Error()
				s.logger.Error("feedback reset slice failed", "slice", k, "slices", s.slices, "error", err)
			} else {
				s.logger.Debug("feedback reset slice done", "slice", k, "reset", n)
			}
			mu.Lock()
			report.Results[k] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range report.Results {
		report.Reset += r.Reset
		if r.Error != "" {
			report.FailedSlices++
		}
	}
	s.logger.Info("feedback reset across corpus",
		"slices", report.Slices,
		"reset", report.Reset,
		"failed_slices", report.FailedSlices,
		"duration", time.Since(start),
	)
	s.resetDone("all", 0, report.Reset)
	if report.FailedSlices == report.Slices {
		return report, fmt.Errorf("resetting feedback: all %d slices failed: %s", report.Slices, report.Results[0].Error)
	}
	return report, nil
}

func (s *Service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.FeedbackTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) resetDone(scope string, movieID, n int64) {
	if s.metrics != nil {
		s.metrics.FeedbackResetsTotal.WithLabelValues(scope).Inc()
	}
	if s.tracker != nil {
		s.tracker.Track(analytics.ResetEvent{
			Type:      analytics.EventFeedbackReset,
			MovieID:   movieID,
			Reset:     n,
			Timestamp: time.Now().UTC(),
		})
	}
}
