// Package aggregator persists periodic snapshots of the aggregated
// analytics statistics in the SQL store.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/analytics"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/database"
)

// Snapshot is one persisted stats record.
type Snapshot struct {
	Stats      analytics.AggregatedStats `json:"stats"`
	CapturedAt time.Time                 `json:"captured_at"`
}

type snapshotRow struct {
	Data       string    `db:"data"`
	CapturedAt time.Time `db:"captured_at"`
}

// Store persists aggregated analytics snapshots in the
// analytics_snapshots table.
type Store struct {
	db     *database.DB
	logger *slog.Logger
}

// NewStore creates a new analytics persistence store.
func NewStore(db *database.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// SaveSnapshot persists a stats snapshot to the database.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO analytics_snapshots (data, captured_at) VALUES (?, ?)`),
		string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.logger.Info("analytics snapshot saved",
		"total_searches", stats.TotalSearches,
		"feedback_events", stats.FeedbackEvents,
	)
	return nil
}

// LatestSnapshot loads the most recent snapshot. It returns nil, nil when
// none exists yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row,
		`SELECT data, captured_at FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	snap, err := row.decode()
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListSnapshots returns the last limit snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	var rows []snapshotRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT data, captured_at FROM analytics_snapshots ORDER BY captured_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(rows))
	for _, r := range rows {
		snap, err := r.decode()
		if err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// StartPeriodicSave launches a goroutine that periodically snapshots
// the aggregator's current stats to the database.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				// Final snapshot on shutdown.
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
}

// HistoryHandler serves the most recent snapshots; ?limit= defaults to 20
// and is capped at 500.
func (s *Store) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, 500)
	}
	snaps, err := s.ListSnapshots(r.Context(), limit)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		s.logger.Error("listing snapshots", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": "internal error"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"snapshots": snaps})
}

func (r snapshotRow) decode() (Snapshot, error) {
	var stats analytics.AggregatedStats
	if err := json.Unmarshal([]byte(r.Data), &stats); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return Snapshot{Stats: stats, CapturedAt: r.CapturedAt}, nil
}
