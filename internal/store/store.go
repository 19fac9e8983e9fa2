// Package store persists the movie document set, the per-movie feedback
// counters and the active index generation of every named index in SQL.
// Feedback is only ever changed with single server-side UPDATE statements.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/database"
	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
)

// lookupChunk bounds the number of ids bound into one IN clause.
const lookupChunk = 500

// GenerationRecord is the persisted pointer to an index generation.
type GenerationRecord struct {
	Index       string    `db:"index_name" json:"index"`
	Generation  string    `db:"generation" json:"generation"`
	Path        string    `db:"path" json:"path"`
	DocCount    int64     `db:"doc_count" json:"doc_count"`
	Fingerprint string    `db:"fingerprint" json:"fingerprint"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

type movieRow struct {
	ID       int64  `db:"id"`
	Document string `db:"document"`
	Feedback int64  `db:"feedback"`
}

// Store is the SQL side of the catalog.
type Store struct {
	db     *database.DB
	logger *slog.Logger
}

// New creates a Store over an opened, migrated database.
func New(db *database.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "movie-store"),
	}
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Generation returns the active generation of index, or ErrIndexNotFound.
func (s *Store) Generation(ctx context.Context, index string) (*GenerationRecord, error) {
	var rec GenerationRecord
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(
		`SELECT index_name, generation, path, doc_count, fingerprint, updated_at
		 FROM index_generations WHERE index_name = ?`), index)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading generation of %s: %w", index, err)
	}
	return &rec, nil
}

// ReplaceAll swaps the whole document set of index for docs and records
// gen as its active generation, in one transaction. Every document starts
// with feedback 0. It returns the generation that was replaced, if any.
func (s *Store) ReplaceAll(ctx context.Context, index string, docs []movie.Document, gen GenerationRecord) (*GenerationRecord, error) {
	var prev *GenerationRecord
	err := s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		var old GenerationRecord
		err := tx.GetContext(ctx, &old, tx.Rebind(
			`SELECT index_name, generation, path, doc_count, fingerprint, updated_at
			 FROM index_generations WHERE index_name = ?`), index)
		switch {
		case err == nil:
			prev = &old
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("loading previous generation: %w", err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM movies WHERE index_name = ?`), index); err != nil {
			return fmt.Errorf("deleting previous documents: %w", err)
		}

		stmt, err := tx.PreparexContext(ctx, tx.Rebind(
			`INSERT INTO movies (index_name, id, title, document, feedback) VALUES (?, ?, ?, ?, 0)`))
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		for _, d := range docs {
			d.Feedback = 0
			body, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("encoding movie %d: %w", d.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, index, d.ID, d.Title, string(body)); err != nil {
				return fmt.Errorf("inserting movie %d: %w", d.ID, err)
			}
		}

		gen.Index = index
		gen.DocCount = int64(len(docs))
		if gen.UpdatedAt.IsZero() {
			gen.UpdatedAt = time.Now().UTC()
		}
		_, err = tx.NamedExecContext(ctx,
			`INSERT INTO index_generations (index_name, generation, path, doc_count, fingerprint, updated_at)
			 VALUES (:index_name, :generation, :path, :doc_count, :fingerprint, :updated_at)
			 ON CONFLICT (index_name) DO UPDATE SET
			   generation = excluded.generation,
			   path = excluded.path,
			   doc_count = excluded.doc_count,
			   fingerprint = excluded.fingerprint,
			   updated_at = excluded.updated_at`, gen)
		if err != nil {
			return fmt.Errorf("recording generation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("document set replaced", "index", index, "docs", len(docs), "generation", gen.Generation)
	return prev, nil
}

// Count returns the number of documents of index.
func (s *Store) Count(ctx context.Context, index string) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM movies WHERE index_name = ?`), index)
	if err != nil {
		return 0, fmt.Errorf("counting movies: %w", err)
	}
	return n, nil
}

// Get loads one movie with its current feedback.
func (s *Store) Get(ctx context.Context, index string, id int64) (movie.Document, error) {
	var row movieRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT id, document, feedback FROM movies WHERE index_name = ? AND id = ?`), index, id)
	if errors.Is(err, sql.ErrNoRows) {
		return movie.Document{}, apperrors.ErrMovieNotFound
	}
	if err != nil {
		return movie.Document{}, fmt.Errorf("loading movie %d: %w", id, err)
	}
	return row.decode()
}

// GetMany loads the movies with the given ids. Missing ids are absent
// from the result.
func (s *Store) GetMany(ctx context.Context, index string, ids []int64) (map[int64]movie.Document, error) {
	out := make(map[int64]movie.Document, len(ids))
	for start := 0; start < len(ids); start += lookupChunk {
		end := min(start+lookupChunk, len(ids))
		q, args, err := sqlx.In(
			`SELECT id, document, feedback FROM movies WHERE index_name = ? AND id IN (?)`, index, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("building lookup: %w", err)
		}
		var rows []movieRow
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
			return nil, fmt.Errorf("loading movies: %w", err)
		}
		for _, r := range rows {
			d, err := r.decode()
			if err != nil {
				return nil, err
			}
			out[d.ID] = d
		}
	}
	return out, nil
}

// FeedbackScores returns every non-zero feedback counter of index.
func (s *Store) FeedbackScores(ctx context.Context, index string) (map[int64]int64, error) {
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(
		`SELECT id, feedback FROM movies WHERE index_name = ? AND feedback <> 0`), index)
	if err != nil {
		return nil, fmt.Errorf("loading feedback: %w", err)
	}
	defer rows.Close()

	scores := make(map[int64]int64)
	for rows.Next() {
		var id, fb int64
		if err := rows.Scan(&id, &fb); err != nil {
			return nil, fmt.Errorf("scanning feedback: %w", err)
		}
		scores[id] = fb
	}
	return scores, rows.Err()
}

// AddFeedback atomically adds delta to the counter of one movie and
// returns the new value.
func (s *Store) AddFeedback(ctx context.Context, index string, id, delta int64) (int64, error) {
	var value int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(
		`UPDATE movies SET feedback = feedback + ? WHERE index_name = ? AND id = ? RETURNING feedback`),
		delta, index, id).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.ErrMovieNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("adjusting feedback of %d: %w", id, err)
	}
	return value, nil
}

// ResetFeedback sets the counter of one movie to 0.
func (s *Store) ResetFeedback(ctx context.Context, index string, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE movies SET feedback = 0 WHERE index_name = ? AND id = ?`), index, id)
	if err != nil {
		return fmt.Errorf("resetting feedback of %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrMovieNotFound
	}
	return nil
}

// ResetFeedbackSlice zeroes the non-zero counters of the movies whose id
// falls in slice k of n, returning how many were reset.
func (s *Store) ResetFeedbackSlice(ctx context.Context, index string, n, k int) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE movies SET feedback = 0 WHERE index_name = ? AND feedback <> 0 AND id % ? = ?`), index, n, k)
	if err != nil {
		return 0, fmt.Errorf("resetting slice %d/%d: %w", k, n, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("resetting slice %d/%d: %w", k, n, err)
	}
	return affected, nil
}

func (r movieRow) decode() (movie.Document, error) {
	var d movie.Document
	if err := json.Unmarshal([]byte(r.Document), &d); err != nil {
		return movie.Document{}, fmt.Errorf("decoding movie %d: %w", r.ID, err)
	}
	d.ID = r.ID
	d.Feedback = r.Feedback
	return d, nil
}
