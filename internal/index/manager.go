// Package index owns the bleve search index: its schema mapping, building
// whole new index generations from a document batch, and the atomic swap
// of the active generation used by searches.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
)

// Generation is one fully built index over a complete document set.
type Generation struct {
	ID    string
	Path  string
	index bleve.Index
}

// BuildStats summarizes a bulk load.
type BuildStats struct {
	Indexed int      `json:"indexed"`
	Failed  int      `json:"failed"`
	Rejects []string `json:"rejects,omitempty"`

	// RejectedIDs lists every document the index refused.
	RejectedIDs []int64 `json:"-"`
}

// maxRejects bounds the per-document error messages kept in BuildStats.
const maxRejects = 20

// Status describes the active generation.
type Status struct {
	Index      string    `json:"index"`
	Generation string    `json:"generation"`
	Path       string    `json:"path,omitempty"`
	DocCount   uint64    `json:"document_count"`
	SizeBytes  int64     `json:"storage_size"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Manager holds the active generation of one named index. Searches share
// a read lock; swapping generations takes the write lock so in-flight
// searches complete before the old generation closes.
type Manager struct {
	dataDir string
	name    string
	memOnly bool
	mapping mapping.IndexMapping
	logger  *slog.Logger

	mu       sync.RWMutex
	active   *Generation
	openedAt time.Time
}

// NewManager creates a manager storing generations under dataDir/name.
func NewManager(dataDir, name string) (*Manager, error) {
	im, err := NewMapping()
	if err != nil {
		return nil, fmt.Errorf("building index mapping: %w", err)
	}
	return &Manager{
		dataDir: dataDir,
		name:    name,
		mapping: im,
		logger:  slog.Default().With("component", "index-manager", "index", name),
	}, nil
}

// NewMemManager creates a manager whose generations live only in memory.
func NewMemManager(name string) (*Manager, error) {
	m, err := NewManager("", name)
	if err != nil {
		return nil, err
	}
	m.memOnly = true
	return m, nil
}

// Name returns the index name.
func (m *Manager) Name() string { return m.name }

// Mapping returns the schema shared by every generation.
func (m *Manager) Mapping() mapping.IndexMapping { return m.mapping }

// Open makes an existing on-disk generation active.
func (m *Manager) Open(generation, path string) error {
	m.mu.RLock()
	current := m.active
	m.mu.RUnlock()
	if current != nil && current.ID == generation {
		return nil
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return fmt.Errorf("opening generation %s: %w", generation, apperrors.ErrIndexNotFound)
	}
	if err != nil {
		return fmt.Errorf("opening generation %s: %w", generation, err)
	}
	m.Swap(&Generation{ID: generation, Path: path, index: idx})
	return nil
}

// Build creates a new generation and bulk-loads docs into it in batches of
// batchSize. Documents the index rejects are counted and skipped; a failed
// batch commit aborts the build and removes the generation.
func (m *Manager) Build(ctx context.Context, docs []movie.Document, batchSize int) (*Generation, BuildStats, error) {
	var stats BuildStats
	if batchSize <= 0 {
		batchSize = 1000
	}

	genID := strconv.FormatInt(time.Now().UnixNano(), 10)
	gen := &Generation{ID: genID}
	var err error
	if m.memOnly {
		gen.index, err = bleve.NewMemOnly(m.mapping)
	} else {
		gen.Path = filepath.Join(m.dataDir, m.name, genID+".bleve")
		if err = os.MkdirAll(filepath.Dir(gen.Path), 0o755); err == nil {
			gen.index, err = bleve.New(gen.Path, m.mapping)
		}
	}
	if err != nil {
		return nil, stats, fmt.Errorf("creating generation %s: %w", genID, err)
	}

	batch := gen.index.NewBatch()
	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}
		if err := gen.index.Batch(batch); err != nil {
			return fmt.Errorf("committing batch: %w", err)
		}
		batch.Reset()
		return nil
	}

	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			m.Discard(gen)
			return nil, stats, err
		}
		if err := batch.Index(DocID(d.ID), toIndexable(d)); err != nil {
			stats.Failed++
			stats.RejectedIDs = append(stats.RejectedIDs, d.ID)
			if len(stats.Rejects) < maxRejects {
				stats.Rejects = append(stats.Rejects, fmt.Sprintf("%d: %v", d.ID, err))
			}
			m.logger.Warn("document rejected by index", "movie_id", d.ID, "error", err)
			continue
		}
		stats.Indexed++
		if batch.Size() >= batchSize {
			if err := flush(); err != nil {
				m.Discard(gen)
				return nil, stats, err
			}
		}
	}
	if err := flush(); err != nil {
		m.Discard(gen)
		return nil, stats, err
	}

	m.logger.Info("generation built",
		"generation", genID,
		"indexed", stats.Indexed,
		"failed", stats.Failed,
	)
	return gen, stats, nil
}

// Swap makes gen active and retires the previous generation.
func (m *Manager) Swap(gen *Generation) {
	m.mu.Lock()
	old := m.active
	m.active = gen
	m.openedAt = time.Now()
	m.mu.Unlock()

	if old != nil && old != gen {
		m.Discard(old)
	}
	m.logger.Info("generation activated", "generation", gen.ID, "path", gen.Path)
}

// Release closes gen but keeps its files, for processes that build a
// generation for others to serve.
func (m *Manager) Release(gen *Generation) {
	if gen == nil || gen.index == nil {
		return
	}
	if err := gen.index.Close(); err != nil {
		m.logger.Warn("closing generation", "generation", gen.ID, "error", err)
	}
}

// Discard closes gen and removes its files.
func (m *Manager) Discard(gen *Generation) {
	if gen == nil {
		return
	}
	if gen.index != nil {
		if err := gen.index.Close(); err != nil {
			m.logger.Warn("closing generation", "generation", gen.ID, "error", err)
		}
	}
	if gen.Path != "" {
		if err := os.RemoveAll(gen.Path); err != nil {
			m.logger.Warn("removing generation", "generation", gen.ID, "error", err)
		}
	}
}

// Active reports the active generation id, or "" if none.
func (m *Manager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return ""
	}
	return m.active.ID
}

// Search runs req against the active generation.
func (m *Manager) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil, apperrors.ErrIndexUnavailable
	}
	res, err := m.active.index.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("search %s: %w", m.name, apperrors.ErrTimeout)
		}
		return nil, fmt.Errorf("search %s: %w: %v", m.name, apperrors.ErrIndexUnavailable, err)
	}
	return res, nil
}

// DocCount returns the number of documents in the active generation.
func (m *Manager) DocCount() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return 0, apperrors.ErrIndexUnavailable
	}
	return m.active.index.DocCount()
}

// Status describes the active generation.
func (m *Manager) Status() (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return Status{Index: m.name}, apperrors.ErrIndexUnavailable
	}
	count, err := m.active.index.DocCount()
	if err != nil {
		return Status{}, fmt.Errorf("counting documents: %w", err)
	}
	return Status{
		Index:      m.name,
		Generation: m.active.ID,
		Path:       m.active.Path,
		DocCount:   count,
		SizeBytes:  dirSize(m.active.Path),
		OpenedAt:   m.openedAt,
	}, nil
}

// Ping fails while no generation is active.
func (m *Manager) Ping(context.Context) error {
	if m.Active() == "" {
		return apperrors.ErrIndexUnavailable
	}
	return nil
}

// Close closes the active generation without removing it.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	err := m.active.index.Close()
	m.active = nil
	return err
}

func dirSize(path string) int64 {
	if path == "" {
		return 0
	}
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
