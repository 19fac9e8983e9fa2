package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/analytics"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/index"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion/publisher"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion/source"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion/validator"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/popularity"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/store"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/config"
	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/metrics"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/resilience"
)

// followUpTimeout bounds each best-effort step after a commit.
const followUpTimeout = 30 * time.Second

// Catalog is the SQL side of a replacement.
type Catalog interface {
	ReplaceAll(ctx context.Context, index string, docs []movie.Document, gen store.GenerationRecord) (*store.GenerationRecord, error)
	Generation(ctx context.Context, index string) (*store.GenerationRecord, error)
}

// Announcer broadcasts committed generations.
type Announcer interface {
	IndexComplete(ctx context.Context, ev publisher.IndexComplete) error
}

// Mirror receives a copy of every committed document set.
type Mirror interface {
	Replace(ctx context.Context, index string, docs []movie.Document) error
}

// Invalidator drops cached suggestion and facet entries.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// Tracker receives ingest events. *analytics.Collector implements it.
type Tracker interface {
	Track(event any)
}

// Pipeline runs ingestion for the index held by one manager.
type Pipeline struct {
	index   *index.Manager
	catalog Catalog
	locker  Locker
	cfg     config.IngestConfig

	// activate swaps each new generation in. When false the generation
	// is closed after commit for a serving process to open.
	activate bool

	announcer Announcer
	mirror    Mirror
	cache     Invalidator
	tracker   Tracker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a pipeline with an in-process lock that activates the
// generations it builds.
func New(idx *index.Manager, catalog Catalog, cfg config.IngestConfig) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Format == "" {
		cfg.Format = string(source.FormatMerged)
	}
	return &Pipeline{
		index:    idx,
		catalog:  catalog,
		locker:   NewLocalLocker(),
		cfg:      cfg,
		activate: true,
		logger:   slog.Default().With("component", "ingestion", "index", idx.Name()),
	}
}

func (p *Pipeline) SetLocker(l Locker) { p.locker = l }
func (p *Pipeline) SetActivate(activate bool) { p.activate = activate }
func (p *Pipeline) SetAnnouncer(a Announcer) { p.announcer = a }
func (p *Pipeline) SetMirror(m Mirror) { p.mirror = m }
func (p *Pipeline) SetCache(c Invalidator) { p.cache = c }
func (p *Pipeline) SetTracker(t Tracker) { p.tracker = t }
func (p *Pipeline) SetMetrics(m *metrics.Metrics) { p.metrics = m }

// Source returns the configured dataset path.
func (p *Pipeline) Source() string { return p.cfg.Source }

// Ingest loads sourcePath into indexName with the configured format and
// force setting.
func (p *Pipeline) Ingest(ctx context.Context, sourcePath, indexName string) (Report, error) {
	return p.Run(ctx, Request{Source: sourcePath, Index: indexName})
}

// Run executes one ingestion. Empty request fields take the configured
// values. The returned error is non-nil exactly when Outcome is failure.
func (p *Pipeline) Run(ctx context.Context, req Request) (Report, error) {
	if req.Source == "" {
		req.Source = p.cfg.Source
	}
	if req.Index == "" {
		req.Index = p.index.Name()
	}
	if req.Format == "" {
		req.Format = p.cfg.Format
	}
	req.Force = req.Force || p.cfg.Force

	start := time.Now()
	rep := Report{Index: req.Index, Source: req.Source, Format: req.Format}
	err := p.run(ctx, req, &rep)
	rep.Duration = time.Since(start)
	if err != nil {
		rep.Outcome = OutcomeFailure
		rep.Error = apperrors.Message(err)
	}
	p.finish(rep, err)
	return rep, err
}

func (p *Pipeline) run(ctx context.Context, req Request, rep *Report) error {
	if err := validator.ValidateSource(req.Source, req.Index); err != nil {
		return err
	}
	if req.Index != p.index.Name() {
		return apperrors.Newf(apperrors.ErrIndexNotFound, http.StatusNotFound,
			"index %q is not served by this pipeline", req.Index)
	}

	fp, err := Fingerprint(req.Source)
	if err != nil {
		return err
	}
	rep.Fingerprint = fp
	sidecar := SidecarPath(req.Source, p.cfg.FingerprintPath)
	if !req.Force {
		stored, err := LoadSidecar(sidecar)
		if err != nil {
			return err
		}
		if stored != nil && stored.Fingerprint == fp && stored.Index == req.Index {
			if gen := p.current(ctx, req.Index, fp); gen != "" {
				rep.Outcome = OutcomeNoop
				rep.Generation = gen
				return nil
			}
		}
	}

	parsed, err := source.Parse(ctx, req.Source, req.Format)
	if err != nil {
		return err
	}
	rep.Parsed = len(parsed.Docs)
	rep.Skipped = parsed.Skipped
	rep.Merged = parsed.Merged
	prior := popularity.Apply(parsed.Docs)
	p.logger.Debug("popularity prior computed", "m", prior.M, "c", prior.C)

	release, err := p.locker.Acquire(ctx, req.Index)
	if err != nil {
		return err
	}
	defer release()

	gen, stats, err := p.index.Build(ctx, parsed.Docs, p.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("building index generation: %w", err)
	}
	rep.Indexed = stats.Indexed
	rep.Failed = stats.Failed
	rep.Rejects = stats.Rejects
	rep.Generation = gen.ID

	docs := accepted(parsed.Docs, stats.RejectedIDs)
	prev, err := p.catalog.ReplaceAll(ctx, req.Index, docs, store.GenerationRecord{
		Generation:  gen.ID,
		Path:        gen.Path,
		Fingerprint: fp,
	})
	if err != nil {
		p.index.Discard(gen)
		return fmt.Errorf("replacing document set: %w", err)
	}

	if p.activate {
		p.index.Swap(gen)
		if prev != nil && prev.Path != "" && prev.Path != gen.Path {
			if err := os.RemoveAll(prev.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				p.logger.Warn("removing previous generation", "path", prev.Path, "error", err)
			}
		}
	} else {
		p.index.Release(gen)
	}

	if err := SaveSidecar(sidecar, Sidecar{Fingerprint: fp, Index: req.Index, RecordedAt: time.Now().UTC()}); err != nil {
		p.logger.Error("persisting fingerprint failed; next run will rebuild", "path", sidecar, "error", err)
	}
	rep.Outcome = OutcomeSuccess
	p.afterCommit(ctx, gen, docs, fp)
	return nil
}

// current returns the generation that already holds the dataset with
// fingerprint fp: the served one, or, for a pipeline that does not serve,
// the one recorded in the catalog.
func (p *Pipeline) current(ctx context.Context, index, fp string) string {
	if gen := p.index.Active(); gen != "" {
		return gen
	}
	if p.activate {
		return ""
	}
	rec, err := p.catalog.Generation(ctx, index)
	if err != nil || rec.Fingerprint != fp {
		return ""
	}
	if _, err := os.Stat(rec.Path); err != nil {
		return ""
	}
	return rec.Generation
}

// afterCommit runs the best-effort follow-ups of a successful run.
func (p *Pipeline) afterCommit(ctx context.Context, gen *index.Generation, docs []movie.Document, fp string) {
	if p.announcer != nil {
		err := p.announcer.IndexComplete(ctx, publisher.IndexComplete{
			Index:       p.index.Name(),
			Generation:  gen.ID,
			Path:        gen.Path,
			DocCount:    int64(len(docs)),
			Fingerprint: fp,
		})
		if err != nil {
			p.logger.Warn("announcing generation failed", "generation", gen.ID, "error", err)
		}
	}
	if p.mirror != nil {
		err := resilience.WithTimeout(ctx, followUpTimeout, "mirror", func(ctx context.Context) error {
			return p.mirror.Replace(ctx, p.index.Name(), docs)
		})
		if err != nil {
			p.logger.Warn("mirroring catalog failed", "error", err)
		}
	}
	if p.cache != nil {
		if _, err := p.cache.Invalidate(ctx); err != nil {
			p.logger.Warn("cache invalidation failed", "error", err)
		}
	}
}

func (p *Pipeline) finish(rep Report, err error) {
	attrs := []any{
		"outcome", rep.Outcome,
		"source", rep.Source,
		"generation", rep.Generation,
		"parsed", rep.Parsed,
		"skipped", rep.Skipped,
		"indexed", rep.Indexed,
		"failed", rep.Failed,
		"duration", rep.Duration,
	}
	switch {
	case err != nil:
		p.logger.Error("ingestion failed", append(attrs, "error", err)...)
	case rep.Outcome == OutcomeNoop:
		p.logger.Info("dataset unchanged, ingestion skipped", "source", rep.Source, "fingerprint", rep.Fingerprint)
	default:
		p.logger.Info("ingestion complete", attrs...)
	}

	if p.metrics != nil {
		p.metrics.IngestRunsTotal.WithLabelValues(rep.Outcome).Inc()
		p.metrics.IngestDocsTotal.WithLabelValues("indexed").Add(float64(rep.Indexed))
		p.metrics.IngestDocsTotal.WithLabelValues("skipped").Add(float64(rep.Skipped))
		p.metrics.IngestDocsTotal.WithLabelValues("failed").Add(float64(rep.Failed))
		if rep.Outcome != OutcomeNoop {
			p.metrics.IngestDuration.Observe(rep.Duration.Seconds())
		}
	}
	if p.tracker != nil {
		p.tracker.Track(analytics.IngestEvent{
			Type:       analytics.EventIngest,
			Index:      rep.Index,
			Outcome:    rep.Outcome,
			Indexed:    rep.Indexed,
			Failed:     rep.Failed,
			Skipped:    rep.Skipped,
			DurationMs: rep.Duration.Milliseconds(),
			Timestamp:  time.Now().UTC(),
		})
	}
}

func accepted(docs []movie.Document, rejected []int64) []movie.Document {
	if len(rejected) == 0 {
		return docs
	}
	skip := make(map[int64]struct{}, len(rejected))
	for _, id := range rejected {
		skip[id] = struct{}{}
	}
	out := make([]movie.Document, 0, len(docs)-len(rejected))
	for _, d := range docs {
		if _, ok := skip[d.ID]; !ok {
			out = append(out, d)
		}
	}
	return out
}
