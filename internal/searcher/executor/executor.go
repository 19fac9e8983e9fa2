// Package executor runs structured movie searches: it builds the query,
// executes it against the active index generation, applies feedback
// re-ranking or a named sort, pages the results and hydrates full
// documents from the catalog.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"golang.org/x/sync/errgroup"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/index"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/searcher/parser"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/searcher/ranker"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/config"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/logger"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/metrics"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/tracing"
)

// Ranking modes, used as the metrics label.
const (
	ModeRelevance = "relevance"
	ModeSorted    = "sorted"
)

// Catalog is the document and feedback source.
type Catalog interface {
	Get(ctx context.Context, index string, id int64) (movie.Document, error)
	GetMany(ctx context.Context, index string, ids []int64) (map[int64]movie.Document, error)
	FeedbackScores(ctx context.Context, index string) (map[int64]int64, error)
}

// Executor answers search requests for one index.
type Executor struct {
	index   *index.Manager
	catalog Catalog
	parser  *parser.Parser
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Executor. m may be nil.
func New(idx *index.Manager, catalog Catalog, cfg config.SearchConfig, m *metrics.Metrics) (*Executor, error) {
	p, err := parser.New(idx.Mapping())
	if err != nil {
		return nil, fmt.Errorf("creating query parser: %w", err)
	}
	return &Executor{
		index:   idx,
		catalog: catalog,
		parser:  p,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}, nil
}

// Search executes req. Without a sort field, hits are ranked by text
// relevance plus the capped feedback boost; with one, by that field.
func (e *Executor) Search(ctx context.Context, req movie.SearchRequest) (*movie.SearchResult, error) {
	if req.Size <= 0 && e.cfg.DefaultPageSize > 0 {
		req.Size = e.cfg.DefaultPageSize
	}
	req.Normalize(e.cfg.MaxPageSize)

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	start := time.Now()

	_, parseSpan := tracing.StartChildSpan(ctx, "parse")
	sq := ranker.Rank(e.parser.Parse(req), req, e.cfg.RescoreWindow)
	parseSpan.End()

	mode := ModeRelevance
	if !sq.Relevance() {
		mode = ModeSorted
	}

	var (
		result *movie.SearchResult
		err    error
	)
	if sq.Relevance() {
		result, err = e.relevance(ctx, sq)
	} else {
		result, err = e.sorted(ctx, sq)
	}
	span.End()
	e.observe(mode, result, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	result.Page, result.Size = req.Page, req.Size

	span.SetAttr("total", result.Total)
	span.SetAttr("mode", mode)
	span.Log(e.logger)
	e.logger.Info("search executed",
		"query", req.Query,
		"mode", mode,
		"total", result.Total,
		"page", req.Page,
		"returned", len(result.Results),
		"timings", span.Timings(),
	)
	return result, nil
}

// relevance fetches the candidate window, re-ranks it with feedback and
// pages in memory. The feedback lookup runs alongside the index search.
// When the window truncates the matches, positively rated matches below the
// cut join the candidates. Unrated or downvoted matches below the cut are
// left out: their boost is at most 1, so no unrated window member trails them.
func (e *Executor) relevance(ctx context.Context, sq *ranker.ScoredQuery) (*movie.SearchResult, error) {
	var (
		res      *bleve.SearchResult
		feedback map[int64]int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, s := tracing.StartChildSpan(ctx, "index_search")
		defer s.End()
		var err error
		res, err = e.index.Search(gctx, sq.Request())
		return err
	})
	g.Go(func() error {
		_, s := tracing.StartChildSpan(ctx, "feedback")
		defer s.End()
		var err error
		feedback, err = e.catalog.FeedbackScores(gctx, e.index.Name())
		if err != nil {
			return fmt.Errorf("loading feedback: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits := res.Hits
	if res.Total > uint64(len(hits)) {
		extra, err := e.boosted(ctx, sq, hits, feedback)
		if err != nil {
			return nil, err
		}
		hits = append(hits, extra...)
	}

	_, rs := tracing.StartChildSpan(ctx, "rescore")
	candidates := make([]ranker.Scored, 0, len(hits))
	for _, h := range hits {
		id, err := index.ParseDocID(h.ID)
		if err != nil {
			e.logger.Warn("skipping hit with malformed id", "doc_id", h.ID)
			continue
		}
		candidates = append(candidates, ranker.Scored{ID: id, Base: h.Score, Feedback: feedback[id]})
	}
	ranker.Rescore(candidates)
	page := ranker.Page(candidates, sq.Offset, sq.Size)
	rs.End()

	ids := make([]int64, len(page))
	for i, c := range page {
		ids[i] = c.ID
	}
	docs, err := e.hydrate(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &movie.SearchResult{Total: res.Total, Results: docs}, nil
}

// boosted fetches the matches with positive feedback that the candidate
// search cut off.
func (e *Executor) boosted(ctx context.Context, sq *ranker.ScoredQuery, fetched search.DocumentMatchCollection, feedback map[int64]int64) (search.DocumentMatchCollection, error) {
	seen := make(map[string]struct{}, len(fetched))
	for _, h := range fetched {
		seen[h.ID] = struct{}{}
	}
	var ids []string
	for id, f := range feedback {
		if f <= 0 {
			continue
		}
		docID := index.DocID(id)
		if _, ok := seen[docID]; !ok {
			ids = append(ids, docID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	_, s := tracing.StartChildSpan(ctx, "boosted_search")
	defer s.End()
	res, err := e.index.Search(ctx, sq.Boosted(ids))
	if err != nil {
		return nil, fmt.Errorf("fetching rated matches: %w", err)
	}
	return res.Hits, nil
}

// sorted lets the index sort and page.
func (e *Executor) sorted(ctx context.Context, sq *ranker.ScoredQuery) (*movie.SearchResult, error) {
	_, s := tracing.StartChildSpan(ctx, "index_search")
	res, err := e.index.Search(ctx, sq.Request())
	s.End()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := index.ParseDocID(h.ID)
		if err != nil {
			e.logger.Warn("skipping hit with malformed id", "doc_id", h.ID)
			continue
		}
		ids = append(ids, id)
	}
	docs, err := e.hydrate(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &movie.SearchResult{Total: res.Total, Results: docs}, nil
}

// hydrate loads full documents in the order of ids. Ids the catalog no
// longer knows are dropped.
func (e *Executor) hydrate(ctx context.Context, ids []int64) ([]movie.Document, error) {
	docs := make([]movie.Document, 0, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}
	_, s := tracing.StartChildSpan(ctx, "hydrate")
	defer s.End()

	byID, err := e.catalog.GetMany(ctx, e.index.Name(), ids)
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			e.logger.Warn("indexed movie missing from catalog", "movie_id", id)
			continue
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// Get returns one movie with its current feedback.
func (e *Executor) Get(ctx context.Context, id int64) (movie.Document, error) {
	return e.catalog.Get(ctx, e.index.Name(), id)
}

// Status describes the active index generation.
func (e *Executor) Status() (index.Status, error) {
	return e.index.Status()
}

func (e *Executor) observe(mode string, result *movie.SearchResult, err error, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
	switch {
	case err != nil:
		e.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
	case result.Total == 0:
		e.metrics.SearchQueriesTotal.WithLabelValues("zero_result").Inc()
		e.metrics.SearchResultsCount.Observe(0)
	default:
		e.metrics.SearchQueriesTotal.WithLabelValues("results").Inc()
		e.metrics.SearchResultsCount.Observe(float64(result.Total))
	}
}

