// Package ranker combines text relevance with user feedback and maps the
// sort allow-list onto index sort orders.
package ranker

import (
	"math"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/index"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
)

// FeedbackCeiling caps the feedback contribution to a score.
const FeedbackCeiling = 100.0

// DefaultWindow is the number of relevance candidates re-ranked with
// feedback when no window is configured.
const DefaultWindow = 10000

// ScoredQuery is a base query wrapped with its ranking stage. A nil Sort
// means relevance: the top hits by text score, at least Window of them and
// always enough to fill the requested page, are re-scored with feedback and
// paged in memory. Otherwise the index sorts and pages by Sort.
type ScoredQuery struct {
	Base   query.Query
	Sort   search.SortOrder
	Window int
	Offset int
	Size   int
}

// Rank wraps base for req. A sort field outside the allow-list falls
// back to relevance ordering.
func Rank(base query.Query, req movie.SearchRequest, window int) *ScoredQuery {
	if window <= 0 {
		window = DefaultWindow
	}
	sq := &ScoredQuery{Base: base, Window: window, Offset: req.Offset(), Size: req.Size}
	if so, ok := SortOrder(req.SortBy, req.Order); ok {
		sq.Sort = so
	}
	return sq
}

// Relevance reports whether results are ordered by final score.
func (sq *ScoredQuery) Relevance() bool {
	return sq.Sort == nil
}

// Request is the index request that fetches the candidates.
func (sq *ScoredQuery) Request() *bleve.SearchRequest {
	if sq.Relevance() {
		return bleve.NewSearchRequestOptions(sq.Base, sq.Candidates(), 0, false)
	}
	req := bleve.NewSearchRequestOptions(sq.Base, sq.Size, sq.Offset, false)
	req.SortByCustom(sq.Sort)
	return req
}

// Candidates is the number of relevance hits fetched for re-scoring.
func (sq *ScoredQuery) Candidates() int {
	return max(sq.Window, sq.Offset+sq.Size)
}

// Boosted fetches the documents among ids that match the base query. It
// pulls positively rated documents ranked below the candidate cut into the
// re-scored set, since their boost can lift them past anything fetched.
func (sq *ScoredQuery) Boosted(ids []string) *bleve.SearchRequest {
	q := query.NewConjunctionQuery([]query.Query{sq.Base, query.NewDocIDQuery(ids)})
	return bleve.NewSearchRequestOptions(q, len(ids), 0, false)
}

// Scored is one candidate with its relevance and feedback.
type Scored struct {
	ID       int64   `json:"id"`
	Base     float64 `json:"base_score"`
	Feedback int64   `json:"feedback"`
	Score    float64 `json:"score"`
}

// FeedbackBoost is exp(feedback) capped at FeedbackCeiling.
func FeedbackBoost(feedback int64) float64 {
	return math.Min(math.Exp(float64(feedback)), FeedbackCeiling)
}

// Final is the ranking score of a document.
func Final(base float64, feedback int64) float64 {
	return base + FeedbackBoost(feedback)
}

// Rescore computes the final score of every candidate and sorts them by
// it, breaking ties by text relevance and then by ascending id so that
// equal inputs always rank the same way.
func Rescore(hits []Scored) {
	for i := range hits {
		hits[i].Score = Final(hits[i].Base, hits[i].Feedback)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Base != b.Base {
			return a.Base > b.Base
		}
		return a.ID < b.ID
	})
}

// SortOrder translates an allow-listed sort field and order into an index
// sort. Documents missing the field sort last. The id tiebreak keeps pages
// disjoint. ok is false when field is not sortable.
func SortOrder(field, order string) (so search.SortOrder, ok bool) {
	var typ search.SortFieldType
	switch field {
	case movie.SortPopularity:
		typ = search.SortFieldAsNumber
	case movie.SortReleaseDate:
		typ = search.SortFieldAsDate
	default:
		return nil, false
	}
	return search.SortOrder{
		&search.SortField{
			Field:   field,
			Desc:    order != movie.OrderAsc,
			Type:    typ,
			Missing: search.SortFieldMissingLast,
		},
		&search.SortField{
			Field: index.FieldID,
			Type:  search.SortFieldAsNumber,
		},
	}, true
}

// Page returns the window [offset, offset+size) of items, or an empty
// slice when offset is negative or past the end.
func Page[T any](items []T, offset, size int) []T {
	if offset < 0 || offset >= len(items) || size <= 0 {
		return []T{}
	}
	end := len(items)
	if size < end-offset {
		end = offset + size
	}
	return items[offset:end]
}
