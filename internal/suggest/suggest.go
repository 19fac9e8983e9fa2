// Package suggest serves title autocomplete from the suggest.input prefix
// structure and the genre facet over the active index generation.
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/index"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/searcher/cache"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/config"
)

// overfetch widens the prefix query so de-duplication still fills the list.
const overfetch = 3

const genreFacet = "genres"

// Index is the part of the index manager the service reads.
type Index interface {
	Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error)
	Active() string
}

// GenreCount is one facet bucket.
type GenreCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Service answers autocomplete and facet lookups.
type Service struct {
	index  Index
	cache  *cache.QueryCache
	cfg    config.SuggestConfig
	logger *slog.Logger
}

// New creates a Service. c may be nil.
func New(idx Index, c *cache.QueryCache, cfg config.SuggestConfig) *Service {
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = 10
	}
	if cfg.MaxGenres <= 0 {
		cfg.MaxGenres = 100
	}
	return &Service{
		index:  idx,
		cache:  c,
		cfg:    cfg,
		logger: slog.Default().With("component", "suggest"),
	}
}

// Suggest returns up to MaxSuggestions distinct titles completing prefix,
// most popular first. The title equal to the prefix, or the prefix itself
// when no title equals it, comes first. An empty prefix yields nothing.
func (s *Service) Suggest(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.Join(strings.Fields(prefix), " ")
	if prefix == "" {
		return []string{}, nil
	}
	key := cache.Key("suggest", s.index.Active(), prefix)
	out, _, err := cache.GetOrCompute(ctx, s.cache, key, func(ctx context.Context) ([]string, error) {
		return s.suggest(ctx, prefix)
	})
	return out, err
}

func (s *Service) suggest(ctx context.Context, prefix string) ([]string, error) {
	pq := query.NewPrefixQuery(strings.ToLower(prefix))
	pq.SetField(index.FieldSuggestInput)

	req := bleve.NewSearchRequestOptions(pq, s.cfg.MaxSuggestions*overfetch, 0, false)
	req.Fields = []string{index.FieldTitle}
	req.SortByCustom(search.SortOrder{
		&search.SortField{
			Field:   index.FieldSuggestWeight,
			Desc:    true,
			Type:    search.SortFieldAsNumber,
			Missing: search.SortFieldMissingLast,
		},
		&search.SortField{Field: index.FieldID, Type: search.SortFieldAsNumber},
	})

	res, err := s.index.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("suggest %q: %w", prefix, err)
	}

	titles := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		if t, ok := h.Fields[index.FieldTitle].(string); ok {
			titles = append(titles, t)
		}
	}
	return Arrange(prefix, titles, s.cfg.MaxSuggestions), nil
}

// Arrange de-duplicates titles case-insensitively, keeping the first
// spelling, puts the exact match of prefix (or prefix itself) first and
// trims to limit entries.
func Arrange(prefix string, titles []string, limit int) []string {
	seen := make(map[string]bool, len(titles))
	out := make([]string, 0, len(titles)+1)
	exact := -1
	for _, t := range titles {
		k := strings.ToLower(t)
		if seen[k] {
			continue
		}
		seen[k] = true
		if exact < 0 && strings.EqualFold(t, prefix) {
			exact = len(out)
		}
		out = append(out, t)
	}

	if exact >= 0 {
		first := out[exact]
		copy(out[1:exact+1], out[:exact])
		out[0] = first
	} else {
		out = append([]string{prefix}, out...)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Genres returns the distinct genres of the corpus with their document
// counts, largest first, at most MaxGenres of them.
func (s *Service) Genres(ctx context.Context) ([]GenreCount, error) {
	key := cache.Key("genres", s.index.Active())
	out, _, err := cache.GetOrCompute(ctx, s.cache, key, s.genres)
	return out, err
}

func (s *Service) genres(ctx context.Context) ([]GenreCount, error) {
	req := bleve.NewSearchRequestOptions(query.NewMatchAllQuery(), 0, 0, false)
	req.AddFacet(genreFacet, bleve.NewFacetRequest(index.FieldGenres, s.cfg.MaxGenres))

	res, err := s.index.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("genre facet: %w", err)
	}
	out := []GenreCount{}
	if fr, ok := res.Facets[genreFacet]; ok && fr.Terms != nil {
		for _, t := range fr.Terms.Terms() {
			out = append(out, GenreCount{Name: t.Term, Count: t.Count})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > s.cfg.MaxGenres {
		out = out[:s.cfg.MaxGenres]
	}
	s.logger.Debug("genre facet computed", "genres", len(out), "docs", res.Total)
	return out, nil
}

// Names lists the genre names of counts.
func Names(counts []GenreCount) []string {
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.Name
	}
	return out
}
