// Package parser turns a structured movie search request into a bleve
// relevance query: four weighted text clauses OR'd together, AND'd with the
// genre, cast, director and release-date filters.
package parser

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/index"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
)

// Clause weights. Phrase clauses weigh twice their field's fuzzy clause.
const (
	TitleFuzzyBoost  = 5.0
	TitlePhraseBoost = 10.0
	PlotFuzzyBoost   = 1.0
	PlotPhraseBoost  = 2.0
)

// PhraseSlop is the number of position moves a phrase match tolerates.
const PhraseSlop = 2

// MaxSlopTerms is the longest phrase expanded into slop variants; longer
// phrases only match exactly.
const MaxSlopTerms = 10

// filterBoost keeps filter clauses from moving relevance scores. A zero
// boost would zero the query norm of filter-only queries.
const filterBoost = 1e-4

// Parser builds queries with the analyzer the index uses for text fields.
type Parser struct {
	analyzer analysis.Analyzer
}

// New creates a Parser bound to the index mapping.
func New(im mapping.IndexMapping) (*Parser, error) {
	a := im.AnalyzerNamed(index.TextAnalyzer)
	if a == nil {
		return nil, fmt.Errorf("analyzer %s not registered", index.TextAnalyzer)
	}
	return &Parser{analyzer: a}, nil
}

// Parse builds the query for req. It has no side effects. A request with
// neither text nor filters matches every document.
func (p *Parser) Parse(req movie.SearchRequest) query.Query {
	if req.IsEmpty() {
		return query.NewMatchAllQuery()
	}
	var must []query.Query
	if req.Query != "" {
		must = append(must, p.textClause(req.Query))
	}
	must = append(must, filters(req)...)

	switch len(must) {
	case 0:
		return query.NewMatchAllQuery()
	case 1:
		return must[0]
	default:
		return query.NewConjunctionQuery(must)
	}
}

// Tokens analyzes text the way title and plot_synopsis are indexed.
func (p *Parser) Tokens(text string) []string {
	stream := p.analyzer.Analyze([]byte(text))
	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		out = append(out, string(tok.Term))
	}
	return out
}

func (p *Parser) textClause(text string) query.Query {
	tokens := p.Tokens(text)
	if len(tokens) == 0 {
		return query.NewMatchNoneQuery()
	}

	var should []query.Query
	should = append(should, fuzzyTokens(tokens, index.FieldTitle, TitleFuzzyBoost)...)
	should = append(should, phrase(tokens, index.FieldTitle, TitlePhraseBoost)...)
	should = append(should, fuzzyTokens(tokens, index.FieldPlot, PlotFuzzyBoost)...)
	should = append(should, phrase(tokens, index.FieldPlot, PlotPhraseBoost)...)

	dq := query.NewDisjunctionQuery(should)
	dq.SetMin(1)
	return dq
}

// Fuzziness picks the edit distance for a term by its length in runes:
// exact up to 2, one edit up to 5, two edits beyond.
func Fuzziness(term string) int {
	switch n := utf8.RuneCountInString(term); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

func fuzzyTokens(tokens []string, field string, boost float64) []query.Query {
	out := make([]query.Query, 0, len(tokens))
	for _, tok := range tokens {
		if f := Fuzziness(tok); f > 0 {
			fq := query.NewFuzzyQuery(tok)
			fq.SetFuzziness(f)
			fq.SetField(field)
			fq.SetBoost(boost)
			out = append(out, fq)
			continue
		}
		tq := query.NewTermQuery(tok)
		tq.SetField(field)
		tq.SetBoost(boost)
		out = append(out, tq)
	}
	return out
}

func phrase(tokens []string, field string, boost float64) []query.Query {
	if len(tokens) == 1 {
		tq := query.NewTermQuery(tokens[0])
		tq.SetField(field)
		tq.SetBoost(boost)
		return []query.Query{tq}
	}
	slop := PhraseSlop
	if len(tokens) > MaxSlopTerms {
		slop = 0
	}
	variants := PhraseVariants(tokens, slop)
	out := make([]query.Query, 0, len(variants))
	for _, terms := range variants {
		pq := query.NewMultiPhraseQuery(terms, field)
		pq.SetBoost(boost)
		out = append(out, pq)
	}
	return out
}

// PhraseVariants enumerates the term layouts a phrase with the given slop
// may match: the exact phrase, every placement of up to slop wildcard
// positions between adjacent terms, and, for slop >= 2, every swap of two
// adjacent terms. An empty position matches any term.
func PhraseVariants(tokens []string, slop int) [][][]string {
	exact := make([][]string, len(tokens))
	for i, t := range tokens {
		exact[i] = []string{t}
	}
	variants := [][][]string{exact}
	if slop <= 0 || len(tokens) < 2 {
		return variants
	}

	gaps := make([]int, len(tokens)-1)
	var place func(slot, left int)
	place = func(slot, left int) {
		if slot == len(gaps) {
			if left < slop {
				variants = append(variants, withGaps(tokens, gaps))
			}
			return
		}
		for g := 0; g <= left; g++ {
			gaps[slot] = g
			place(slot+1, left-g)
		}
		gaps[slot] = 0
	}
	// left counts the unused budget; the all-zero layout is the exact
	// phrase and is skipped by requiring left < slop.
	place(0, slop)

	if slop >= 2 {
		for i := 0; i+1 < len(tokens); i++ {
			if tokens[i] == tokens[i+1] {
				continue
			}
			swapped := make([][]string, len(tokens))
			copy(swapped, exact)
			swapped[i], swapped[i+1] = exact[i+1], exact[i]
			variants = append(variants, swapped)
		}
	}
	return variants
}

func withGaps(tokens []string, gaps []int) [][]string {
	out := make([][]string, 0, len(tokens)+len(gaps)*PhraseSlop)
	for i, t := range tokens {
		out = append(out, []string{t})
		if i < len(gaps) {
			for g := 0; g < gaps[i]; g++ {
				out = append(out, []string{})
			}
		}
	}
	return out
}

func filters(req movie.SearchRequest) []query.Query {
	var out []query.Query
	if len(req.Genres) > 0 {
		out = append(out, anyTerm(index.FieldGenres, req.Genres))
	}
	if len(req.Cast) > 0 {
		out = append(out, anyTerm(index.FieldCast, req.Cast))
	}
	if req.Director != "" {
		wq := query.NewWildcardQuery("*" + req.Director + "*")
		wq.SetField(index.FieldDirector)
		wq.SetBoost(filterBoost)
		out = append(out, wq)
	}
	if req.FromYear > 0 || req.ToYear > 0 {
		var start, end time.Time
		if req.FromYear > 0 {
			start = time.Date(req.FromYear, time.January, 1, 0, 0, 0, 0, time.UTC)
		}
		if req.ToYear > 0 {
			end = time.Date(req.ToYear, time.December, 31, 0, 0, 0, 0, time.UTC)
		}
		inclusive := true
		dq := query.NewDateRangeInclusiveQuery(start, end, &inclusive, &inclusive)
		dq.SetField(index.FieldReleaseDate)
		dq.SetBoost(filterBoost)
		out = append(out, dq)
	}
	return out
}

func anyTerm(field string, values []string) query.Query {
	terms := make([]query.Query, 0, len(values))
	for _, v := range values {
		tq := query.NewTermQuery(v)
		tq.SetField(field)
		tq.SetBoost(filterBoost)
		terms = append(terms, tq)
	}
	if len(terms) == 1 {
		return terms[0]
	}
	dq := query.NewDisjunctionQuery(terms)
	dq.SetMin(1)
	return dq
}
