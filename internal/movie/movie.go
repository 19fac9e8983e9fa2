// Package movie defines the canonical movie document, the structured search
// request and the search result shape shared by ingestion, indexing and the
// HTTP boundary.
package movie

import (
	"strings"
	"unicode"
)

// Document is the indexed and returned unit.
type Document struct {
	ID                  int64    `json:"id"`
	Title               string   `json:"title"`
	OriginalLanguage    string   `json:"original_language"`
	ReleaseDate         *Date    `json:"release_date"`
	Runtime             float64  `json:"runtime"`
	Status              string   `json:"status"`
	Genres              []string `json:"genres"`
	Cast                []string `json:"cast"`
	Director            string   `json:"director"`
	ProductionCompanies []string `json:"production_companies"`
	ProductionCountries []string `json:"production_countries"`
	SpokenLanguages     []string `json:"spoken_languages"`
	PlotSynopsis        string   `json:"plot_synopsis"`
	VoteAverage         float64  `json:"vote_average"`
	VoteCount           float64  `json:"vote_count"`
	IMDbRating          float64  `json:"imdb_rating"`
	IMDbVotes           float64  `json:"imdb_votes"`
	Popularity          float64  `json:"popularity"`
	Budget              int64    `json:"budget"`
	Revenue             int64    `json:"revenue"`
	PosterPath          string   `json:"poster_path,omitempty"`
	BackdropPath        string   `json:"backdrop_path,omitempty"`
	Feedback            int64    `json:"feedback"`
	Suggest             Suggest  `json:"suggest"`
}

// Suggest is the autocomplete payload: lower-cased title tokens plus the
// whole lower-cased title, weighted by popularity.
type Suggest struct {
	Input  []string `json:"input"`
	Weight float64  `json:"weight"`
}

// Normalize enforces the categorical invariants: no empty or duplicate
// entries and never a nil slice.
func (d *Document) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.Director = strings.TrimSpace(d.Director)
	d.PlotSynopsis = strings.Join(strings.Fields(d.PlotSynopsis), " ")
	d.Genres = CleanList(d.Genres)
	d.Cast = CleanList(d.Cast)
	d.ProductionCompanies = CleanList(d.ProductionCompanies)
	d.ProductionCountries = CleanList(d.ProductionCountries)
	d.SpokenLanguages = CleanList(d.SpokenLanguages)
	d.Suggest.Input = SuggestInputs(d.Title)
	if d.Suggest.Input == nil {
		d.Suggest.Input = []string{}
	}
}

// CleanList trims every value, drops empties and removes duplicates while
// keeping first-seen order. The result is never nil.
func CleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SplitList splits a delimited cell into a cleaned list.
func SplitList(cell, sep string) []string {
	if strings.TrimSpace(cell) == "" {
		return []string{}
	}
	return CleanList(strings.Split(cell, sep))
}

// SuggestInputs returns the completion inputs for a title.
func SuggestInputs(title string) []string {
	lower := strings.ToLower(strings.TrimSpace(title))
	if lower == "" {
		return nil
	}
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	return CleanList(append(tokens, lower))
}
