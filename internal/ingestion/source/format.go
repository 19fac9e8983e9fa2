// Package source reads movie datasets from CSV and Excel workbooks and
// turns their rows into normalized documents. The column layout is chosen
// by an explicit Format.
package source

import (
	"net/http"
	"strings"

	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
)

// ListSeparator splits multi-valued cells.
const ListSeparator = ","

// Format names a dataset layout.
type Format string

const (
	// FormatTMDB is the raw TMDB export. Duplicate ids keep the first row.
	FormatTMDB Format = "tmdb"
	// FormatMerged is the TMDB export joined with plot synopses. Rows
	// sharing an id are merged by joining their synopses.
	FormatMerged Format = "merged"
)

// Layout declares the columns of a format.
type Layout struct {
	Format          Format
	Required        []string
	Optional        []string
	MergeDuplicates bool
}

var optionalColumns = []string{
	"vote_average", "vote_count", "imdb_rating", "imdb_votes",
	"status", "release_date", "revenue", "runtime", "budget",
	"original_language", "backdrop_path", "poster_path",
	"overview", "tagline", "keywords",
	"genres", "cast", "director",
	"production_companies", "production_countries", "spoken_languages",
}

var layouts = map[Format]Layout{
	FormatTMDB: {
		Format:   FormatTMDB,
		Required: []string{"id", "title"},
		Optional: append([]string{"plot_synopsis"}, optionalColumns...),
	},
	FormatMerged: {
		Format:          FormatMerged,
		Required:        []string{"id", "title", "plot_synopsis"},
		Optional:        optionalColumns,
		MergeDuplicates: true,
	},
}

// LayoutOf returns the layout of the named format.
func LayoutOf(name string) (Layout, error) {
	l, ok := layouts[Format(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return Layout{}, apperrors.Newf(apperrors.ErrUnsupportedFormat, http.StatusBadRequest,
			"dataset format %q is not one of tmdb, merged", name)
	}
	return l, nil
}

// columns maps the header of a file onto the layout, failing when a
// required column is absent.
func (l Layout) columns(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[h]; !dup && h != "" {
			idx[h] = i
		}
	}
	var missing []string
	for _, c := range l.Required {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"%s dataset is missing required columns: %s", l.Format, strings.Join(missing, ", "))
	}
	known := make(map[string]int, len(l.Required)+len(l.Optional))
	for _, c := range append(append([]string(nil), l.Required...), l.Optional...) {
		if i, ok := idx[c]; ok {
			known[c] = i
		}
	}
	return known, nil
}

func (f Format) String() string { return string(f) }
