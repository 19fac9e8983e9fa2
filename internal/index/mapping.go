package index

import (
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
)

// TextAnalyzer tokenizes on unicode word boundaries and lower-cases.
const TextAnalyzer = "movie_text"

// Field names in the index.
const (
	FieldID                  = "id"
	FieldTitle               = "title"
	FieldPlot                = "plot_synopsis"
	FieldGenres              = "genres"
	FieldCast                = "cast"
	FieldDirector            = "director"
	FieldReleaseDate         = "release_date"
	FieldPopularity          = "popularity"
	FieldOriginalLanguage    = "original_language"
	FieldStatus              = "status"
	FieldProductionCompanies = "production_companies"
	FieldProductionCountries = "production_countries"
	FieldSpokenLanguages     = "spoken_languages"
	FieldSuggestInput        = "suggest.input"
	FieldSuggestWeight       = "suggest.weight"
)

// NewMapping declares the index schema: analyzed text on title and plot,
// exact keywords on every categorical field, a case-sensitive keyword on
// director, a datetime release date, numeric popularity and the
// suggest.input/suggest.weight completion structure.
func NewMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(TextAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = TextAnalyzer
	im.IndexDynamic = false
	im.StoreDynamic = false

	text := func(store bool) *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = TextAnalyzer
		fm.Store = store
		fm.IncludeTermVectors = true
		fm.IncludeInAll = false
		return fm
	}
	keyword := func() *mapping.FieldMapping {
		fm := bleve.NewKeywordFieldMapping()
		fm.Store = false
		fm.IncludeInAll = false
		return fm
	}
	numeric := func() *mapping.FieldMapping {
		fm := bleve.NewNumericFieldMapping()
		fm.Store = false
		fm.IncludeInAll = false
		return fm
	}

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt(FieldID, numeric())
	doc.AddFieldMappingsAt(FieldTitle, text(true))
	doc.AddFieldMappingsAt(FieldPlot, text(false))
	for _, f := range []string{
		FieldGenres, FieldCast, FieldDirector, FieldOriginalLanguage, FieldStatus,
		FieldProductionCompanies, FieldProductionCountries, FieldSpokenLanguages,
	} {
		doc.AddFieldMappingsAt(f, keyword())
	}
	date := bleve.NewDateTimeFieldMapping()
	date.Store = false
	date.IncludeInAll = false
	doc.AddFieldMappingsAt(FieldReleaseDate, date)
	doc.AddFieldMappingsAt(FieldPopularity, numeric())

	suggest := bleve.NewDocumentMapping()
	suggest.Dynamic = false
	suggest.AddFieldMappingsAt("input", keyword())
	suggest.AddFieldMappingsAt("weight", numeric())
	doc.AddSubDocumentMapping("suggest", suggest)

	im.DefaultMapping = doc
	return im, nil
}

// DocID is the index identifier of a movie.
func DocID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseDocID reverses DocID.
func ParseDocID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// toIndexable flattens a document into the field map the mapping expects.
// Fields that are not searchable stay in the SQL store only.
func toIndexable(d movie.Document) map[string]interface{} {
	m := map[string]interface{}{
		FieldID:                  float64(d.ID),
		FieldTitle:               d.Title,
		FieldPlot:                d.PlotSynopsis,
		FieldGenres:              d.Genres,
		FieldCast:                d.Cast,
		FieldOriginalLanguage:    d.OriginalLanguage,
		FieldStatus:              d.Status,
		FieldProductionCompanies: d.ProductionCompanies,
		FieldProductionCountries: d.ProductionCountries,
		FieldSpokenLanguages:     d.SpokenLanguages,
		FieldPopularity:          d.Popularity,
		"suggest": map[string]interface{}{
			"input":  d.Suggest.Input,
			"weight": d.Suggest.Weight,
		},
	}
	if d.Director != "" {
		m[FieldDirector] = d.Director
	}
	if d.ReleaseDate != nil {
		m[FieldReleaseDate] = d.ReleaseDate.Time.UTC().Truncate(24 * time.Hour)
	}
	return m
}
