package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
)

// Fill values for absent categorical text.
const (
	UnknownStatus   = "Unknown"
	UnknownLanguage = "Unknown"
)

// maxWarnings bounds the skipped-row warnings logged per run.
const maxWarnings = 20

// Result is the outcome of parsing one dataset.
type Result struct {
	Docs    []movie.Document
	Rows    int
	Skipped int
	Merged  int
}

type pending struct {
	doc      movie.Document
	synopses []string
	extras   []string
}

// Parse reads every row of the dataset at path with the named format.
// Malformed rows are skipped and counted; a missing required column or
// an unreadable file fails the whole run.
func Parse(ctx context.Context, path, format string) (*Result, error) {
	layout, err := LayoutOf(format)
	if err != nil {
		return nil, err
	}
	rr, err := open(path)
	if err != nil {
		return nil, err
	}
	defer rr.Close()
	return layout.parse(ctx, rr)
}

func (l Layout) parse(ctx context.Context, rr rowReader) (*Result, error) {
	logger := slog.Default().With("component", "dataset-source", "format", string(l.Format))

	header, err := rr.Next()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("dataset is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols, err := l.columns(header)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var (
		order []int64
		byID  = make(map[int64]*pending)
	)
	skip := func(line int, reason error) {
		res.Skipped++
		if res.Skipped <= maxWarnings {
			logger.Warn("skipping malformed row", "line", line, "error", reason)
		}
	}

	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cells, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", line, err)
		}
		res.Rows++

		if len(cells) > len(header) || (!rr.Padded() && len(cells) != len(header)) {
			skip(line, fmt.Errorf("row has %d columns, header has %d", len(cells), len(header)))
			continue
		}
		p, err := decode(row{cells: cells, cols: cols})
		if err != nil {
			skip(line, err)
			continue
		}

		prev, dup := byID[p.doc.ID]
		switch {
		case !dup:
			byID[p.doc.ID] = p
			order = append(order, p.doc.ID)
		case l.MergeDuplicates:
			prev.synopses = append(prev.synopses, p.synopses...)
			res.Merged++
		default:
			skip(line, fmt.Errorf("duplicate id %d", p.doc.ID))
		}
	}
	if res.Skipped > maxWarnings {
		logger.Warn("further malformed rows not logged", "skipped", res.Skipped)
	}

	res.Docs = make([]movie.Document, 0, len(order))
	for _, id := range order {
		p := byID[id]
		p.doc.PlotSynopsis = strings.Join(append(p.synopses, p.extras...), " ")
		p.doc.Normalize()
		res.Docs = append(res.Docs, p.doc)
	}
	logger.Info("dataset parsed", "rows", res.Rows, "documents", len(res.Docs), "skipped", res.Skipped, "merged", res.Merged)
	return res, nil
}

type row struct {
	cells []string
	cols  map[string]int
}

func (r row) get(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

func decode(r row) (*pending, error) {
	id, err := parseID(r.get("id"))
	if err != nil {
		return nil, err
	}
	title := r.get("title")
	if title == "" {
		return nil, fmt.Errorf("movie %d has an empty title", id)
	}

	d := movie.Document{
		ID:                  id,
		Title:               title,
		Status:              orDefault(r.get("status"), UnknownStatus),
		OriginalLanguage:    orDefault(r.get("original_language"), UnknownLanguage),
		Director:            r.get("director"),
		PosterPath:          r.get("poster_path"),
		BackdropPath:        r.get("backdrop_path"),
		Genres:              movie.SplitList(r.get("genres"), ListSeparator),
		Cast:                movie.SplitList(r.get("cast"), ListSeparator),
		ProductionCompanies: movie.SplitList(r.get("production_companies"), ListSeparator),
		ProductionCountries: movie.SplitList(r.get("production_countries"), ListSeparator),
		SpokenLanguages:     movie.SplitList(r.get("spoken_languages"), ListSeparator),
	}

	floats := []struct {
		col string
		dst *float64
	}{
		{"vote_average", &d.VoteAverage},
		{"vote_count", &d.VoteCount},
		{"imdb_rating", &d.IMDbRating},
		{"imdb_votes", &d.IMDbVotes},
		{"runtime", &d.Runtime},
	}
	for _, f := range floats {
		if *f.dst, err = parseFloat(f.col, r.get(f.col)); err != nil {
			return nil, err
		}
	}
	if d.Budget, err = parseInt(r.get("budget")); err != nil {
		return nil, fmt.Errorf("budget: %w", err)
	}
	if d.Revenue, err = parseInt(r.get("revenue")); err != nil {
		return nil, fmt.Errorf("revenue: %w", err)
	}
	if d.ReleaseDate, err = movie.ParseDate(r.get("release_date")); err != nil {
		return nil, err
	}

	p := &pending{doc: d}
	if s := r.get("plot_synopsis"); s != "" {
		p.synopses = []string{s}
	}
	for _, c := range []string{"overview", "tagline", "keywords"} {
		if s := r.get(c); s != "" {
			p.extras = append(p.extras, s)
		}
	}
	return p, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Spreadsheets may render integer ids as floats.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return 0, fmt.Errorf("id %q is not an integer", s)
		}
		id = int64(f)
	}
	if id <= 0 {
		return 0, fmt.Errorf("id %d is not positive", id)
	}
	return id, nil
}

func parseFloat(col, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s %q is not a number", col, s)
	}
	return f, nil
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return int64(f), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
