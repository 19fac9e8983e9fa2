package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultMinQueryLength drops queries too short to be meaningful.
const DefaultMinQueryLength = 10

// PrecisionK is the cut-off of the precision metric.
const PrecisionK = 10

// IsRelevant reports whether either title contains the other, ignoring case.
func IsRelevant(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(b, a) || strings.Contains(a, b)
}

// PrecisionAt is the fraction of the first k results relevant to target.
// The denominator is always k.
func PrecisionAt(titles []string, target string, k int) float64 {
	if k <= 0 {
		return 0
	}
	hits := 0
	for _, t := range titles[:min(k, len(titles))] {
		if IsRelevant(t, target) {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

// ReciprocalRank is 1/rank of the first result exactly equal to target,
// or 0 when target is absent.
func ReciprocalRank(titles []string, target string) float64 {
	if i := slices.Index(titles, target); i >= 0 {
		return 1 / float64(i+1)
	}
	return 0
}

// Client issues search requests against a running service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// Search returns the result titles for query, in rank order.
func (c *Client) Search(ctx context.Context, query string) ([]string, int, error) {
	u := fmt.Sprintf("%s/api/v1/movies/search?query=%s", strings.TrimRight(c.BaseURL, "/"), url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("search %q: status %d", query, resp.StatusCode)
	}
	var body struct {
		Results []struct {
			Title string `json:"title"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decoding response for %q: %w", query, err)
	}
	titles := make([]string, len(body.Results))
	for i, r := range body.Results {
		titles[i] = r.Title
	}
	return titles, resp.StatusCode, nil
}

// Outcome is the score of one evaluated case.
type Outcome struct {
	Case           Case    `json:"case"`
	ReciprocalRank float64 `json:"reciprocal_rank"`
	Precision      float64 `json:"precision_at_10"`
	Words          int     `json:"words"`
	Error          string  `json:"error,omitempty"`
}

// Report aggregates a quality run.
type Report struct {
	Evaluated int     `json:"evaluated"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	MRR       float64 `json:"mrr"`
	Precision float64 `json:"precision_at_10"`
	// MRRByWords buckets the reciprocal rank by query length in words,
	// capped at 5 (the last bucket holds longer queries).
	MRRByWords map[int]float64 `json:"mrr_by_words"`
	Low        []Outcome       `json:"low,omitempty"`
	Elapsed    time.Duration   `json:"elapsed_ns"`
}

// Options tune Evaluate.
type Options struct {
	Concurrency    int
	MinQueryLength int
	// LowThreshold lists cases whose reciprocal rank falls below it.
	LowThreshold float64
}

// Evaluate runs every case through client and aggregates the metrics.
// Failed requests count as rank 0 and are reported in Failed.
func Evaluate(ctx context.Context, client *Client, cases []Case, opts Options) (Report, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MinQueryLength <= 0 {
		opts.MinQueryLength = DefaultMinQueryLength
	}
	if opts.LowThreshold <= 0 {
		opts.LowThreshold = 0.5
	}
	start := time.Now()

	var rep Report
	todo := make([]Case, 0, len(cases))
	for _, c := range cases {
		if len(c.Query) < opts.MinQueryLength {
			rep.Skipped++
			continue
		}
		todo = append(todo, c)
	}

	outcomes := make([]Outcome, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, c := range todo {
		g.Go(func() error {
			out := Outcome{Case: c, Words: len(strings.Fields(c.Query))}
			titles, _, err := client.Search(gctx, c.Query)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				out.Error = err.Error()
			} else {
				out.ReciprocalRank = ReciprocalRank(titles, c.Title)
				out.Precision = PrecisionAt(titles, c.Title, PrecisionK)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}

	rep.MRRByWords = make(map[int]float64)
	bucketN := make(map[int]int)
	for _, o := range outcomes {
		rep.Evaluated++
		if o.Error != "" {
			rep.Failed++
		}
		rep.MRR += o.ReciprocalRank
		rep.Precision += o.Precision
		b := min(o.Words, 5)
		rep.MRRByWords[b] += o.ReciprocalRank
		bucketN[b]++
		if o.ReciprocalRank < opts.LowThreshold {
			rep.Low = append(rep.Low, o)
		}
	}
	if rep.Evaluated > 0 {
		rep.MRR /= float64(rep.Evaluated)
		rep.Precision /= float64(rep.Evaluated)
	}
	for b, n := range bucketN {
		rep.MRRByWords[b] /= float64(n)
	}
	rep.Elapsed = time.Since(start)
	return rep, nil
}
