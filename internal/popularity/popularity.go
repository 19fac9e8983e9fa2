// Package popularity computes the static relevance prior of every movie: a
// weighted Bayesian average blending TMDB and IMDb vote statistics, shrunk
// toward the dataset mean by a minimum-votes threshold.
package popularity

import (
	"math"
	"sort"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
)

// Percentile of vote_count used as the minimum-votes threshold.
const Percentile = 0.90

// Stats are the vote signals of one movie.
type Stats struct {
	VoteCount   float64
	VoteAverage float64
	IMDbVotes   float64
	IMDbRating  float64
}

// Prior holds the dataset-wide parameters: M is the minimum-votes threshold
// and C the mean vote average.
type Prior struct {
	M float64 `json:"m"`
	C float64 `json:"c"`
}

// ComputePrior derives M and C from the full batch.
func ComputePrior(batch []Stats) Prior {
	if len(batch) == 0 {
		return Prior{}
	}
	counts := make([]float64, len(batch))
	var sum float64
	for i, s := range batch {
		counts[i] = s.VoteCount
		sum += s.VoteAverage
	}
	return Prior{
		M: Quantile(counts, Percentile),
		C: sum / float64(len(batch)),
	}
}

// Score returns the popularity of s under the prior. A zero denominator
// falls back to C.
func (p Prior) Score(s Stats) float64 {
	den := s.VoteCount + s.IMDbVotes + p.M
	if den == 0 {
		return p.C
	}
	score := (s.VoteCount*s.VoteAverage + s.IMDbVotes*s.IMDbRating + p.M*p.C) / den
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return p.C
	}
	return score
}

// Quantile returns the q-th quantile of values using linear interpolation
// between closest ranks. values is not modified.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Apply computes the prior over docs and writes Popularity and the
// suggestion weight of every document.
func Apply(docs []movie.Document) Prior {
	batch := make([]Stats, len(docs))
	for i, d := range docs {
		batch[i] = StatsOf(d)
	}
	prior := ComputePrior(batch)
	for i := range docs {
		docs[i].Popularity = prior.Score(batch[i])
		docs[i].Suggest.Weight = docs[i].Popularity
	}
	return prior
}

// StatsOf extracts the vote signals of a document.
func StatsOf(d movie.Document) Stats {
	return Stats{
		VoteCount:   d.VoteCount,
		VoteAverage: d.VoteAverage,
		IMDbVotes:   d.IMDbVotes,
		IMDbRating:  d.IMDbRating,
	}
}
