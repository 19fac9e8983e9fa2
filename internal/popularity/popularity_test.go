package popularity

import (
	"math"
	"testing"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestQuantileLinear(t *testing.T) {
	values := []float64{10, 1, 4, 3, 2, 5, 6, 7, 8, 9}
	// Sorted 1..10, position 0.9*9 = 8.1 -> 9 + 0.1*(10-9).
	if got := Quantile(values, 0.9); !approx(got, 9.1) {
		t.Errorf("Quantile = %v, want 9.1", got)
	}
	if values[0] != 10 {
		t.Error("Quantile mutated its input")
	}
	if got := Quantile([]float64{7}, 0.9); got != 7 {
		t.Errorf("single = %v", got)
	}
	if got := Quantile(nil, 0.9); got != 0 {
		t.Errorf("empty = %v", got)
	}
}

func TestComputePrior(t *testing.T) {
	p := ComputePrior([]Stats{
		{VoteCount: 1000, VoteAverage: 8.0},
		{VoteCount: 1200, VoteAverage: 8.5},
	})
	if !approx(p.M, 1180) {
		t.Errorf("M = %v, want 1180", p.M)
	}
	if !approx(p.C, 8.25) {
		t.Errorf("C = %v, want 8.25", p.C)
	}
}

func TestScoreFormula(t *testing.T) {
	p := Prior{M: 100, C: 6}
	s := Stats{VoteCount: 300, VoteAverage: 8, IMDbVotes: 100, IMDbRating: 7}
	want := (300*8.0 + 100*7.0 + 100*6.0) / (300 + 100 + 100)
	if got := p.Score(s); !approx(got, want) {
		t.Errorf("Score = %v, want %v", got, want)
	}
}

func TestScoreZeroDenominatorFallsBackToMean(t *testing.T) {
	p := Prior{M: 0, C: 6.4}
	if got := p.Score(Stats{VoteAverage: 9}); got != 6.4 {
		t.Errorf("Score = %v, want C", got)
	}
}

func TestScoreTendsToMean(t *testing.T) {
	p := Prior{M: 50, C: 6}
	got := p.Score(Stats{VoteCount: 1e-9, VoteAverage: 10, IMDbVotes: 1e-9, IMDbRating: 10})
	if math.Abs(got-6) > 1e-6 {
		t.Errorf("Score with vanishing votes = %v, want ~6", got)
	}
}

func TestScoreMonotoneInVoteAverage(t *testing.T) {
	p := Prior{M: 200, C: 6.5}
	prev := math.Inf(-1)
	for va := 0.0; va <= 10; va += 0.5 {
		got := p.Score(Stats{VoteCount: 150, VoteAverage: va, IMDbVotes: 40, IMDbRating: 7})
		if got < prev {
			t.Fatalf("score decreased at vote_average %v: %v < %v", va, got, prev)
		}
		prev = got
	}
}

func TestApplySetsWeight(t *testing.T) {
	docs := []movie.Document{
		{ID: 1, Title: "Dune", VoteCount: 1000, VoteAverage: 8.0},
		{ID: 2, Title: "Dune Part Two", VoteCount: 1200, VoteAverage: 8.5},
	}
	prior := Apply(docs)
	for _, d := range docs {
		if d.Popularity == 0 || d.Suggest.Weight != d.Popularity {
			t.Errorf("doc %d popularity %v weight %v", d.ID, d.Popularity, d.Suggest.Weight)
		}
	}
	if !(docs[1].Popularity > docs[0].Popularity) {
		t.Errorf("expected Dune Part Two to be more popular: %v vs %v", docs[1].Popularity, docs[0].Popularity)
	}
	want := (1000*8.0 + prior.M*prior.C) / (1000 + prior.M)
	if !approx(docs[0].Popularity, want) {
		t.Errorf("popularity = %v, want %v", docs[0].Popularity, want)
	}
}
