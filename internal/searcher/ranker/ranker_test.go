package ranker

import (
	"math"
	"testing"

	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
)

func TestFeedbackBoost(t *testing.T) {
	tests := []struct {
		feedback int64
		want     float64
	}{
		{0, 1},
		{1, math.E},
		{-3, math.Exp(-3)},
		{4, math.Exp(4)},
		{5, FeedbackCeiling},
		{1000, FeedbackCeiling},
	}
	for _, tt := range tests {
		if got := FeedbackBoost(tt.feedback); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("FeedbackBoost(%d) = %v, want %v", tt.feedback, got, tt.want)
		}
	}
}

func TestFeedbackIsMonotonic(t *testing.T) {
	prev := FeedbackBoost(-50)
	for f := int64(-49); f <= 50; f++ {
		cur := FeedbackBoost(f)
		if cur < prev {
			t.Fatalf("boost decreased at %d: %v < %v", f, cur, prev)
		}
		prev = cur
	}
}

func TestRescore(t *testing.T) {
	hits := []Scored{
		{ID: 1, Base: 10},
		{ID: 2, Base: 9, Feedback: 2},
		{ID: 3, Base: 12, Feedback: -10},
		{ID: 4, Base: 10},
	}
	Rescore(hits)

	want := []int64{2, 3, 1, 4}
	for i, h := range hits {
		if h.ID != want[i] {
			t.Fatalf("order = %v, want ids %v", hits, want)
		}
	}
	if got := hits[0].Score; math.Abs(got-(9+math.Exp(2))) > 1e-9 {
		t.Errorf("score of id 2 = %v", got)
	}
}

func TestSortOrder(t *testing.T) {
	so, ok := SortOrder(movie.SortReleaseDate, movie.OrderAsc)
	if !ok || len(so) != 2 {
		t.Fatalf("SortOrder = %v, %v", so, ok)
	}
	f := so[0].(*search.SortField)
	if f.Field != movie.SortReleaseDate || f.Desc || f.Type != search.SortFieldAsDate || f.Missing != search.SortFieldMissingLast {
		t.Errorf("primary sort = %+v", f)
	}

	so, _ = SortOrder(movie.SortPopularity, movie.OrderDesc)
	if f := so[0].(*search.SortField); !f.Desc || f.Type != search.SortFieldAsNumber {
		t.Errorf("popularity sort = %+v", f)
	}

	if _, ok := SortOrder("title", movie.OrderAsc); ok {
		t.Error("title accepted as sort field")
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := Page(items, 0, 2); len(got) != 2 || got[0] != 1 {
		t.Errorf("first page = %v", got)
	}
	if got := Page(items, 4, 10); len(got) != 1 || got[0] != 5 {
		t.Errorf("last page = %v", got)
	}
	if got := Page(items, 10, 2); got == nil || len(got) != 0 {
		t.Errorf("past end = %#v, want empty non-nil", got)
	}
	if got := Page(items, -3, 2); got == nil || len(got) != 0 {
		t.Errorf("negative offset = %#v, want empty non-nil", got)
	}
	if got := Page(items, 1, math.MaxInt); len(got) != 4 || got[0] != 2 {
		t.Errorf("huge size = %v", got)
	}
}

func TestRank(t *testing.T) {
	base := query.NewMatchAllQuery()

	sq := Rank(base, movie.SearchRequest{Page: 3, Size: 10}, 0)
	if !sq.Relevance() || sq.Window != DefaultWindow || sq.Offset != 20 {
		t.Fatalf("relevance plan = %+v", sq)
	}
	if r := sq.Request(); r.Size != DefaultWindow || r.From != 0 {
		t.Errorf("relevance request from %d size %d", r.From, r.Size)
	}

	sq = Rank(base, movie.SearchRequest{Page: 4, Size: 10}, 25)
	if r := sq.Request(); r.Size != 40 || r.From != 0 {
		t.Errorf("page past the window fetches %d from %d, want 40 from 0", r.Size, r.From)
	}
	if r := sq.Boosted([]string{"7", "9"}); r.Size != 2 {
		t.Errorf("boosted request size = %d", r.Size)
	}

	sq = Rank(base, movie.SearchRequest{SortBy: movie.SortPopularity, Order: movie.OrderDesc, Page: 2, Size: 5}, 100)
	if sq.Relevance() {
		t.Fatal("named sort planned as relevance")
	}
	if r := sq.Request(); r.Size != 5 || r.From != 5 || len(r.Sort) != 2 {
		t.Errorf("sorted request from %d size %d sort %v", r.From, r.Size, r.Sort)
	}
}
