package parser

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/index"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
)

func date(y int, m time.Month, d int) *movie.Date {
	v := movie.NewDate(y, m, d)
	return &v
}

func corpus() []movie.Document {
	docs := []movie.Document{
		{
			ID: 1, Title: "Dune", ReleaseDate: date(2021, time.September, 15),
			Genres: []string{"Science Fiction", "Adventure"}, Cast: []string{"Timothée Chalamet", "Zendaya"},
			Director:     "Denis Villeneuve",
			PlotSynopsis: "Paul Atreides travels to the desert planet Arrakis to secure the spice.",
		},
		{
			ID: 2, Title: "Dune Part Two", ReleaseDate: date(2024, time.February, 27),
			Genres: []string{"Science Fiction", "Adventure"}, Cast: []string{"Timothée Chalamet", "Austin Butler"},
			Director:     "Denis Villeneuve",
			PlotSynopsis: "Paul unites with the Fremen to seek revenge against the conspirators.",
		},
		{
			ID: 3, Title: "Arrival", ReleaseDate: date(2016, time.November, 11),
			Genres: []string{"Science Fiction", "Drama"}, Cast: []string{"Amy Adams"},
			Director:     "Denis Villeneuve",
			PlotSynopsis: "A linguist works with the military to communicate with alien lifeforms.",
		},
		{
			ID: 4, Title: "The Godfather", ReleaseDate: date(1972, time.March, 14),
			Genres: []string{"Crime", "Drama"}, Cast: []string{"Marlon Brando", "Al Pacino"},
			Director:     "Francis Ford Coppola",
			PlotSynopsis: "The aging patriarch of an organized crime dynasty transfers control to his reluctant son.",
		},
		{
			ID: 5, Title: "Untitled Project",
			PlotSynopsis: "No release date is known yet.",
		},
	}
	for i := range docs {
		docs[i].Normalize()
	}
	return docs
}

func newIndex(t *testing.T) (*index.Manager, *Parser) {
	t.Helper()
	m, err := index.NewMemManager("movies")
	if err != nil {
		t.Fatal(err)
	}
	gen, stats, err := m.Build(context.Background(), corpus(), 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Failed != 0 {
		t.Fatalf("Build rejected %d docs: %v", stats.Failed, stats.Rejects)
	}
	m.Swap(gen)
	t.Cleanup(func() { m.Close() })

	p, err := New(m.Mapping())
	if err != nil {
		t.Fatal(err)
	}
	return m, p
}

func hitIDs(t *testing.T, m *index.Manager, q query.Query) []string {
	t.Helper()
	req := bleve.NewSearchRequestOptions(q, 100, 0, false)
	res, err := m.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	sort.Strings(ids)
	return ids
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFuzziness(t *testing.T) {
	cases := map[string]int{"a": 0, "up": 0, "dne": 1, "dune": 1, "arriv": 1, "arrival": 2, "été": 1}
	for term, want := range cases {
		if got := Fuzziness(term); got != want {
			t.Errorf("Fuzziness(%q) = %d, want %d", term, got, want)
		}
	}
}

func TestPhraseVariants(t *testing.T) {
	v := PhraseVariants([]string{"a", "b", "c"}, 2)
	// exact + 2 single gaps + 3 double gaps + 2 swaps
	if len(v) != 8 {
		t.Fatalf("variants = %d, want 8: %v", len(v), v)
	}
	if len(v[0]) != 3 || v[0][0][0] != "a" || v[0][2][0] != "c" {
		t.Errorf("first variant is not the exact phrase: %v", v[0])
	}
	if got := PhraseVariants([]string{"a", "b"}, 0); len(got) != 1 {
		t.Errorf("slop 0 variants = %d, want 1", len(got))
	}
	if got := PhraseVariants([]string{"a", "a"}, 2); len(got) != 3 {
		t.Errorf("repeated-term variants = %d, want 3 (no identity swap)", len(got))
	}
}

func TestParseEmptyMatchesAll(t *testing.T) {
	m, p := newIndex(t)
	q := p.Parse(movie.SearchRequest{})
	if _, ok := q.(*query.MatchAllQuery); !ok {
		t.Fatalf("empty request built %T, want *query.MatchAllQuery", q)
	}
	if got := hitIDs(t, m, q); len(got) != 5 {
		t.Errorf("match all = %v", got)
	}
}

func TestParseText(t *testing.T) {
	m, p := newIndex(t)
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"exact title token", "dune", []string{"1", "2"}},
		{"case insensitive", "DUNE", []string{"1", "2"}},
		{"fuzzy title", "duna", []string{"1", "2"}},
		{"plot token", "linguist", []string{"3"}},
		{"fuzzy plot", "lingiust", []string{"3"}},
		{"no tokens", "!!!", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hitIDs(t, m, p.Parse(movie.SearchRequest{Query: tt.text}))
			if !equal(got, tt.want) {
				t.Errorf("hits = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFilters(t *testing.T) {
	m, p := newIndex(t)
	tests := []struct {
		name string
		req  movie.SearchRequest
		want []string
	}{
		{"genre", movie.SearchRequest{Genres: []string{"Crime"}}, []string{"4"}},
		{"any genre", movie.SearchRequest{Genres: []string{"Crime", "Adventure"}}, []string{"1", "2", "4"}},
		{"genre is exact", movie.SearchRequest{Genres: []string{"crime"}}, []string{}},
		{"cast", movie.SearchRequest{Cast: []string{"Zendaya"}}, []string{"1"}},
		{"director substring", movie.SearchRequest{Director: "illen"}, []string{"1", "2", "3"}},
		{"director case sensitive", movie.SearchRequest{Director: "villeneuve"}, []string{}},
		{"director middle", movie.SearchRequest{Director: "Ford"}, []string{"4"}},
		{"from year", movie.SearchRequest{FromYear: 2020}, []string{"1", "2"}},
		{"to year", movie.SearchRequest{ToYear: 2016}, []string{"3", "4"}},
		{"single year", movie.SearchRequest{FromYear: 2016, ToYear: 2016}, []string{"3"}},
		{"text and filter", movie.SearchRequest{Query: "dune", FromYear: 2022}, []string{"2"}},
		{"filters combine", movie.SearchRequest{Genres: []string{"Drama"}, Director: "Denis"}, []string{"3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hitIDs(t, m, p.Parse(tt.req))
			if !equal(got, tt.want) {
				t.Errorf("hits = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPhraseSlopMatches(t *testing.T) {
	m, p := newIndex(t)

	run := func(tokens []string) (exact int, total int) {
		for i, terms := range PhraseVariants(tokens, PhraseSlop) {
			n := len(hitIDs(t, m, query.NewMultiPhraseQuery(terms, index.FieldPlot)))
			if i == 0 {
				exact = n
			}
			total += n
		}
		return exact, total
	}

	if exact, total := run([]string{"aging", "of"}); exact != 0 || total == 0 {
		t.Errorf("gapped phrase: exact %d total %d, want 0 and >0", exact, total)
	}
	if exact, total := run([]string{"patriarch", "aging"}); exact != 0 || total == 0 {
		t.Errorf("swapped phrase: exact %d total %d, want 0 and >0", exact, total)
	}
	if exact, _ := run([]string{"aging", "patriarch"}); exact != 1 {
		t.Errorf("exact phrase hits = %d, want 1", exact)
	}
	if got := p.Tokens("The Aging, Patriarch"); !equal(got, []string{"the", "aging", "patriarch"}) {
		t.Errorf("Tokens = %v", got)
	}
}

func TestPhraseOutranksLooseMatch(t *testing.T) {
	m, p := newIndex(t)
	res, err := m.Search(context.Background(), bleve.NewSearchRequest(p.Parse(movie.SearchRequest{Query: "dune part two"})))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hits) < 2 || res.Hits[0].ID != "2" {
		t.Fatalf("top hit = %v, want Dune Part Two first", res.Hits)
	}
}
