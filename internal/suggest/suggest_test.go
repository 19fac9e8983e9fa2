package suggest

import (
	"context"
	"reflect"
	"testing"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/index"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/config"
)

func newService(t *testing.T) *Service {
	t.Helper()
	docs := []movie.Document{
		{ID: 1, Title: "Dune", Genres: []string{"Science Fiction", "Adventure"}, Popularity: 7.9},
		{ID: 2, Title: "Dune Part Two", Genres: []string{"Science Fiction", "Adventure"}, Popularity: 8.3},
		{ID: 3, Title: "DUNE", Genres: []string{"Science Fiction"}, Popularity: 6.0},
		{ID: 4, Title: "Arrival", Genres: []string{"Drama"}, Popularity: 7.6},
	}
	for i := range docs {
		docs[i].Normalize()
		docs[i].Suggest.Weight = docs[i].Popularity
	}
	m, err := index.NewMemManager("movies")
	if err != nil {
		t.Fatal(err)
	}
	gen, _, err := m.Build(context.Background(), docs, 10)
	if err != nil {
		t.Fatal(err)
	}
	m.Swap(gen)
	t.Cleanup(func() { m.Close() })
	return New(m, nil, config.SuggestConfig{MaxSuggestions: 10, MaxGenres: 100})
}

func TestSuggest(t *testing.T) {
	s := newService(t)
	tests := []struct {
		prefix string
		want   []string
	}{
		{"dune", []string{"Dune", "Dune Part Two"}},
		{"Du", []string{"Du", "Dune Part Two", "Dune"}},
		{"dune  pa", []string{"dune pa", "Dune Part Two"}},
		{"two", []string{"two", "Dune Part Two"}},
		{"zzz", []string{"zzz"}},
		{"   ", []string{}},
	}
	for _, tt := range tests {
		got, err := s.Suggest(context.Background(), tt.prefix)
		if err != nil {
			t.Fatalf("Suggest(%q): %v", tt.prefix, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Suggest(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestArrange(t *testing.T) {
	got := Arrange("alien", []string{"Aliens", "Alien", "ALIEN", "Alien 3"}, 3)
	want := []string{"Alien", "Aliens", "Alien 3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Arrange = %q, want %q", got, want)
	}
	got = Arrange("ali", []string{"Aliens", "Alien"}, 2)
	if !reflect.DeepEqual(got, []string{"ali", "Aliens"}) {
		t.Errorf("Arrange without exact match = %q", got)
	}
}

func TestGenres(t *testing.T) {
	s := newService(t)
	got, err := s.Genres(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []GenreCount{{"Science Fiction", 3}, {"Adventure", 2}, {"Drama", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Genres = %+v, want %+v", got, want)
	}
	if names := Names(got); names[0] != "Science Fiction" || len(names) != 3 {
		t.Errorf("Names = %v", names)
	}

	s.cfg.MaxGenres = 1
	capped, err := s.genres(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(capped) != 1 || capped[0].Name != "Science Fiction" {
		t.Errorf("capped = %+v", capped)
	}
}
