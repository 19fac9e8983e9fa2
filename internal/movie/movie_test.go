package movie

import (
	"encoding/json"
	"net/url"
	"reflect"
	"testing"
	"time"
)

func TestCleanList(t *testing.T) {
	got := CleanList([]string{" Drama", "", "Action ", "Drama", "  "})
	want := []string{"Drama", "Action"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CleanList = %v, want %v", got, want)
	}
	if got := CleanList(nil); got == nil || len(got) != 0 {
		t.Errorf("CleanList(nil) = %#v, want empty non-nil", got)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList("Timothée Chalamet, Zendaya,,Rebecca Ferguson, Zendaya", ",")
	want := []string{"Timothée Chalamet", "Zendaya", "Rebecca Ferguson"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitList = %v, want %v", got, want)
	}
	if got := SplitList("   ", ","); len(got) != 0 {
		t.Errorf("SplitList(blank) = %v", got)
	}
}

func TestSuggestInputs(t *testing.T) {
	got := SuggestInputs("Dune: Part Two")
	want := []string{"dune", "part", "two", "dune: part two"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SuggestInputs = %v, want %v", got, want)
	}
	if got := SuggestInputs("Dune"); !reflect.DeepEqual(got, []string{"dune"}) {
		t.Errorf("SuggestInputs(single) = %v", got)
	}
}

func TestDocumentJSONShape(t *testing.T) {
	d := Document{ID: 1, Title: " Dune "}
	d.Normalize()
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["release_date"] != nil {
		t.Errorf("release_date = %v, want null", m["release_date"])
	}
	for _, key := range []string{"genres", "cast", "production_companies"} {
		if list, ok := m[key].([]any); !ok || len(list) != 0 {
			t.Errorf("%s = %#v, want []", key, m[key])
		}
	}
	if m["feedback"].(float64) != 0 {
		t.Errorf("feedback = %v", m["feedback"])
	}

	rd := NewDate(2021, time.September, 15)
	d.ReleaseDate = &rd
	b, _ = json.Marshal(d)
	var back Document
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back.ReleaseDate == nil || back.ReleaseDate.String() != "2021-09-15" {
		t.Errorf("release_date round trip = %v", back.ReleaseDate)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2021-09-15", "2021-09-15", false},
		{"2021-09-15 00:00:00", "2021-09-15", false},
		{"9/15/2021", "2021-09-15", false},
		{"", "", false},
		{"next year", "", true},
	}
	for _, tt := range tests {
		d, err := ParseDate(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDate(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDate(%q): %v", tt.in, err)
			continue
		}
		got := ""
		if d != nil {
			got = d.String()
		}
		if got != tt.want {
			t.Errorf("ParseDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDefaults(t *testing.T) {
	var r SearchRequest
	r.Normalize(100)
	if r.Page != 1 || r.Size != 10 || r.Offset() != 0 {
		t.Errorf("defaults = page %d size %d offset %d", r.Page, r.Size, r.Offset())
	}
	if r.Order != OrderDesc || r.SortBy != "" {
		t.Errorf("sort = %q %q", r.SortBy, r.Order)
	}
	if !r.IsEmpty() || r.HasFilters() {
		t.Error("empty request not reported empty")
	}
	if r := (SearchRequest{ToYear: 1999}); r.IsEmpty() || !r.HasFilters() {
		t.Error("year filter not reported")
	}
}

func TestNormalizeMalformed(t *testing.T) {
	r := SearchRequest{
		Query:  "  dune ",
		SortBy: "budget",
		Order:  "sideways",
		Page:   -3,
		Size:   5000,
		Genres: []string{"", "Sci-Fi"},
	}
	r.Normalize(100)
	if r.Query != "dune" || r.SortBy != "" || r.Order != OrderDesc {
		t.Errorf("normalized = %+v", r)
	}
	if r.Page != 1 || r.Size != 100 {
		t.Errorf("paging = %d/%d", r.Page, r.Size)
	}
	if !reflect.DeepEqual(r.Genres, []string{"Sci-Fi"}) {
		t.Errorf("genres = %v", r.Genres)
	}

	r = SearchRequest{Page: 3, Size: 20, SortBy: "Release_Date", Order: "ASC"}
	r.Normalize(100)
	if r.Offset() != 40 || r.SortBy != SortReleaseDate || r.Order != OrderAsc {
		t.Errorf("normalized = %+v offset %d", r, r.Offset())
	}
}

func TestNormalizeBoundsHugePage(t *testing.T) {
	r := SearchRequest{Page: 1 << 62, Size: 1 << 40}
	r.Normalize(0)
	if r.Page != MaxPage || r.Size != MaxSize {
		t.Fatalf("paging = %d/%d, want %d/%d", r.Page, r.Size, MaxPage, MaxSize)
	}
	if off := r.Offset(); off != (MaxPage-1)*MaxSize {
		t.Errorf("offset = %d", off)
	}

	// Un-normalized requests never report a negative offset.
	if off := (SearchRequest{Page: -5, Size: 10}).Offset(); off != 0 {
		t.Errorf("negative page offset = %d", off)
	}
}

func TestUnmarshalLenient(t *testing.T) {
	body := `{"query":"dune","genres":"Action, Drama","cast":["Zendaya"],"from_year":"19x9","to_year":"2024","page":2,"size":"abc","order":7}`
	var r SearchRequest
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		t.Fatal(err)
	}
	if r.Query != "dune" || r.FromYear != 0 || r.ToYear != 2024 || r.Page != 2 || r.Size != 0 || r.Order != "" {
		t.Errorf("decoded = %+v", r)
	}
	if !reflect.DeepEqual(r.Genres, []string{"Action", "Drama"}) || !reflect.DeepEqual(r.Cast, []string{"Zendaya"}) {
		t.Errorf("lists = %v %v", r.Genres, r.Cast)
	}
}

func TestParseQuery(t *testing.T) {
	v := url.Values{
		"query":     {"star wars"},
		"genres":    {"Action", "Adventure,Sci-Fi"},
		"director":  {"Lucas"},
		"from_year": {"1977"},
		"to_year":   {"oops"},
		"page":      {"2"},
	}
	r := ParseQuery(v)
	if r.Query != "star wars" || r.Director != "Lucas" || r.FromYear != 1977 || r.ToYear != 0 || r.Page != 2 {
		t.Errorf("ParseQuery = %+v", r)
	}
	if !reflect.DeepEqual(r.Genres, []string{"Action", "Adventure", "Sci-Fi"}) {
		t.Errorf("genres = %v", r.Genres)
	}
}
