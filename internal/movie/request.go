package movie

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Sort fields accepted by SearchRequest.SortBy.
const (
	SortPopularity  = "popularity"
	SortReleaseDate = "release_date"
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Paging defaults and hard bounds. The bounds keep (Page-1)*Size far from
// integer overflow whatever the configured page size limit.
const (
	DefaultPage = 1
	DefaultSize = 10
	MaxPage     = 1_000_000
	MaxSize     = 10_000
)

// SearchRequest is the structured search input. Zero values mean absent.
type SearchRequest struct {
	Query    string   `json:"query"`
	Genres   []string `json:"genres"`
	Cast     []string `json:"cast"`
	Director string   `json:"director"`
	FromYear int      `json:"from_year"`
	ToYear   int      `json:"to_year"`
	SortBy   string   `json:"sort_by"`
	Order    string   `json:"order"`
	Page     int      `json:"page"`
	Size     int      `json:"size"`
}

// IsSortAllowed reports whether field is on the sort allow-list.
func IsSortAllowed(field string) bool {
	return field == SortPopularity || field == SortReleaseDate
}

// Normalize applies defaults and drops malformed values instead of
// rejecting them. A positive maxSize bounds Size.
func (r *SearchRequest) Normalize(maxSize int) {
	r.Query = strings.TrimSpace(r.Query)
	r.Director = strings.TrimSpace(r.Director)
	r.Genres = CleanList(r.Genres)
	r.Cast = CleanList(r.Cast)

	if r.FromYear < 0 || r.FromYear > 9999 {
		r.FromYear = 0
	}
	if r.ToYear < 0 || r.ToYear > 9999 {
		r.ToYear = 0
	}

	r.SortBy = strings.ToLower(strings.TrimSpace(r.SortBy))
	if !IsSortAllowed(r.SortBy) {
		r.SortBy = ""
	}
	r.Order = strings.ToLower(strings.TrimSpace(r.Order))
	if r.Order != OrderAsc {
		r.Order = OrderDesc
	}

	if r.Page <= 0 {
		r.Page = DefaultPage
	}
	if r.Page > MaxPage {
		r.Page = MaxPage
	}
	if r.Size <= 0 {
		r.Size = DefaultSize
	}
	if maxSize <= 0 || maxSize > MaxSize {
		maxSize = MaxSize
	}
	if r.Size > maxSize {
		r.Size = maxSize
	}
}

// Offset is the zero-based index of the first result on the page. It is
// only meaningful after Normalize, but never negative.
func (r SearchRequest) Offset() int {
	if r.Page <= 1 || r.Size <= 0 {
		return 0
	}
	return (min(r.Page, MaxPage) - 1) * min(r.Size, MaxSize)
}

// HasFilters reports whether any structured filter is set.
func (r SearchRequest) HasFilters() bool {
	return len(r.Genres) > 0 || len(r.Cast) > 0 || r.Director != "" || r.FromYear > 0 || r.ToYear > 0
}

// IsEmpty reports whether the request carries neither text nor filters.
func (r SearchRequest) IsEmpty() bool {
	return r.Query == "" && !r.HasFilters()
}

// UnmarshalJSON decodes a request body leniently: numbers may arrive as
// strings, lists may arrive as a single comma separated string, and values
// of the wrong type are ignored.
func (r *SearchRequest) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = SearchRequest{
		Query:    rawString(raw["query"]),
		Genres:   rawList(raw["genres"]),
		Cast:     rawList(raw["cast"]),
		Director: rawString(raw["director"]),
		FromYear: rawInt(raw["from_year"]),
		ToYear:   rawInt(raw["to_year"]),
		SortBy:   rawString(raw["sort_by"]),
		Order:    rawString(raw["order"]),
		Page:     rawInt(raw["page"]),
		Size:     rawInt(raw["size"]),
	}
	return nil
}

// ParseQuery builds a request from URL query parameters. List parameters
// may be repeated or comma separated.
func ParseQuery(v url.Values) SearchRequest {
	return SearchRequest{
		Query:    v.Get("query"),
		Genres:   splitValues(v["genres"]),
		Cast:     splitValues(v["cast"]),
		Director: v.Get("director"),
		FromYear: lenientInt(v.Get("from_year")),
		ToYear:   lenientInt(v.Get("to_year")),
		SortBy:   v.Get("sort_by"),
		Order:    v.Get("order"),
		Page:     lenientInt(v.Get("page")),
		Size:     lenientInt(v.Get("size")),
	}
}

func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Split(v, ",")...)
	}
	return CleanList(out)
}

func lenientInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func rawString(m json.RawMessage) string {
	var s string
	if len(m) == 0 || json.Unmarshal(m, &s) != nil {
		return ""
	}
	return s
}

func rawInt(m json.RawMessage) int {
	if len(m) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(m, &f); err == nil {
		return int(f)
	}
	return lenientInt(rawString(m))
}

func rawList(m json.RawMessage) []string {
	if len(m) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(m, &list); err == nil {
		return CleanList(list)
	}
	if s := rawString(m); s != "" {
		return splitValues([]string{s})
	}
	return nil
}

// SearchResult is the response of a search.
type SearchResult struct {
	Total   uint64     `json:"total"`
	Results []Document `json:"results"`
	Page    int        `json:"page"`
	Size    int        `json:"size"`
}
