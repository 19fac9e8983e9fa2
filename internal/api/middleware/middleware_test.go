package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/auth/apikey"
)

type fakeValidator map[string]*apikey.KeyInfo

func (f fakeValidator) Validate(_ context.Context, raw string) (*apikey.KeyInfo, error) {
	if info, ok := f[raw]; ok {
		return info, nil
	}
	return nil, apikey.ErrInvalidKey
}

type countLimiter struct {
	max  int
	seen map[string]int
}

func (c *countLimiter) Allow(key string, _ int) bool {
	c.seen[key]++
	return c.seen[key] <= c.max
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if info := GetKeyInfo(r.Context()); info != nil {
		w.Header().Set("X-Key-Name", info.Name)
	}
	w.WriteHeader(http.StatusOK)
})

func TestAuth(t *testing.T) {
	h := Auth(fakeValidator{"good": {ID: "k1", Name: "ops"}})(ok)

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK},
		{"header", func(r *http.Request) { r.Header.Set("X-API-Key", "good") }, http.StatusOK},
		{"query", func(r *http.Request) { r.URL.RawQuery = "api_key=good" }, http.StatusOK},
		{"invalid", func(r *http.Request) { r.Header.Set("X-API-Key", "bad") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/ingest", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusOK && rec.Header().Get("X-Key-Name") != "ops" {
				t.Error("key info not stored in context")
			}
			if tt.status != http.StatusOK && !strings.Contains(rec.Body.String(), `"status":"error"`) {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestClientRateLimit(t *testing.T) {
	lim := &countLimiter{max: 2, seen: map[string]int{}}
	h := ClientRateLimit(lim, 2)(ok)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/movies/feedback/1", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
	if lim.seen["client:10.0.0.1"] != 3 {
		t.Errorf("limiter keys = %v", lim.seen)
	}
}

func TestRateLimitUsesKeyInfo(t *testing.T) {
	lim := &countLimiter{max: 1, seen: map[string]int{}}
	h := Auth(fakeValidator{"good": {ID: "k1", RateLimit: 1}})(RateLimit(lim)(ok))
	for i, want := range []int{200, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set("X-API-Key", "good")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("request %d status = %d, want %d", i, rec.Code, want)
		}
	}
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	if got := ClientAddr(req); got != "192.0.2.7" {
		t.Errorf("remote = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientAddr(req); got != "203.0.113.9" {
		t.Errorf("forwarded = %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS(DefaultCORSConfig())(ok)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/movies/search", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
