package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.IngestRunsTotal.WithLabelValues("noop").Inc()
	m.IngestRunsTotal.WithLabelValues("noop").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, mf := range families {
		if mf.GetName() != "movie_ingest_runs_total" {
			continue
		}
		found = true
		if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 2 {
			t.Errorf("noop runs = %v, want 2", got)
		}
	}
	if !found {
		t.Fatal("movie_ingest_runs_total not gathered")
	}
}

func TestServerExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := NewWithRegistry(reg)
	m.SearchQueriesTotal.WithLabelValues("results").Inc()

	srv := httptest.NewServer(NewServer(0, reg).Handler())
	defer srv.Close()

	get := func(path string) string {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s = %d", path, resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	if body := get("/metrics"); !strings.Contains(body, `movie_search_queries_total{result_type="results"} 1`) {
		t.Errorf("scrape missing search counter:\n%s", body)
	}
	index := get("/")
	if !strings.Contains(index, "movie_search_queries_total") || strings.Contains(index, "go_goroutines") {
		t.Errorf("index = %q", index)
	}
}
