package evaluate

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestMetrics(t *testing.T) {
	titles := []string{"The Matrix Reloaded", "The Matrix", "Heat"}

	if rr := ReciprocalRank(titles, "The Matrix"); rr != 0.5 {
		t.Errorf("rr = %v, want 0.5", rr)
	}
	if rr := ReciprocalRank(titles, "Alien"); rr != 0 {
		t.Errorf("absent rr = %v", rr)
	}
	// "The Matrix" is contained in "The Matrix Reloaded".
	if p := PrecisionAt(titles, "the matrix", 10); p != 0.2 {
		t.Errorf("p@10 = %v, want 0.2", p)
	}
	if !IsRelevant("HEAT", "heat (1995)") || IsRelevant("Heat", "Alien") {
		t.Error("IsRelevant")
	}
}

func searchServer(t *testing.T, results map[string][]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/movies/search" {
			http.NotFound(w, r)
			return
		}
		type hit struct {
			Title string `json:"title"`
		}
		hits := []hit{}
		for _, title := range results[r.URL.Query().Get("query")] {
			hits = append(hits, hit{Title: title})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": hits})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEvaluate(t *testing.T) {
	srv := searchServer(t, map[string][]string{
		"a thief and a detective": {"Heat", "Ronin"},
		"a hacker learns the truth": {"Hackers", "The Matrix"},
	})
	client := &Client{BaseURL: srv.URL, HTTP: srv.Client()}

	rep, err := Evaluate(context.Background(), client, []Case{
		{Query: "a thief and a detective", Title: "Heat"},
		{Query: "a hacker learns the truth", Title: "The Matrix"},
		{Query: "short", Title: "Alien"},
	}, Options{Concurrency: 2})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Evaluated != 2 || rep.Skipped != 1 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if math.Abs(rep.MRR-0.75) > 1e-9 {
		t.Errorf("mrr = %v, want 0.75", rep.MRR)
	}
	if math.Abs(rep.Precision-0.1) > 1e-9 {
		t.Errorf("p@10 = %v, want 0.1", rep.Precision)
	}
	if len(rep.Low) != 0 {
		t.Errorf("low = %v", rep.Low)
	}
	if rep.MRRByWords[5] != 0.75 {
		t.Errorf("by words = %v", rep.MRRByWords)
	}
}

func TestLoadCasesCSVAndWorkbook(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "cases.csv")
	if err := os.WriteFile(csvPath, []byte("\ufeffQuery,keywords,Title\nfirst query text,k,Heat\n,,Empty\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cases, err := LoadCases(csvPath, "query")
	if err != nil {
		t.Fatal(err)
	}
	if len(cases) != 1 || cases[0] != (Case{Query: "first query text", Title: "Heat"}) {
		t.Errorf("csv cases = %+v", cases)
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetSheetRow(sheet, "A1", &[]any{"query", "keywords", "title"})
	_ = f.SetSheetRow(sheet, "A2", &[]any{"long query here", "bank robbers", "Heat"})
	xlsxPath := filepath.Join(dir, "cases.xlsx")
	if err := f.SaveAs(xlsxPath); err != nil {
		t.Fatal(err)
	}
	cases, err = LoadCases(xlsxPath, "keywords")
	if err != nil {
		t.Fatal(err)
	}
	if len(cases) != 1 || cases[0].Query != "bank robbers" {
		t.Errorf("xlsx cases = %+v", cases)
	}

	if _, err := LoadCases(csvPath, "missing"); err == nil {
		t.Error("missing column accepted")
	}
}

func TestLoad(t *testing.T) {
	srv := searchServer(t, nil)
	client := &Client{BaseURL: srv.URL, HTTP: srv.Client()}
	rep := Load(context.Background(), client, []string{"heat"}, 2, 200*time.Millisecond)
	if rep.Total == 0 || rep.Success == 0 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.StatusCodes[http.StatusOK] != rep.Success {
		t.Errorf("status codes = %v success = %d", rep.StatusCodes, rep.Success)
	}
	if rep.Min > rep.P50 || rep.P50 > rep.Max {
		t.Errorf("latency order min=%v p50=%v max=%v", rep.Min, rep.P50, rep.Max)
	}
}
