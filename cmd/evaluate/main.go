// Command evaluate scores a running search service against a labelled
// query set, and optionally load-tests it with the same queries.
//
// Usage:
//
//	evaluate -url http://localhost:8080 -cases testing/test_data.xlsx [-column query] [-load 30s]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/evaluate"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	casesPath := flag.String("cases", "test_data.xlsx", "query/title spreadsheet or CSV")
	column := flag.String("column", "query", "column holding the query text (query or keywords)")
	concurrency := flag.Int("concurrency", 4, "number of concurrent workers")
	minLength := flag.Int("min-length", evaluate.DefaultMinQueryLength, "skip queries shorter than this many characters")
	load := flag.Duration("load", 0, "also run a load test for this long")
	asJSON := flag.Bool("json", false, "print the reports as JSON")
	flag.Parse()

	cases, err := evaluate.LoadCases(*casesPath, *column)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load cases: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &evaluate.Client{
		BaseURL: *baseURL,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        *concurrency * 2,
				MaxIdleConnsPerHost: *concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	rep, err := evaluate.Evaluate(ctx, client, cases, evaluate.Options{
		Concurrency:    *concurrency,
		MinQueryLength: *minLength,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "evaluation aborted: %v\n", err)
		os.Exit(1)
	}

	var loadRep *evaluate.LoadReport
	if *load > 0 {
		queries := make([]string, 0, len(cases))
		for _, c := range cases {
			queries = append(queries, c.Query)
		}
		r := evaluate.Load(ctx, client, queries, *concurrency, *load)
		loadRep = &r
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{"quality": rep, "load": loadRep})
	} else {
		printQuality(rep)
		if loadRep != nil {
			printLoad(*loadRep, *load)
		}
	}

	if rep.Evaluated == 0 || rep.Failed == rep.Evaluated {
		fmt.Fprintln(os.Stderr, "WARNING: no query was answered. Is the service running?")
		os.Exit(1)
	}
}

func printQuality(rep evaluate.Report) {
	fmt.Println("=== Retrieval Quality ===")
	fmt.Printf("Evaluated:     %d\n", rep.Evaluated)
	fmt.Printf("Skipped:       %d\n", rep.Skipped)
	fmt.Printf("Failed:        %d\n", rep.Failed)
	fmt.Printf("MRR:           %.4f\n", rep.MRR)
	fmt.Printf("Precision@10:  %.4f\n", rep.Precision)
	fmt.Printf("Elapsed:       %s\n", rep.Elapsed.Round(time.Millisecond))

	buckets := make([]int, 0, len(rep.MRRByWords))
	for b := range rep.MRRByWords {
		buckets = append(buckets, b)
	}
	slices.Sort(buckets)
	fmt.Println()
	fmt.Println("=== MRR by query length (words) ===")
	for _, b := range buckets {
		label := fmt.Sprintf("%d", b)
		if b == 5 {
			label = "5+"
		}
		fmt.Printf("  %-3s %.4f\n", label, rep.MRRByWords[b])
	}

	if len(rep.Low) > 0 {
		fmt.Println()
		fmt.Println("=== Low reciprocal rank ===")
		for _, o := range rep.Low {
			fmt.Printf("  %.3f  %q\n", o.ReciprocalRank, o.Case.Title)
		}
	}
}

func printLoad(rep evaluate.LoadReport, duration time.Duration) {
	fmt.Println()
	fmt.Printf("=== Load (%s) ===\n", duration)
	fmt.Printf("Total Requests:  %d\n", rep.Total)
	fmt.Printf("Successful:      %d\n", rep.Success)
	fmt.Printf("Errors:          %d\n", rep.Errors)
	fmt.Printf("Error Rate:      %.2f%%\n", rep.ErrorRate*100)
	fmt.Printf("Requests/sec:    %.2f\n", rep.RPS)
	fmt.Println()
	fmt.Printf("Min:    %s\n", rep.Min)
	fmt.Printf("Avg:    %s\n", rep.Avg)
	fmt.Printf("P50:    %s\n", rep.P50)
	fmt.Printf("P90:    %s\n", rep.P90)
	fmt.Printf("P95:    %s\n", rep.P95)
	fmt.Printf("P99:    %s\n", rep.P99)
	fmt.Printf("Max:    %s\n", rep.Max)
	fmt.Printf("StdDev: %s\n", rep.StdDev)

	codes := make([]int, 0, len(rep.StatusCodes))
	for code := range rep.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	fmt.Println()
	fmt.Println("=== Status Codes ===")
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, rep.StatusCodes[code])
	}
}
