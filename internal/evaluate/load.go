package evaluate

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LoadStats accumulates the outcome of a load run.
type LoadStats struct {
	total     atomic.Int64
	success   atomic.Int64
	errors    atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newLoadStats() *LoadStats {
	return &LoadStats{
		latencies: make([]time.Duration, 0, 100000),
		codes:     make(map[int]int64),
	}
}

// Record adds one request outcome. A transport error has status 0.
func (s *LoadStats) Record(d time.Duration, status int, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[status]++
	s.mu.Unlock()
}

// LoadReport summarizes a load run.
type LoadReport struct {
	Total       int64         `json:"total"`
	Success     int64         `json:"success"`
	Errors      int64         `json:"errors"`
	ErrorRate   float64       `json:"error_rate"`
	RPS         float64       `json:"rps"`
	Min         time.Duration `json:"min_ns"`
	Avg         time.Duration `json:"avg_ns"`
	P50         time.Duration `json:"p50_ns"`
	P90         time.Duration `json:"p90_ns"`
	P95         time.Duration `json:"p95_ns"`
	P99         time.Duration `json:"p99_ns"`
	Max         time.Duration `json:"max_ns"`
	StdDev      time.Duration `json:"stddev_ns"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

// Report freezes the stats gathered over elapsed.
func (s *LoadStats) Report(elapsed time.Duration) LoadReport {
	rep := LoadReport{
		Total:   s.total.Load(),
		Success: s.success.Load(),
		Errors:  s.errors.Load(),
	}
	if rep.Total > 0 {
		rep.ErrorRate = float64(rep.Errors) / float64(rep.Total)
		if elapsed > 0 {
			rep.RPS = float64(rep.Total) / elapsed.Seconds()
		}
	}

	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	rep.StatusCodes = make(map[int]int64, len(s.codes))
	for code, n := range s.codes {
		rep.StatusCodes[code] = n
	}
	s.mu.Unlock()

	if len(latencies) == 0 {
		return rep
	}
	slices.Sort(latencies)
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	rep.Avg = sum / time.Duration(len(latencies))
	rep.Min = latencies[0]
	rep.Max = latencies[len(latencies)-1]
	rep.P50 = percentile(latencies, 50)
	rep.P90 = percentile(latencies, 90)
	rep.P95 = percentile(latencies, 95)
	rep.P99 = percentile(latencies, 99)

	var sumSquared float64
	for _, l := range latencies {
		diff := float64(l) - float64(rep.Avg)
		sumSquared += diff * diff
	}
	rep.StdDev = time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
	return rep
}

// Load cycles through queries with concurrency workers until duration
// elapses or ctx is done. Each worker starts at a different query.
func Load(ctx context.Context, client *Client, queries []string, concurrency int, duration time.Duration) LoadReport {
	stats := newLoadStats()
	if len(queries) == 0 {
		return stats.Report(0)
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	base := strings.TrimRight(client.BaseURL, "/")

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for ctx.Err() == nil {
				query := queries[next%len(queries)]
				next++

				req, err := http.NewRequestWithContext(ctx, http.MethodGet,
					base+"/api/v1/movies/search?query="+url.QueryEscape(query), nil)
				if err != nil {
					stats.Record(0, 0, err)
					continue
				}
				t0 := time.Now()
				resp, err := client.HTTP.Do(req)
				d := time.Since(t0)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.Record(d, 0, err)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.Record(d, resp.StatusCode, nil)
			}
		}(w)
	}
	wg.Wait()
	return stats.Report(time.Since(start))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
