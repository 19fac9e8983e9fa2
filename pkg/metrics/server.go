package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Server serves the scrape endpoint on a port of its own, apart from the
// API listener.
type Server struct {
	srv      *http.Server
	gatherer prometheus.Gatherer
}

// NewServer exposes gatherer at /metrics on port. A nil gatherer serves
// the default registry, which New registers with.
func NewServer(port int, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{gatherer: gatherer}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler(gatherer))
	mux.HandleFunc("GET /{$}", s.index)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// Handler is the server's routing table.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start listens in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// runtimeFamilies prefix the collectors the client library registers on
// its own.
var runtimeFamilies = []string{"go_", "process_", "promhttp_"}

// index lists the service's own families currently exported.
func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	families, err := s.gatherer.Gather()
	if err != nil {
		http.Error(w, "gathering metrics: "+err.Error(), http.StatusInternalServerError)
		return
	}
	names := make([]string, 0, len(families))
	for _, mf := range families {
		if !isRuntimeFamily(mf.GetName()) {
			names = append(names, mf.GetName())
		}
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "movie search metrics at /metrics\n\n%s\n", strings.Join(names, "\n"))
}

func isRuntimeFamily(name string) bool {
	for _, p := range runtimeFamilies {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
