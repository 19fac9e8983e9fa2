// Package api assembles the public HTTP surface of the movie search
// service: route table, middleware chain, and admin key management.
package api

import (
	"net/http"
	"time"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/analytics"
	apimw "github.com/iambluuu/CS419-MovieTextSearch/internal/api/middleware"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/feedback"
	ingesthandler "github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion/handler"
	searchhandler "github.com/iambluuu/CS419-MovieTextSearch/internal/searcher/handler"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/health"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/metrics"
	pkgmw "github.com/iambluuu/CS419-MovieTextSearch/pkg/middleware"
)

// Handlers groups the per-domain handlers mounted by NewRouter. Analytics,
// History and Keys may be nil, which leaves their routes unregistered.
type Handlers struct {
	Search    *searchhandler.Handler
	Feedback  *feedback.Handler
	Ingest    *ingesthandler.Handler
	Analytics *analytics.Handler
	History   http.HandlerFunc
	Keys      *KeyHandler
	Health    *health.Checker
}

// Options configures the middleware chain.
type Options struct {
	Validator         apimw.KeyValidator
	Limiter           apimw.Limiter
	FeedbackRateLimit int
	RequestTimeout    time.Duration
	Metrics           *metrics.Metrics
}

// NewRouter builds the full HTTP handler.
//
// Route table:
//
//	GET    /api/v1/movies/search               search (query parameters)
//	POST   /api/v1/movies/search               search (JSON body)
//	GET    /api/v1/movies/suggest              autocomplete
//	GET    /api/v1/movies/genres               genre facet
//	GET    /api/v1/movies/{id}                 one movie
//	POST   /api/v1/movies/feedback/{id}        feedback submit (rate limited per client)
//	GET    /api/v1/index/status                active generation
//	GET    /api/v1/analytics                   aggregated analytics
//	GET    /api/v1/analytics/history           persisted snapshots
//	GET    /api/v1/cache/stats                 cache counters
//	POST   /api/v1/cache/invalidate            flush cached suggestions   (API key)
//	POST   /api/v1/admin/feedback/reset        reset every counter         (API key)
//	POST   /api/v1/admin/feedback/reset/{id}   reset one counter           (API key)
//	POST   /api/v1/admin/ingest                run ingestion               (API key)
//	POST   /api/v1/admin/keys                  create API key              (API key)
//	GET    /api/v1/admin/keys                  list API keys               (API key)
//	DELETE /api/v1/admin/keys/{id}             revoke API key              (API key)
//	GET    /health/live, /health/ready         health
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → Recover → CORS → mux → [Timeout] [ClientRateLimit] [Auth → RateLimit] → handler
func NewRouter(h Handlers, opts Options) http.Handler {
	mux := http.NewServeMux()

	public := func(fn http.HandlerFunc) http.Handler {
		if opts.RequestTimeout > 0 {
			return pkgmw.Timeout(opts.RequestTimeout)(fn)
		}
		return fn
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		var chain http.Handler = fn
		if opts.Limiter != nil {
			chain = apimw.RateLimit(opts.Limiter)(chain)
		}
		return apimw.Auth(opts.Validator)(chain)
	}

	mux.Handle("GET /api/v1/movies/search", public(h.Search.Search))
	mux.Handle("POST /api/v1/movies/search", public(h.Search.Search))
	mux.Handle("GET /api/v1/movies/suggest", public(h.Search.Suggest))
	mux.Handle("GET /api/v1/movies/genres", public(h.Search.Genres))
	mux.Handle("GET /api/v1/movies/{id}", public(h.Search.Get))
	mux.Handle("GET /api/v1/index/status", public(h.Search.Status))
	mux.Handle("GET /api/v1/cache/stats", public(h.Search.CacheStats))

	var submit http.Handler = public(h.Feedback.Submit)
	if opts.Limiter != nil {
		submit = apimw.ClientRateLimit(opts.Limiter, opts.FeedbackRateLimit)(submit)
	}
	mux.Handle("POST /api/v1/movies/feedback/{id}", submit)

	if h.Analytics != nil {
		mux.Handle("GET /api/v1/analytics", public(h.Analytics.Stats))
	}
	if h.History != nil {
		mux.Handle("GET /api/v1/analytics/history", public(h.History))
	}

	mux.Handle("POST /api/v1/cache/invalidate", admin(h.Search.CacheInvalidate))
	mux.Handle("POST /api/v1/admin/feedback/reset", admin(h.Feedback.ResetAll))
	mux.Handle("POST /api/v1/admin/feedback/reset/{id}", admin(h.Feedback.ResetOne))
	mux.Handle("POST /api/v1/admin/ingest", admin(h.Ingest.Ingest))
	if h.Keys != nil {
		mux.Handle("POST /api/v1/admin/keys", admin(h.Keys.Create))
		mux.Handle("GET /api/v1/admin/keys", admin(h.Keys.List))
		mux.Handle("DELETE /api/v1/admin/keys/{id}", admin(h.Keys.Revoke))
	}

	mux.HandleFunc("GET /health/live", h.Health.LiveHandler())
	mux.HandleFunc("GET /health/ready", h.Health.ReadyHandler())

	var chain http.Handler = mux
	chain = apimw.CORS(apimw.DefaultCORSConfig())(chain)
	chain = pkgmw.Recover(chain)
	if opts.Metrics != nil {
		chain = pkgmw.Metrics(opts.Metrics)(chain)
	}
	chain = pkgmw.RequestID(chain)
	return chain
}
