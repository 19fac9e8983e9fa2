// Command moviesearch runs the movie search service: full-text search with
// feedback-boosted ranking, autocomplete, the genre facet, feedback
// collection and the dataset ingestion triggers.
//
// Usage:
//
//	go run ./cmd/moviesearch [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/analytics"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/analytics/aggregator"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/analytics/collector"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/api"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/auth/apikey"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/auth/ratelimit"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/feedback"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/index"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion"
	ingesthandler "github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion/handler"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion/mirror"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion/publisher"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/searcher/cache"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/searcher/executor"
	searchhandler "github.com/iambluuu/CS419-MovieTextSearch/internal/searcher/handler"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/store"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/suggest"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/config"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/database"
	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/health"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/kafka"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/logger"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/metrics"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/middleware"
	pkgmongo "github.com/iambluuu/CS419-MovieTextSearch/pkg/mongo"
	pkgredis "github.com/iambluuu/CS419-MovieTextSearch/pkg/redis"
)

// tracker receives analytics events; nil when analytics is disabled.
type tracker interface {
	Track(event any)
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting movie search service", "port", cfg.Server.Port, "index", cfg.Index.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsServer := metrics.NewServer(cfg.Metrics.Port, nil)
		metricsServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	catalog := store.New(db)

	idx, err := index.NewManager(cfg.Index.DataDir, cfg.Index.Name)
	if err != nil {
		slog.Error("failed to create index manager", "error", err)
		os.Exit(1)
	}
	defer idx.Close()
	openActiveGeneration(ctx, idx, catalog)

	checker := health.NewChecker()
	checker.Register("database", health.PingCheck(db, true))
	checker.Register("index", health.PingCheck(idx, true))

	// Redis backs the suggestion cache and the cross-process ingestion lock.
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, caching disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer redisClient.Close()
			checker.Register("redis", health.PingCheck(redisClient, false))
			slog.Info("redis connected", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	var backend cache.Backend
	if redisClient != nil {
		backend = redisClient
	}
	queryCache := cache.New(backend, cfg.Redis.CacheTTL, m)

	events, closeAnalytics, analyticsH, history := setupAnalytics(ctx, cfg, db)
	defer closeAnalytics()

	exec, err := executor.New(idx, catalog, cfg.Search, m)
	if err != nil {
		slog.Error("failed to create query executor", "error", err)
		os.Exit(1)
	}
	suggester := suggest.New(idx, queryCache, cfg.Suggest)

	fb := feedback.New(catalog, cfg.Index.Name, cfg.Feedback)
	fb.SetMetrics(m)

	pipe := ingestion.New(idx, catalog, cfg.Ingest)
	pipe.SetCache(queryCache)
	pipe.SetMetrics(m)
	if redisClient != nil {
		pipe.SetLocker(ingestion.NewRedisLocker(redisClient, cfg.Ingest.LockTTL))
	}
	if events != nil {
		fb.SetTracker(events)
		pipe.SetTracker(events)
	}

	var pub *publisher.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		pub = publisher.New(producer, "moviesearch-"+middleware.NewRequestID())
		pipe.SetAnnouncer(pub)

		reloads := kafka.NewBroadcastConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, reloadHandler(idx, queryCache, pub.Origin()))
		defer reloads.Close()
		go func() {
			if err := reloads.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("index reload consumer stopped", "error", err)
			}
		}()
	}

	if cfg.Mongo.Enabled {
		mc, err := pkgmongo.Connect(ctx, cfg.Mongo)
		if err != nil {
			slog.Warn("mongodb unavailable, catalog mirror disabled", "error", err)
		} else {
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = mc.Close(closeCtx)
			}()
			mir := mirror.New(mc.Collection())
			if err := mir.EnsureIndexes(ctx); err != nil {
				slog.Warn("creating mirror indexes", "error", err)
			}
			pipe.SetMirror(mir)
			checker.Register("mongo", health.PingCheck(mc, false))
		}
	}

	if cfg.Ingest.Source != "" && (cfg.Ingest.OnStartup || cfg.Ingest.Interval > 0 || cfg.Ingest.Watch) {
		w := ingestion.NewWatcher(pipe, cfg.Ingest.Debounce, cfg.Ingest.Interval)
		if cfg.Ingest.OnStartup {
			w.Trigger()
		}
		go func() {
			if err := w.Run(ctx, cfg.Ingest.Watch); err != nil {
				slog.Error("dataset watcher stopped", "error", err)
			}
		}()
	}

	validator := apikey.NewValidator(db)
	limiter := ratelimit.New(time.Minute)
	defer limiter.Close()

	router := api.NewRouter(api.Handlers{
		Search:    searchhandler.New(exec, suggester, queryCache, events),
		Feedback:  feedback.NewHandler(fb),
		Ingest:    ingesthandler.New(pipe),
		Analytics: analyticsH,
		History:   history,
		Keys:      api.NewKeyHandler(validator),
		Health:    checker,
	}, api.Options{
		Validator:         validator,
		Limiter:           limiter,
		FeedbackRateLimit: cfg.Feedback.RateLimit,
		RequestTimeout:    cfg.Server.RequestTimeout,
		Metrics:           m,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("movie search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("movie search service stopped")
}

// openActiveGeneration serves the generation recorded by the last
// successful ingestion, if any.
func openActiveGeneration(ctx context.Context, idx *index.Manager, catalog *store.Store) {
	rec, err := catalog.Generation(ctx, idx.Name())
	if errors.Is(err, apperrors.ErrIndexNotFound) {
		slog.Info("no indexed dataset yet", "index", idx.Name())
		return
	}
	if err != nil {
		slog.Error("loading active generation", "error", err)
		return
	}
	if err := idx.Open(rec.Generation, rec.Path); err != nil {
		slog.Error("opening active generation", "generation", rec.Generation, "path", rec.Path, "error", err)
		return
	}
	slog.Info("index generation loaded", "generation", rec.Generation, "docs", rec.DocCount)
}

// reloadHandler opens generations built by other processes and drops the
// cached suggestions that described the previous one.
func reloadHandler(idx *index.Manager, c *cache.QueryCache, origin string) kafka.MessageHandler {
	log := slog.Default().With("component", "index-reload")
	return func(ctx context.Context, key, value []byte) error {
		ev, err := publisher.Decode(value)
		if err != nil {
			log.Warn("ignoring malformed index event", "key", string(key), "error", err)
			return nil
		}
		if ev.Origin == origin || ev.Index != idx.Name() {
			return nil
		}
		if err := idx.Open(ev.Generation, ev.Path); err != nil {
			log.Error("reloading generation", "generation", ev.Generation, "error", err)
			return nil
		}
		if _, err := c.Invalidate(ctx); err != nil {
			log.Warn("invalidating cache after reload", "error", err)
		}
		log.Info("generation reloaded", "generation", ev.Generation, "docs", ev.DocCount, "origin", ev.Origin)
		return nil
	}
}

// setupAnalytics returns the event tracker and the analytics routes. With
// Kafka, events are batched to the analytics topic for cmd/analytics to
// aggregate; without it, they are aggregated in-process and snapshotted.
func setupAnalytics(ctx context.Context, cfg *config.Config, db *database.DB) (tracker, func(), *analytics.Handler, http.HandlerFunc) {
	if !cfg.Analytics.Enabled {
		return nil, func() {}, nil, nil
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		batch := collector.NewBatchCollector(producer, 100, 5*time.Second)
		batch.Start(ctx)
		c := analytics.NewCollector(batch, cfg.Analytics.BufferSize)
		c.Start(ctx)
		slog.Info("analytics events published to kafka", "topic", cfg.Kafka.Topics.AnalyticsEvents)
		return c, func() {
			c.Close()
			batch.Close()
			producer.Close()
		}, nil, nil
	}

	agg := analytics.NewAggregator(nil)
	c := analytics.NewCollector(agg, cfg.Analytics.BufferSize)
	c.Start(ctx)
	snapshots := aggregator.NewStore(db)
	snapshots.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
	slog.Info("analytics aggregated in-process", "snapshot_interval", cfg.Analytics.SnapshotInterval)
	return c, c.Close, analytics.NewHandler(agg), snapshots.HistoryHandler
}
