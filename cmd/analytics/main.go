// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search, feedback and ingestion events from Kafka, aggregates
// them in memory, snapshots the aggregate to the SQL store on an interval,
// and serves GET /api/v1/analytics and /api/v1/analytics/history.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/analytics"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/analytics/aggregator"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/database"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/config"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/health"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/kafka"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/logger"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Kafka.Enabled {
		slog.Error("the analytics service consumes Kafka; set kafka.enabled")
		os.Exit(1)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// The consumer needs the aggregator's handler and the aggregator owns
	// the consumer, so the handler closes over a variable set afterwards.
	var agg *analytics.Aggregator
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, func(ctx context.Context, key, value []byte) error {
		return analytics.HandleEvent(agg)(ctx, key, value)
	})
	defer consumer.Close()
	agg = analytics.NewAggregator(consumer)

	go func() {
		if err := agg.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	snapshots := aggregator.NewStore(db)
	snapshots.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)

	checker := health.NewChecker()
	checker.Register("database", health.PingCheck(db, true))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", snapshots.HistoryHandler)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
