// Command ingest runs one dataset ingestion and exits, for cron and CI.
//
// The generation it builds is recorded in the database and announced on
// Kafka; running servers pick it up from there. An unchanged dataset is a
// no-op unless -force is given.
//
// Usage:
//
//	go run ./cmd/ingest [-config configs/development.yaml] [-source data/movies.csv] [-index movies] [-format merged] [-force]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/index"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion/mirror"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion/publisher"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion/validator"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/searcher/cache"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/store"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/config"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/database"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/kafka"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/logger"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/middleware"
	pkgmongo "github.com/iambluuu/CS419-MovieTextSearch/pkg/mongo"
	pkgredis "github.com/iambluuu/CS419-MovieTextSearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	source := flag.String("source", "", "dataset file (defaults to ingest.source)")
	indexName := flag.String("index", "", "index name (defaults to index.name)")
	format := flag.String("format", "", "dataset layout: tmdb or merged (defaults to ingest.format)")
	force := flag.Bool("force", false, "ingest even if the dataset fingerprint is unchanged")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := validator.ValidateRequest(*source, *indexName, *format); err != nil {
		fmt.Fprintf(os.Stderr, "invalid arguments: %v\n", err)
		os.Exit(2)
	}
	if *indexName == "" {
		*indexName = cfg.Index.Name
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	idx, err := index.NewManager(cfg.Index.DataDir, *indexName)
	if err != nil {
		slog.Error("failed to create index manager", "error", err)
		os.Exit(1)
	}
	defer idx.Close()

	pipe := ingestion.New(idx, store.New(db), cfg.Ingest)
	// The built generation stays on disk for the servers to open.
	pipe.SetActivate(false)

	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, cross-process lock and cache invalidation disabled", "error", err)
		} else {
			defer rc.Close()
			pipe.SetLocker(ingestion.NewRedisLocker(rc, cfg.Ingest.LockTTL))
			pipe.SetCache(cache.New(rc, cfg.Redis.CacheTTL, nil))
		}
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		pipe.SetAnnouncer(publisher.New(producer, "ingest-"+middleware.NewRequestID()))
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
			pipe.SetMirror(mirror.New(mc.Collection()))
		}
	}

	rep, runErr := pipe.Run(ctx, ingestion.Request{
		Source: *source,
		Index:  *indexName,
		Format: *format,
		Force:  *force,
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)

	if runErr != nil {
		slog.Error("ingestion failed", "error", runErr)
		os.Exit(1)
	}
}
