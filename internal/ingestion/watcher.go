package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
)

// DefaultDebounce is the quiet period after the last change to a watched
// dataset before ingestion starts.
const DefaultDebounce = 2 * time.Second

// Watcher runs the pipeline when its dataset file changes, on a fixed
// interval, or both. Requests are coalesced: at most one run is queued
// behind the one in progress.
type Watcher struct {
	pipeline *Pipeline
	path     string
	debounce time.Duration
	interval time.Duration
	logger   *slog.Logger

	kick chan struct{}
	mu   sync.Mutex
	last *Report
}

// NewWatcher creates a Watcher over the pipeline's configured source. A
// zero interval disables the periodic re-check.
func NewWatcher(p *Pipeline, debounce, interval time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		pipeline: p,
		path:     filepath.Clean(p.Source()),
		debounce: debounce,
		interval: interval,
		kick:     make(chan struct{}, 1),
		logger:   slog.Default().With("component", "dataset-watcher"),
	}
}

// Trigger queues a run unless one is already queued.
func (w *Watcher) Trigger() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// LastReport returns the report of the most recent run, or nil.
func (w *Watcher) LastReport() *Report {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Run serves triggers until ctx is done. When watch is set the dataset's
// directory is watched so that replace-by-rename writes are seen.
func (w *Watcher) Run(ctx context.Context, watch bool) error {
	var events <-chan fsnotify.Event
	var errs <-chan error
	if watch {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating dataset watcher: %w", err)
		}
		defer fw.Close()
		dir := filepath.Dir(w.path)
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		events, errs = fw.Events, fw.Errors
		w.logger.Info("watching dataset", "path", w.path, "debounce", w.debounce)
	}

	var tick <-chan time.Time
	if w.interval > 0 {
		t := time.NewTicker(w.interval)
		defer t.Stop()
		tick = t.C
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.AfterFunc(w.debounce, w.Trigger)
			} else {
				debounce.Reset(w.debounce)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("dataset watcher error", "error", err)
		case <-tick:
			w.Trigger()
		case <-w.kick:
			w.runOnce(ctx)
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context) {
	rep, err := w.pipeline.Run(ctx, Request{})
	if errors.Is(err, apperrors.ErrIngestionInProgress) {
		w.logger.Info("ingestion already running elsewhere")
	}
	w.mu.Lock()
	w.last = &rep
	w.mu.Unlock()
}
