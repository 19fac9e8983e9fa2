package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/analytics"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/index"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion/publisher"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
	"github.com/iambluuu/CS419-MovieTextSearch/internal/store"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/config"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/database"
	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
)

const dataset = `id,title,plot_synopsis,genres,vote_average,vote_count
1,Dune,A noble family becomes embroiled in a war for the desert planet.,"Science Fiction, Adventure",7.8,5000
2,Arrival,A linguist works with the military to communicate with aliens.,"Science Fiction, Drama",7.6,4000
3,The Godfather,The aging patriarch of a crime dynasty transfers control.,"Crime, Drama",8.7,9000
x,Broken,,,,
`

type fixture struct {
	dir      string
	source   string
	manager  *index.Manager
	store    *store.Store
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "movies.csv")
	if err := os.WriteFile(src, []byte(dataset), 0o644); err != nil {
		t.Fatal(err)
	}
	db, err := database.OpenSQLite(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	m, err := index.NewMemManager("movies")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	st := store.New(db)
	p := New(m, st, config.IngestConfig{Source: src, Format: "merged", BatchSize: 2})
	return &fixture{dir: dir, source: src, manager: m, store: st, pipeline: p}
}

func (f *fixture) touch(t *testing.T, at time.Time) {
	t.Helper()
	if err := os.Chtimes(f.source, at, at); err != nil {
		t.Fatal(err)
	}
}

func TestIngestThenNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rep, err := f.pipeline.Ingest(ctx, f.source, "movies")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Outcome != OutcomeSuccess || rep.Parsed != 3 || rep.Skipped != 1 || rep.Indexed != 3 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if f.manager.Active() != rep.Generation {
		t.Errorf("active = %q, want %q", f.manager.Active(), rep.Generation)
	}
	if n, _ := f.store.Count(ctx, "movies"); n != 3 {
		t.Errorf("store holds %d movies", n)
	}
	gen, err := f.store.Generation(ctx, "movies")
	if err != nil || gen.Generation != rep.Generation || gen.Fingerprint != rep.Fingerprint {
		t.Errorf("recorded generation = %+v, %v", gen, err)
	}
	sc, err := LoadSidecar(f.source + SidecarSuffix)
	if err != nil || sc == nil || sc.Fingerprint != rep.Fingerprint || sc.Index != "movies" {
		t.Fatalf("sidecar = %+v, %v", sc, err)
	}
	d, _ := f.store.Get(ctx, "movies", 3)
	if d.Popularity <= 0 || d.Suggest.Weight != d.Popularity {
		t.Errorf("popularity not applied: %v / %v", d.Popularity, d.Suggest.Weight)
	}

	again, err := f.pipeline.Ingest(ctx, f.source, "movies")
	if err != nil {
		t.Fatal(err)
	}
	if again.Outcome != OutcomeNoop || again.Generation != rep.Generation {
		t.Errorf("second run = %+v", again)
	}
}

func TestChangedDatasetReplacesAndResetsFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.pipeline.Ingest(ctx, f.source, "movies")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.AddFeedback(ctx, "movies", 1, 2); err != nil {
		t.Fatal(err)
	}

	f.touch(t, time.Now().Add(time.Hour))
	second, err := f.pipeline.Ingest(ctx, f.source, "movies")
	if err != nil {
		t.Fatal(err)
	}
	if second.Outcome != OutcomeSuccess || second.Generation == first.Generation {
		t.Fatalf("second run = %+v", second)
	}
	if second.Fingerprint == first.Fingerprint {
		t.Error("fingerprint unchanged after mtime change")
	}
	d, _ := f.store.Get(ctx, "movies", 1)
	if d.Feedback != 0 {
		t.Errorf("feedback survived reindex: %d", d.Feedback)
	}
}

func TestForceBypassesGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, _ := f.pipeline.Ingest(ctx, f.source, "movies")
	rep, err := f.pipeline.Run(ctx, Request{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Outcome != OutcomeSuccess || rep.Generation == first.Generation {
		t.Errorf("forced run = %+v", rep)
	}
}

func TestNoopRequiresActiveGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.pipeline.Ingest(ctx, f.source, "movies"); err != nil {
		t.Fatal(err)
	}
	f.manager.Close()
	rep, err := f.pipeline.Ingest(ctx, f.source, "movies")
	if err != nil || rep.Outcome != OutcomeSuccess {
		t.Errorf("run without active generation = %+v, %v", rep, err)
	}
}

func TestReleaseModeKeepsGenerationForServers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := index.NewManager(filepath.Join(f.dir, "indexes"), "movies")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	p := New(m, f.store, config.IngestConfig{Source: f.source, Format: "merged", BatchSize: 2})
	p.SetActivate(false)

	first, err := p.Run(ctx, Request{})
	if err != nil || first.Outcome != OutcomeSuccess {
		t.Fatalf("first run = %+v, %v", first, err)
	}
	if m.Active() != "" {
		t.Errorf("release mode activated %s", m.Active())
	}
	rec, err := f.store.Generation(ctx, "movies")
	if err != nil || rec.Generation != first.Generation {
		t.Fatalf("recorded generation = %+v, %v", rec, err)
	}
	if _, err := os.Stat(rec.Path); err != nil {
		t.Fatalf("generation files: %v", err)
	}

	again, err := p.Run(ctx, Request{})
	if err != nil || again.Outcome != OutcomeNoop || again.Generation != first.Generation {
		t.Errorf("second run = %+v, %v", again, err)
	}

	server, err := index.NewManager(filepath.Join(f.dir, "indexes"), "movies")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { server.Close() })
	if err := server.Open(rec.Generation, rec.Path); err != nil {
		t.Fatalf("server open: %v", err)
	}
	if n, _ := server.DocCount(); n != 3 {
		t.Errorf("served docs = %d, want 3", n)
	}
}

func TestFailuresLeaveStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.pipeline.Ingest(ctx, f.source, "movies")
	if err != nil {
		t.Fatal(err)
	}

	bad := filepath.Join(f.dir, "nosynopsis.csv")
	if err := os.WriteFile(bad, []byte("id,title\n9,Heat\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	txt := filepath.Join(f.dir, "movies.txt")
	if err := os.WriteFile(txt, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		source string
		index  string
		want   error
	}{
		{"missing column", bad, "movies", apperrors.ErrInvalidInput},
		{"missing file", filepath.Join(f.dir, "gone.csv"), "movies", apperrors.ErrDatasetNotFound},
		{"unsupported extension", txt, "movies", apperrors.ErrUnsupportedFormat},
		{"bad index name", f.source, "Movies!", apperrors.ErrInvalidInput},
		{"other index", f.source, "series", apperrors.ErrIndexNotFound},
	}
	for _, tt := range tests {
		rep, err := f.pipeline.Ingest(ctx, tt.source, tt.index)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, err, tt.want)
		}
		if rep.Outcome != OutcomeFailure || rep.Error == "" {
			t.Errorf("%s: report = %+v", tt.name, rep)
		}
	}
	if f.manager.Active() != first.Generation {
		t.Error("failed runs changed the active generation")
	}
	if n, _ := f.store.Count(ctx, "movies"); n != 3 {
		t.Errorf("failed runs changed the store: %d movies", n)
	}
}

func TestHeldLock(t *testing.T) {
	f := newFixture(t)
	l := NewLocalLocker()
	release, err := l.Acquire(context.Background(), "movies")
	if err != nil {
		t.Fatal(err)
	}
	f.pipeline.SetLocker(l)

	_, err = f.pipeline.Ingest(context.Background(), f.source, "movies")
	if !errors.Is(err, apperrors.ErrIngestionInProgress) {
		t.Fatalf("error = %v", err)
	}
	if apperrors.HTTPStatusCode(err) != 409 {
		t.Errorf("status = %d", apperrors.HTTPStatusCode(err))
	}
	if f.manager.Active() != "" {
		t.Error("a generation was activated while the lock was held")
	}

	release()
	if _, err := f.pipeline.Ingest(context.Background(), f.source, "movies"); err != nil {
		t.Errorf("after release: %v", err)
	}
}

type followups struct {
	mu           sync.Mutex
	announced    []publisher.IndexComplete
	mirrored     int
	invalidated  int
	events       []any
	failAnnounce bool
}

func (f *followups) IndexComplete(_ context.Context, ev publisher.IndexComplete) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, ev)
	if f.failAnnounce {
		return errors.New("broker down")
	}
	return nil
}

func (f *followups) Replace(_ context.Context, _ string, docs []movie.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrored += len(docs)
	return nil
}

func (f *followups) Invalidate(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	return 1, nil
}

func (f *followups) Track(e any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func TestFollowupsAreBestEffort(t *testing.T) {
	f := newFixture(t)
	fu := &followups{failAnnounce: true}
	f.pipeline.SetAnnouncer(fu)
	f.pipeline.SetMirror(fu)
	f.pipeline.SetCache(fu)
	f.pipeline.SetTracker(fu)

	rep, err := f.pipeline.Ingest(context.Background(), f.source, "movies")
	if err != nil {
		t.Fatalf("failing announcer failed the run: %v", err)
	}
	if len(fu.announced) != 1 || fu.announced[0].Generation != rep.Generation || fu.announced[0].DocCount != 3 {
		t.Errorf("announced = %+v", fu.announced)
	}
	if fu.mirrored != 3 || fu.invalidated != 1 {
		t.Errorf("mirrored = %d invalidated = %d", fu.mirrored, fu.invalidated)
	}

	if _, err := f.pipeline.Ingest(context.Background(), f.source, "movies"); err != nil {
		t.Fatal(err)
	}
	if len(fu.announced) != 1 {
		t.Error("no-op run was announced")
	}
	if len(fu.events) != 2 {
		t.Fatalf("events = %d, want 2", len(fu.events))
	}
	if ev := fu.events[1].(analytics.IngestEvent); ev.Outcome != OutcomeNoop {
		t.Errorf("second event = %+v", ev)
	}
}

func TestWatcherTrigger(t *testing.T) {
	f := newFixture(t)
	w := NewWatcher(f.pipeline, 20*time.Millisecond, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, true) }()

	w.Trigger()
	waitFor(t, func() bool { r := w.LastReport(); return r != nil && r.Outcome == OutcomeSuccess })
	first := w.LastReport().Generation

	// Give the watcher time to register before touching the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(f.source, []byte(dataset+"4,Heat,A heist.,Crime,7,100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { r := w.LastReport(); return r != nil && r.Generation != first && r.Parsed == 4 })

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met within 10s")
}
