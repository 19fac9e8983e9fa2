package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type mapBackend struct {
	mu   sync.Mutex
	data map[string]string
	fail bool
}

var errDown = errors.New("backend down")

func newMapBackend() *mapBackend { return &mapBackend{data: map[string]string{}} }

func (b *mapBackend) Get(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return "", errDown
	}
	return b.data[key], nil
}

func (b *mapBackend) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errDown
	}
	switch v := value.(type) {
	case []byte:
		b.data[key] = string(v)
	case string:
		b.data[key] = v
	}
	return nil
}

func (b *mapBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

func TestKeyNormalizes(t *testing.T) {
	if Key("suggest", "g1", "Dune  Part") != Key("suggest", "g1", "dune part") {
		t.Error("keys differ for equivalent input")
	}
	if Key("suggest", "g1", "dune") == Key("genres", "g1", "dune") {
		t.Error("namespaces collide")
	}
	if !strings.HasPrefix(Key("genres", "g1"), keyPrefix+"genres:") {
		t.Errorf("key = %s", Key("genres", "g1"))
	}
}

func TestGetOrCompute(t *testing.T) {
	c := New(newMapBackend(), time.Minute, nil)
	ctx := context.Background()
	var calls atomic.Int32
	compute := func(context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"dune", "dune part two"}, nil
	}

	key := Key("suggest", "dun")
	v, hit, err := GetOrCompute(ctx, c, key, compute)
	if err != nil || hit || len(v) != 2 {
		t.Fatalf("first call = %v, %v, %v", v, hit, err)
	}
	v, hit, err = GetOrCompute(ctx, c, key, compute)
	if err != nil || !hit || v[1] != "dune part two" {
		t.Fatalf("second call = %v, %v, %v", v, hit, err)
	}
	if calls.Load() != 1 {
		t.Errorf("compute ran %d times, want 1", calls.Load())
	}
	if s := c.Stats(); s.Hits != 1 || !s.Enabled {
		t.Errorf("stats = %+v", s)
	}
}

func TestComputeErrorNotCached(t *testing.T) {
	c := New(newMapBackend(), time.Minute, nil)
	boom := errors.New("boom")
	key := Key("genres")
	if _, _, err := GetOrCompute(context.Background(), c, key, func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	v, hit, err := GetOrCompute(context.Background(), c, key, func(context.Context) (int, error) { return 7, nil })
	if err != nil || hit || v != 7 {
		t.Fatalf("after error = %v, %v, %v", v, hit, err)
	}
}

func TestBackendFailureFallsThrough(t *testing.T) {
	b := newMapBackend()
	b.fail = true
	c := New(b, time.Minute, nil)
	for i := 0; i < 10; i++ {
		v, hit, err := GetOrCompute(context.Background(), c, Key("genres"), func(context.Context) (string, error) { return "ok", nil })
		if err != nil || hit || v != "ok" {
			t.Fatalf("call %d = %v, %v, %v", i, v, hit, err)
		}
	}
	if s := c.Stats(); s.Breaker != "open" {
		t.Errorf("breaker = %s, want open", s.Breaker)
	}
}

func TestDisabledCache(t *testing.T) {
	c := New(nil, time.Minute, nil)
	var calls int
	for i := 0; i < 2; i++ {
		if _, _, err := GetOrCompute(context.Background(), c, "k", func(context.Context) (int, error) { calls++; return 1, nil }); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 2 {
		t.Errorf("compute ran %d times, want 2", calls)
	}
	if n, err := c.Invalidate(context.Background()); n != 0 || err != nil {
		t.Errorf("Invalidate = %d, %v", n, err)
	}
}

func TestInvalidate(t *testing.T) {
	b := newMapBackend()
	c := New(b, time.Minute, nil)
	ctx := context.Background()
	for _, k := range []string{"a", "b"} {
		if _, _, err := GetOrCompute(ctx, c, Key("suggest", k), func(context.Context) (string, error) { return k, nil }); err != nil {
			t.Fatal(err)
		}
	}
	n, err := c.Invalidate(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Invalidate = %d, %v", n, err)
	}
}
