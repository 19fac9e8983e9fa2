// Package cache memoizes read-mostly lookups (autocomplete, genre facets)
// in Redis. Concurrent misses for one key collapse into a single compute,
// and a circuit breaker stops calling Redis while it is failing. A cache
// without a backend computes every call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iambluuu/CS419-MovieTextSearch/pkg/metrics"
	pkgredis "github.com/iambluuu/CS419-MovieTextSearch/pkg/redis"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/resilience"
)

const keyPrefix = "moviesearch:"

// Backend is the key-value store behind the cache. *pkgredis.Client
// satisfies it.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// QueryCache is safe for concurrent use.
type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// Stats is the hit/miss tally since start.
type Stats struct {
	Enabled bool   `json:"enabled"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Breaker string `json:"breaker,omitempty"`
}

// New creates a cache over backend. backend and m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	c := &QueryCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// Enabled reports whether a backend is configured.
func (c *QueryCache) Enabled() bool {
	return c != nil && c.backend != nil
}

// Key builds a cache key in namespace from the given parts. Parts are
// lower-cased and whitespace-collapsed before hashing.
func Key(namespace string, parts ...string) string {
	norm := make([]string, len(parts))
	for i, p := range parts {
		norm[i] = strings.Join(strings.Fields(strings.ToLower(p)), " ")
	}
	hash := sha256.Sum256([]byte(strings.Join(norm, "\x00")))
	return fmt.Sprintf("%s%s:%x", keyPrefix, namespace, hash[:16])
}

// GetOrCompute returns the cached value of key, or computes, stores and
// returns it. The bool reports a cache hit. Cache failures never fail the
// call; compute errors are returned and not cached.
func GetOrCompute[T any](ctx context.Context, c *QueryCache, key string, compute func(context.Context) (T, error)) (T, bool, error) {
	if !c.Enabled() {
		v, err := compute(ctx)
		return v, false, err
	}
	if v, ok := get[T](ctx, c, key); ok {
		return v, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := get[T](ctx, c, key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

func get[T any](ctx context.Context, c *QueryCache, key string) (T, bool) {
	var (
		out  T
		data string
	)
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err == nil && data != "" {
		if err = json.Unmarshal([]byte(data), &out); err == nil {
			c.hit()
			c.logger.Debug("cache hit", "key", key)
			return out, true
		}
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
	} else if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	c.miss()
	return out, false
}

func (c *QueryCache) set(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops every cached entry.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats reports hits and misses since start.
func (c *QueryCache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	s := Stats{Enabled: c.Enabled(), Hits: c.hits.Load(), Misses: c.misses.Load()}
	if s.Enabled {
		s.Breaker = c.breaker.GetState().String()
	}
	return s
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
