package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/middleware"
)

const lockPrefix = "moviesearch:ingest-lock:"

// Locker serializes runs per index. Acquire returns ErrIngestionInProgress
// when the lock is held.
type Locker interface {
	Acquire(ctx context.Context, index string) (release func(), err error)
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) Acquire(_ context.Context, index string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[index] {
		return nil, apperrors.ErrIngestionInProgress
	}
	l.held[index] = true
	return func() {
		l.mu.Lock()
		delete(l.held, index)
		l.mu.Unlock()
	}, nil
}

// LockStore is the Redis side of RedisLocker. *redis.Client implements it.
type LockStore interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// RedisLocker is a named lock shared by every process using the same
// Redis. The key expires after ttl so a crashed holder cannot wedge it;
// a live holder renews it every ttl/3 until release.
type RedisLocker struct {
	store  LockStore
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisLocker(store LockStore, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLocker{
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "ingest-lock"),
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, index string) (func(), error) {
	key := lockPrefix + index
	token := middleware.NewRequestID()
	ok, err := r.store.TryLock(ctx, key, token, r.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquiring ingestion lock: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrIngestionInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.renew(key, token, index, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.store.Unlock(ctx, key, token); err != nil {
				r.logger.Warn("releasing ingestion lock", "index", index, "error", err)
			}
		})
	}, nil
}

// renew extends the lock until stop closes or the lock is lost. A failed
// renewal is retried on the next tick while the key has not expired.
func (r *RedisLocker) renew(key, token, index string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
		ok, err := r.store.Extend(ctx, key, token, r.ttl)
		cancel()
		switch {
		case err != nil:
			r.logger.Warn("renewing ingestion lock", "index", index, "error", err)
		case !ok:
			r.logger.Error("ingestion lock lost before the run finished", "index", index)
			return
		}
	}
}
