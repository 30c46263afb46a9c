package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ProductLockKey builds redis keys for per-product ledger critical sections.
func ProductLockKey(productID int64) string {
	return fmt.Sprintf("ledger:product:%d:lock", productID)
}

// Locker serialises work on a key. The returned release func must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context), error)
}

const lockRetryStep = 25 * time.Millisecond

// RedisLocker obtains short-lived redis locks with a bounded wait.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker builds a locker on top of an existing redis client. ttl bounds how long a
// crashed holder can block others; wait bounds how long Acquire retries before giving up.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait < 0 {
		wait = 0
	}
	return &RedisLocker{client: redislock.New(client), ttl: ttl, wait: wait}
}

// Acquire obtains the lock or fails with ConcurrencyConflictError once the wait elapses.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("redis locker not initialised")
	}
	retries := int(l.wait / lockRetryStep)
	opts := &redislock.Options{RetryStrategy: redislock.NoRetry()}
	if retries > 0 {
		opts.RetryStrategy = redislock.LimitRetry(redislock.LinearBackoff(lockRetryStep), retries)
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, &ConcurrencyConflictError{Key: key, Cause: err}
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) {
		_ = lock.Release(ctx)
	}, nil
}

// NoopLocker satisfies Locker when cross-process locking is disabled; the row lock in
// postgres still serialises writers.
type NoopLocker struct{}

// Acquire returns immediately.
func (NoopLocker) Acquire(context.Context, string) (func(context.Context), error) {
	return func(context.Context) {}, nil
}
