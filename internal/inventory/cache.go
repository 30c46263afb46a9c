package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	stockVersionKey  = "ledger:stock:version"
	stockSnapshotKey = "ledger:stock:snapshot"
)

// SnapshotCache serves stock listings from redis. Every committed ledger mutation bumps the
// version, so a snapshot never outlives the write that invalidated it by more than one fill.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewSnapshotCache instantiates the cache helper.
func NewSnapshotCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SnapshotCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCache{client: client, ttl: ttl, logger: logger}
}

// Version returns the current snapshot version, initialising when missing.
func (c *SnapshotCache) Version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, stockVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, stockVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, stockVersionKey).Int64()
	}
	return ver, err
}

// Bump invalidates every snapshot taken so far.
func (c *SnapshotCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, stockVersionKey).Err()
}

// HandleMovementRecorded implements MovementListener.
func (c *SnapshotCache) HandleMovementRecorded(ctx context.Context, _ MovementRecordedEvent) error {
	return c.Bump(ctx)
}

// Stock returns the cached listing or fills it through loader. Concurrent fills of the same
// version collapse into one loader call. Redis failures fall back to the loader.
func (c *SnapshotCache) Stock(ctx context.Context, loader func(context.Context) ([]Stock, error)) ([]Stock, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		c.logger.Warn("stock snapshot version", slog.Any("error", err))
		return loader(ctx)
	}
	key := fmt.Sprintf("%s:%d", stockSnapshotKey, ver)

	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		return c.fetch(ctx, key, loader)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Stock), nil
	}
}

func (c *SnapshotCache) fetch(ctx context.Context, key string, loader func(context.Context) ([]Stock, error)) ([]Stock, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached []Stock
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("stock snapshot read", slog.Any("error", err))
	}

	stock, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(stock)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("stock snapshot write", slog.Any("error", err))
	}
	return stock, nil
}
