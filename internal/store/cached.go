package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/metrics"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

// CachedStore is a Redis-first read path in front of another Store.
// Bindings never change once claimed, so a cached binding cannot go stale;
// only positive lookups are cached. Cached entries carry no token.
// Redis failures are logged and fall through to the backing store.
type CachedStore struct {
	Store
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

type cachedBinding struct {
	Pool      model.PoolID    `json:"pool"`
	ClientID  string          `json:"client_id"`
	Ticker    string          `json:"ticker"`
	AssetType model.AssetType `json:"asset_type"`
}

// NewCached wraps backing with a binding cache on rdb.
func NewCached(backing Store, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{Store: backing, redis: rdb, ttl: ttl, logger: logger}
}

// NewRedisClient dials Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func bindingKey(pool model.PoolID, ticker string) string {
	return fmt.Sprintf("binding:%s:%s", pool, ticker)
}

func (c *CachedStore) FindBinding(ctx context.Context, pool model.PoolID, ticker string) (*model.PoolEntry, error) {
	data, err := c.redis.Get(ctx, bindingKey(pool, ticker)).Bytes()
	switch {
	case err == nil:
		var b cachedBinding
		if jsonErr := json.Unmarshal(data, &b); jsonErr == nil {
			metrics.IncCacheAccess("hit")
			return &model.PoolEntry{Pool: b.Pool, ClientID: b.ClientID, Ticker: b.Ticker, AssetType: b.AssetType}, nil
		}
		c.logger.Warn("store.cache.decode_failed", zap.String("ticker", ticker))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("store.cache.get_failed", zap.String("ticker", ticker), zap.Error(err))
		metrics.IncError("store_cache", "get_failed")
	}
	metrics.IncCacheAccess("miss")

	entry, err := c.Store.FindBinding(ctx, pool, ticker)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, entry)
	return entry, nil
}

func (c *CachedStore) ClaimUnclaimed(ctx context.Context, pool model.PoolID, ticker string, asset model.AssetType) (*model.PoolEntry, error) {
	entry, err := c.Store.ClaimUnclaimed(ctx, pool, ticker, asset)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, entry)
	return entry, nil
}

func (c *CachedStore) InsertBound(ctx context.Context, e model.PoolEntry) error {
	if err := c.Store.InsertBound(ctx, e); err != nil {
		return err
	}
	c.remember(ctx, &e)
	return nil
}

func (c *CachedStore) remember(ctx context.Context, e *model.PoolEntry) {
	if e == nil || !e.Claimed() {
		return
	}
	data, err := json.Marshal(cachedBinding{Pool: e.Pool, ClientID: e.ClientID, Ticker: e.Ticker, AssetType: e.AssetType})
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, bindingKey(e.Pool, e.Ticker), data, c.ttl).Err(); err != nil {
		c.logger.Warn("store.cache.set_failed", zap.String("ticker", e.Ticker), zap.Error(err))
		metrics.IncError("store_cache", "set_failed")
	}
}

func (c *CachedStore) HealthCheck(ctx context.Context) error {
	if c.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return c.Store.HealthCheck(ctx)
}

func (c *CachedStore) Close() error {
	err := c.Store.Close()
	if c.redis != nil {
		if rerr := c.redis.Close(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}
