// Package rediscache is a Redis-backed analytics cache shared between replicas.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/invoice-insights-bfa/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const scanBatch = 200

// Cache stores AnalyticsResult values as JSON with a per-key expiry.
// Redis failures degrade to a miss: the result is computed and returned anyway.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// Options holds the connection settings read from config.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient opens a client and verifies the connection.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// New wraps an existing client.
func New(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// GetOrCompute returns the cached result for key or computes and stores it.
// The boolean reports a cache hit. Errors from fn are returned and never stored.
func (c *Cache) GetOrCompute(ctx context.Context, key string, fn func(context.Context) (*domain.AnalyticsResult, error)) (*domain.AnalyticsResult, bool, error) {
	if res, ok := c.get(ctx, key); ok {
		return res, true, nil
	}

	res, err := fn(ctx)
	if err != nil {
		return nil, false, err
	}

	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("redis cache: marshal failed", zap.String("key", key), zap.Error(err))
		return res, false, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis cache: set failed", zap.String("key", key), zap.Error(err))
	}
	return res, false, nil
}

func (c *Cache) get(ctx context.Context, key string) (*domain.AnalyticsResult, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis cache: get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var res domain.AnalyticsResult
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Warn("redis cache: corrupt entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &res, true
}

// Clear deletes every analytics entry. It scans instead of using KEYS so a large
// keyspace does not block the server.
func (c *Cache) Clear(ctx context.Context) error {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, domain.CacheKeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return &domain.ErrExternalService{Service: "redis/scan", Err: err}
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return &domain.ErrExternalService{Service: "redis/del", Err: err}
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Info("redis cache cleared", zap.Int("keys", deleted))
	return nil
}

// Ping reports whether Redis is reachable, for readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
