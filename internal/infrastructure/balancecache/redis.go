package balancecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"holdings_tracker/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const flushBatchSize = 500

// RedisCache is a port.BalanceCache shared between tracker instances.
// Cache errors are logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache wraps client. Keys are prefix+address.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.Named("RedisBalanceCache"),
	}
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisCache) key(address string) string {
	return c.prefix + address
}

// Get returns the cached result for address.
func (c *RedisCache) Get(ctx context.Context, address string) (entity.BalanceResult, bool) {
	data, err := c.client.Get(ctx, c.key(address)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Failed to read cached balance", zap.String("address", address), zap.Error(err))
		}
		return entity.BalanceResult{}, false
	}
	var r entity.BalanceResult
	if err := json.Unmarshal(data, &r); err != nil {
		c.logger.Warn("Dropping undecodable cached balance", zap.String("address", address), zap.Error(err))
		return entity.BalanceResult{}, false
	}
	return r, true
}

// Set stores result with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, result entity.BalanceResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("Failed to encode balance for cache", zap.String("address", result.Address), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key(result.Address), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to cache balance", zap.String("address", result.Address), zap.Error(err))
	}
}

// Flush deletes every key under the cache prefix. Other keys in the database are left alone.
func (c *RedisCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", flushBatchSize).Iterator()
	batch := make([]string, 0, flushBatchSize)
	deleted := 0
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == flushBatchSize {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to delete cached balances: %w", err)
			}
			deleted += len(batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cached balances: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to delete cached balances: %w", err)
		}
		deleted += len(batch)
	}
	c.logger.Info("Flushed cached balances", zap.Int("keys", deleted))
	return nil
}
