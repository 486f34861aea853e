package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DefaultCacheTTL is how long cached series live in Redis.
	DefaultCacheTTL = 10 * time.Minute

	keyPrefix = "scatsroute:prediction:"
)

// RedisCacheConfig holds configuration for the Redis series cache.
type RedisCacheConfig struct {
	// Client is the Redis client (required).
	Client redis.Cmdable

	// Next is the store consulted on a cache miss (required).
	Next Store

	// TTL is how long entries live (default: 10 minutes).
	TTL time.Duration

	// Logger for cache operations.
	Logger zerolog.Logger
}

// RedisCache is a read-through Store that shares series between instances.
// Absent series are cached too, so repeated misses do not reach Next.
// Redis failures are logged and bypassed.
type RedisCache struct {
	client redis.Cmdable
	next   Store
	ttl    time.Duration
	logger zerolog.Logger
}

// cachedSeries is the Redis encoding of a series; nil entries are missing slots.
type cachedSeries struct {
	Values []*float64 `json:"values,omitempty"`
	Absent bool       `json:"absent,omitempty"`
}

// NewRedisCache creates a Redis-backed series cache.
func NewRedisCache(cfg RedisCacheConfig) *RedisCache {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{
		client: cfg.Client,
		next:   cfg.Next,
		ttl:    ttl,
		logger: cfg.Logger,
	}
}

// Name implements Store.
func (c *RedisCache) Name() string {
	return "redis+" + c.next.Name()
}

// CacheKey returns the Redis key for a site and model.
func CacheKey(siteID int, model string) string {
	return keyPrefix + model + ":" + strconv.Itoa(siteID)
}

// Series implements Store.
func (c *RedisCache) Series(ctx context.Context, siteID int, model string) (Series, error) {
	key := CacheKey(siteID, model)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedSeries
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			if cached.Absent {
				return nil, ErrSeriesNotFound
			}
			return fromCached(cached.Values), nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cached series")
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn().Err(err).Str("key", key).Msg("redis read failed, bypassing cache")
		return c.next.Series(ctx, siteID, model)
	}

	series, err := c.next.Series(ctx, siteID, model)
	switch {
	case err == nil:
		c.write(ctx, key, cachedSeries{Values: toCached(series)})
	case errors.Is(err, ErrSeriesNotFound):
		c.write(ctx, key, cachedSeries{Absent: true})
	}
	return series, err
}

// Put stores a series, overwriting any cached entry.
func (c *RedisCache) Put(ctx context.Context, siteID int, model string, series Series) error {
	payload, err := json.Marshal(cachedSeries{Values: toCached(series)})
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}
	return c.client.Set(ctx, CacheKey(siteID, model), payload, c.ttl).Err()
}

// Invalidate removes every cached series of a model.
func (c *RedisCache) Invalidate(ctx context.Context, model string) (int, error) {
	iter := c.client.Scan(ctx, 0, keyPrefix+model+":*", 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete cache keys: %w", err)
	}
	return int(n), nil
}

func (c *RedisCache) write(ctx context.Context, key string, v cachedSeries) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis write failed")
	}
}

func toCached(s Series) []*float64 {
	out := make([]*float64, len(s))
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		v := v
		out[i] = &v
	}
	return out
}

func fromCached(values []*float64) Series {
	out := make(Series, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out
}
