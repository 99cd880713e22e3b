// Package cache holds the redis-backed dashboard stats cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pms/internal/config"
	"pms/internal/logger"
	"pms/internal/metrics"
	"pms/models"

	"github.com/redis/go-redis/v9"
)

const statsKeyPrefix = "pms:dashboard:stats:"

// NewRedis builds the shared client from configuration.
func NewRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

// StatsLoader computes stats for one fiscal year.
type StatsLoader func(ctx context.Context, fiscalYearID int) (*models.DashboardStats, error)

// StatsCache caches dashboard stats per fiscal year. Redis failures never
// fail a request; they fall through to the loader.
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
	log logger.Logger
}

func NewStatsCache(rdb *redis.Client, ttl time.Duration, log logger.Logger) *StatsCache {
	return &StatsCache{rdb: rdb, ttl: ttl, log: log}
}

func statsKey(fiscalYearID int) string {
	return fmt.Sprintf("%s%d", statsKeyPrefix, fiscalYearID)
}

// GetOrLoad returns cached stats for the year, loading and storing them on a miss.
func (c *StatsCache) GetOrLoad(ctx context.Context, fiscalYearID int, load StatsLoader) (*models.DashboardStats, error) {
	key := statsKey(fiscalYearID)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		stats := &models.DashboardStats{}
		if jsonErr := json.Unmarshal(raw, stats); jsonErr == nil {
			metrics.StatsCacheLookups.WithLabelValues("hit").Inc()
			return stats, nil
		}
		c.log.Warn("discarding undecodable stats cache entry", map[string]interface{}{"key": key})
	case errors.Is(err, redis.Nil):
	default:
		metrics.StatsCacheLookups.WithLabelValues("error").Inc()
		c.log.WithError(err).Warn("stats cache read failed", map[string]interface{}{"key": key})
	}
	metrics.StatsCacheLookups.WithLabelValues("miss").Inc()

	stats, err := load(ctx, fiscalYearID)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return stats, nil
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("stats cache write failed", map[string]interface{}{"key": key})
	}
	return stats, nil
}

// Invalidate drops every cached year. A resolution may touch programs of any
// year, so all entries go.
func (c *StatsCache) Invalidate(ctx context.Context) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, statsKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.WithError(err).Warn("stats cache scan failed", nil)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).Warn("stats cache invalidation failed", map[string]interface{}{"keys": len(keys)})
	}
}
