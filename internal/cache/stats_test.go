package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"pms/internal/logger"
	"pms/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) (*StatsCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStatsCache(rdb, time.Minute, logger.NewTestLogger(t)), mr
}

type countingLoader struct {
	calls int
	err   error
}

func (l *countingLoader) load(ctx context.Context, fy int) (*models.DashboardStats, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return &models.DashboardStats{
		FiscalYearID:     fy,
		ProgramsByStatus: map[string]int{"DRAFT": 2, "APPROVED": 1},
		TotalPrograms:    3,
		TotalBudget:      4500000,
	}, nil
}

func TestGetOrLoadHitAndMiss(t *testing.T) {
	c, mr := setupCache(t)
	loader := &countingLoader{}
	ctx := context.Background()

	first, err := c.GetOrLoad(ctx, 2, loader.load)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
	assert.True(t, mr.Exists(statsKey(2)))
	assert.Equal(t, time.Minute, mr.TTL(statsKey(2)))

	second, err := c.GetOrLoad(ctx, 2, loader.load)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, first.TotalPrograms, second.TotalPrograms)
	assert.Equal(t, 2, second.ProgramsByStatus["DRAFT"])

	_, err = c.GetOrLoad(ctx, 3, loader.load)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)
}

func TestGetOrLoadExpires(t *testing.T) {
	c, mr := setupCache(t)
	loader := &countingLoader{}
	ctx := context.Background()

	_, err := c.GetOrLoad(ctx, 2, loader.load)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = c.GetOrLoad(ctx, 2, loader.load)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)
}

func TestInvalidate(t *testing.T) {
	c, mr := setupCache(t)
	loader := &countingLoader{}
	ctx := context.Background()
	require.NoError(t, mr.Set("unrelated", "keep"))

	for _, fy := range []int{1, 2} {
		_, err := c.GetOrLoad(ctx, fy, loader.load)
		require.NoError(t, err)
	}
	c.Invalidate(ctx)

	assert.False(t, mr.Exists(statsKey(1)))
	assert.False(t, mr.Exists(statsKey(2)))
	assert.True(t, mr.Exists("unrelated"))

	_, err := c.GetOrLoad(ctx, 1, loader.load)
	require.NoError(t, err)
	assert.Equal(t, 3, loader.calls)
}

func TestGetOrLoadDegradesWhenRedisDown(t *testing.T) {
	c, mr := setupCache(t)
	loader := &countingLoader{}
	mr.Close()

	stats, err := c.GetOrLoad(context.Background(), 2, loader.load)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalPrograms)
	c.Invalidate(context.Background())
}

func TestGetOrLoadPropagatesLoaderError(t *testing.T) {
	c, _ := setupCache(t)
	loader := &countingLoader{err: errors.New("db down")}

	_, err := c.GetOrLoad(context.Background(), 2, loader.load)
	assert.EqualError(t, err, "db down")
}

func TestGetOrLoadIgnoresCorruptEntry(t *testing.T) {
	c, mr := setupCache(t)
	loader := &countingLoader{}
	require.NoError(t, mr.Set(statsKey(5), "{not json"))

	stats, err := c.GetOrLoad(context.Background(), 5, loader.load)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.FiscalYearID)
	assert.Equal(t, 1, loader.calls)
}
