package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tablesched/internal/engine"
)

var day = civil.Date{Year: 2026, Month: time.March, Day: 3}

func setupTestRedis(t *testing.T) (*Availability, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewAvailability(client, time.Minute), mr
}

type countingLoader struct {
	calls atomic.Int32
	slots []engine.SlotAvailability
	err   error
}

func (l *countingLoader) load(ctx context.Context) ([]engine.SlotAvailability, error) {
	l.calls.Add(1)
	return l.slots, l.err
}

func sampleSlots() []engine.SlotAvailability {
	return []engine.SlotAvailability{
		{Time: time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC), Available: true, AvailableTables: 1, TotalCapacity: 6, TableIDs: []int64{3}},
		{Time: time.Date(2026, 3, 3, 17, 30, 0, 0, time.UTC), Available: false, TableIDs: []int64{}},
	}
}

func TestAvailability_HitAfterMiss(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()
	l := &countingLoader{slots: sampleSlots()}

	first, err := c.Get(ctx, day, 5, l.load)
	require.NoError(t, err)
	second, err := c.Get(ctx, day, 5, l.load)
	require.NoError(t, err)

	assert.Equal(t, int32(1), l.calls.Load())
	require.Len(t, second, 2)
	assert.True(t, first[0].Time.Equal(second[0].Time))
	assert.Equal(t, []int64{3}, second[0].TableIDs)
	assert.False(t, second[1].Available)
}

func TestAvailability_GuestsAreSeparateEntries(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()
	l := &countingLoader{slots: sampleSlots()}

	_, err := c.Get(ctx, day, 2, l.load)
	require.NoError(t, err)
	_, err = c.Get(ctx, day, 5, l.load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), l.calls.Load())
}

func TestAvailability_InvalidateForcesReload(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()
	l := &countingLoader{slots: sampleSlots()}

	_, err := c.Get(ctx, day, 5, l.load)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, day))
	_, err = c.Get(ctx, day, 5, l.load)
	require.NoError(t, err)

	assert.Equal(t, int32(2), l.calls.Load())
	v, err := mr.Get(versionKey(day))
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestAvailability_OtherDateUnaffectedByInvalidate(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()
	l := &countingLoader{slots: sampleSlots()}

	_, err := c.Get(ctx, day, 5, l.load)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, day.AddDays(1)))
	_, err = c.Get(ctx, day, 5, l.load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), l.calls.Load())
}

func TestAvailability_ExpiresAfterTTL(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()
	l := &countingLoader{slots: sampleSlots()}

	_, err := c.Get(ctx, day, 5, l.load)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, day, 5, l.load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), l.calls.Load())
}

func TestAvailability_LoaderErrorNotCached(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()
	l := &countingLoader{err: errors.New("db down")}

	_, err := c.Get(ctx, day, 5, l.load)
	assert.EqualError(t, err, "db down")
	_, err = c.Get(ctx, day, 5, l.load)
	assert.Error(t, err)
	assert.Equal(t, int32(2), l.calls.Load())
}

func TestAvailability_RedisDownFallsBackToLoader(t *testing.T) {
	c, mr := setupTestRedis(t)
	mr.Close()
	l := &countingLoader{slots: sampleSlots()}

	out, err := c.Get(context.Background(), day, 5, l.load)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
