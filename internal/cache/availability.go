// Package cache keeps availability answers in Redis between bookings.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/example/tablesched/internal/engine"
	"github.com/example/tablesched/internal/metrics"
)

// Availability caches per (date, party size) results under a per-date
// version. Invalidate bumps the version, so entries written from a snapshot
// taken before a commit are never served afterwards. Redis failures fall
// back to the loader.
type Availability struct {
	client *redis.Client
	ttl    time.Duration
	sfg    singleflight.Group
}

func NewAvailability(client *redis.Client, ttl time.Duration) *Availability {
	return &Availability{client: client, ttl: ttl}
}

func versionKey(date civil.Date) string {
	return fmt.Sprintf("avail:%s:version", date)
}

func entryKey(date civil.Date, version int64, guests int) string {
	return fmt.Sprintf("avail:%s:v%d:g%d", date, version, guests)
}

func (a *Availability) version(ctx context.Context, date civil.Date) (int64, error) {
	v, err := a.client.Get(ctx, versionKey(date)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (a *Availability) Get(ctx context.Context, date civil.Date, guests int, load func(context.Context) ([]engine.SlotAvailability, error)) ([]engine.SlotAvailability, error) {
	version, err := a.version(ctx, date)
	if err != nil {
		log.WithError(err).Warn("availability cache: read version")
		metrics.AvailabilityQuery("store")
		return load(ctx)
	}
	key := entryKey(date, version, guests)

	if data, err := a.client.Get(ctx, key).Bytes(); err == nil {
		var out []engine.SlotAvailability
		if err := json.Unmarshal(data, &out); err == nil {
			metrics.AvailabilityQuery("cache")
			return out, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		log.WithError(err).Warn("availability cache: get")
	}

	v, err, _ := a.sfg.Do(key, func() (interface{}, error) {
		metrics.AvailabilityQuery("store")
		out, err := load(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("marshal availability: %w", err)
		}
		if err := a.client.Set(ctx, key, data, a.ttl).Err(); err != nil {
			log.WithError(err).Warn("availability cache: set")
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]engine.SlotAvailability), nil
}

// Invalidate retires every cached entry of date.
func (a *Availability) Invalidate(ctx context.Context, date civil.Date) error {
	pipe := a.client.TxPipeline()
	pipe.Incr(ctx, versionKey(date))
	pipe.Expire(ctx, versionKey(date), 48*time.Hour+a.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate %s: %w", date, err)
	}
	return nil
}
