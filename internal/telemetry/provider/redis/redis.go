// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package redis reads the latest device state from a Redis hash as maintained by a fleet
// telemetry ingestion pipeline.
package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wneessen/homewatch/internal/telemetry"
)

const (
	name = "redis"

	DefaultKeyPattern = "vehicle:%s:state"
)

type hashGetter interface {
	HGetAll(ctx context.Context, key string) *goredis.MapStringStringCmd
}

type Config struct {
	Addr       string
	Password   string
	DB         int
	KeyPattern string
}

type Fetcher struct {
	client     hashGetter
	closer     func() error
	keyPattern string
}

// New connects to the Redis server and verifies the connection.
func New(ctx context.Context, conf Config) (*Fetcher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	pattern := conf.KeyPattern
	if pattern == "" {
		pattern = DefaultKeyPattern
	}
	return &Fetcher{client: client, closer: client.Close, keyPattern: pattern}, nil
}

func (f *Fetcher) Name() string {
	return name
}

// FetchLatest reads the fields lat, lng and timestamp from the device state hash. The
// timestamp field holds Unix seconds.
func (f *Fetcher) FetchLatest(ctx context.Context, device string) (telemetry.Observation, error) {
	var obs telemetry.Observation

	key := fmt.Sprintf(f.keyPattern, device)
	fields, err := f.client.HGetAll(ctx, key).Result()
	if err != nil {
		return obs, fmt.Errorf("failed to read device state %q from redis: %w", key, err)
	}
	if len(fields) == 0 {
		return obs, telemetry.ErrNoObservation
	}

	ts, err := strconv.ParseInt(fields["timestamp"], 10, 64)
	if err != nil {
		return obs, fmt.Errorf("failed to parse timestamp from device state %q: %w", key, err)
	}
	if obs.Latitude, err = strconv.ParseFloat(fields["lat"], 64); err != nil {
		return obs, fmt.Errorf("failed to parse latitude from device state %q: %w", key, err)
	}
	if obs.Longitude, err = strconv.ParseFloat(fields["lng"], 64); err != nil {
		return obs, fmt.Errorf("failed to parse longitude from device state %q: %w", key, err)
	}
	obs.Timestamp = ts * 1000
	return obs, nil
}

func (f *Fetcher) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer()
}
