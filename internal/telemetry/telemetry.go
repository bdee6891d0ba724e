// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package telemetry defines the source of location observations for the tracked device.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/homewatch/internal/geo"
)

var (
	// ErrNoObservation is returned when the source has no location data for the device yet.
	ErrNoObservation = errors.New("no observation available")

	// ErrInvalidObservation is returned when the source delivered data that cannot be used.
	ErrInvalidObservation = errors.New("invalid observation")
)

// Observation is a single timestamped location sample. Timestamp is in milliseconds since
// the Unix epoch.
type Observation struct {
	Timestamp int64
	Latitude  float64
	Longitude float64
}

type Fetcher interface {
	Name() string
	FetchLatest(ctx context.Context, device string) (Observation, error)
}

// Starter is implemented by fetchers that need a background session, like gpsd.
type Starter interface {
	Start(ctx context.Context)
}

func (o Observation) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: o.Latitude, Lon: o.Longitude}
}

func (o Observation) Time() time.Time {
	return time.UnixMilli(o.Timestamp)
}

func (o Observation) Validate() error {
	if o.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp %d is not positive", ErrInvalidObservation, o.Timestamp)
	}
	if !o.Coordinate().Valid() {
		return fmt.Errorf("%w: coordinates %s out of range", ErrInvalidObservation, o.Coordinate())
	}
	return nil
}
