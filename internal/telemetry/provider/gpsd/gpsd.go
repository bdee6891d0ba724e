// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpsd provides the location of a GPS receiver attached to the local host.
package gpsd

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/homewatch/internal/logger"
	"github.com/wneessen/homewatch/internal/telemetry"
)

const name = "gpsd"

// Fetcher watches the gpsd TPV stream in the background and hands out the latest fix. The
// device name is ignored, gpsd only knows the receiver it is attached to.
type Fetcher struct {
	addr   string
	period time.Duration
	logger *logger.Logger
	dialFn func(addr string) (session, error)

	mu   sync.RWMutex
	last telemetry.Observation
	ok   bool
}

type session interface {
	AddFilter(class string, filter gpsd.Filter)
	Watch() chan bool
}

func New(host, port string, log *logger.Logger) *Fetcher {
	return &Fetcher{
		addr:   net.JoinHostPort(host, port),
		period: time.Second * 30,
		logger: log,
		dialFn: func(addr string) (session, error) {
			return gpsd.Dial(addr)
		},
	}
}

func (f *Fetcher) Name() string {
	return name
}

func (f *Fetcher) FetchLatest(context.Context, string) (telemetry.Observation, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.ok {
		return telemetry.Observation{}, telemetry.ErrNoObservation
	}
	return f.last, nil
}

// Start connects to gpsd and keeps the connection alive until ctx is done.
func (f *Fetcher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			sess, err := f.dialFn(f.addr)
			if err != nil {
				f.logger.Warn("failed to connect to gpsd", slog.String("address", f.addr), logger.Err(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(f.period):
					continue
				}
			}

			sess.AddFilter("TPV", f.handleReport)
			done := sess.Watch()

			select {
			case <-ctx.Done():
				// go-gpsd has no Close(), the connection is torn down on exit
				return
			case <-done:
				f.logger.Debug("gpsd connection closed, reconnecting", slog.String("address", f.addr))
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(f.period):
			}
		}
	}()
}

func (f *Fetcher) handleReport(r interface{}) {
	tpv, ok := r.(*gpsd.TPVReport)
	if !ok {
		return
	}

	// Need at least 2D fix
	if tpv.Mode < gpsd.Mode2D {
		return
	}

	ts := tpv.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = telemetry.Observation{
		Timestamp: ts.UnixMilli(),
		Latitude:  tpv.Lat,
		Longitude: tpv.Lon,
	}
	f.ok = true
}
