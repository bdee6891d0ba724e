// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/wneessen/homewatch/internal/geo"
)

const (
	// cellMeters is the edge length of the grid cells reverse lookups are cached on
	cellMeters = 100.0
	// metersPerDegree is the length of one degree of latitude
	metersPerDegree = 111320.0
	// defaultMaxEntries bounds the cache for a device that keeps moving into new cells
	defaultMaxEntries = 512
)

// cell identifies a grid cell of roughly cellMeters by cellMeters. Longitude cells are scaled
// by the latitude of their row so they keep their width away from the equator.
type cell struct {
	row int64
	col int64
}

type cacheEntry struct {
	address Address
	expiry  time.Time
}

// CachedGeocoder wraps a Geocoder and caches reverse lookups per grid cell. Places the device
// returns to, like home or work, are answered from the cache.
type CachedGeocoder struct {
	coder      Geocoder
	ttlHit     time.Duration
	ttlMiss    time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[cell]cacheEntry
}

func NewCachedGeocoder(coder Geocoder, ttlHit, ttlMiss time.Duration) *CachedGeocoder {
	return &CachedGeocoder{
		coder:      coder,
		ttlHit:     ttlHit,
		ttlMiss:    ttlMiss,
		maxEntries: defaultMaxEntries,
		entries:    make(map[cell]cacheEntry),
	}
}

func (c *CachedGeocoder) Name() string {
	return "geocoder cache using " + c.coder.Name()
}

func (c *CachedGeocoder) Reverse(ctx context.Context, coords geo.Coordinate) (Address, error) {
	key := cellOf(coords)
	now := time.Now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && now.Before(entry.expiry) {
		addr := entry.address
		addr.CacheHit = true
		return addr, nil
	}

	addr, err := c.coder.Reverse(ctx, coords)
	if err != nil {
		return addr, err
	}

	ttl := c.ttlHit
	if !addr.AddressFound {
		ttl = c.ttlMiss
	}
	c.store(key, cacheEntry{address: addr, expiry: time.Now().Add(ttl)})
	return addr, nil
}

// Search is not cached, it is only used once to resolve the home address.
func (c *CachedGeocoder) Search(ctx context.Context, address string) (geo.Coordinate, error) {
	return c.coder.Search(ctx, address)
}

// Len returns the number of cached cells.
func (c *CachedGeocoder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// store adds an entry. A full cache first drops expired cells and then the cell that
// expires first.
func (c *CachedGeocoder) store(key cell, entry cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		now := time.Now()
		for k, e := range c.entries {
			if !now.Before(e.expiry) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.maxEntries {
			var oldest cell
			var oldestExpiry time.Time
			for k, e := range c.entries {
				if oldestExpiry.IsZero() || e.expiry.Before(oldestExpiry) {
					oldest, oldestExpiry = k, e.expiry
				}
			}
			delete(c.entries, oldest)
		}
	}
	c.entries[key] = entry
}

func cellOf(coords geo.Coordinate) cell {
	row := math.Floor(coords.Lat * metersPerDegree / cellMeters)
	rowLat := (row + 0.5) * cellMeters / metersPerDegree
	scale := math.Max(math.Cos(rowLat*math.Pi/180), 1e-6)
	col := math.Floor(coords.Lon * metersPerDegree * scale / cellMeters)
	return cell{row: int64(row), col: int64(col)}
}
