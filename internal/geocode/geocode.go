// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"errors"

	"github.com/wneessen/homewatch/internal/geo"
)

var ErrNotFound = errors.New("no coordinates found for address")

type Address struct {
	AddressFound bool
	CacheHit     bool
	Latitude     float64
	Longitude    float64
	DisplayName  string
	Country      string
	State        string
	Postcode     string
	City         string
	Suburb       string
	Street       string
	HouseNumber  string
}

// Short returns a compact one-line representation used in notifications.
func (a Address) Short() string {
	switch {
	case a.Street != "" && a.City != "":
		if a.HouseNumber != "" {
			return a.Street + " " + a.HouseNumber + ", " + a.City
		}
		return a.Street + ", " + a.City
	case a.Suburb != "" && a.City != "":
		return a.Suburb + ", " + a.City
	case a.City != "":
		return a.City
	default:
		return a.DisplayName
	}
}

type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, coords geo.Coordinate) (Address, error)
	Search(ctx context.Context, address string) (geo.Coordinate, error)
}
