// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package thingsboard fetches the latest device location from a ThingsBoard installation,
// either straight from its PostgreSQL database, through psql inside the ThingsBoard container
// or through the REST API.
package thingsboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wneessen/homewatch/internal/telemetry"
)

// latestQuery selects the newest latitude and the newest longitude sample of a device. The
// returned timestamp is the later one of both samples. $1 is the device name.
const latestQuery = `
WITH dev AS (SELECT id FROM device WHERE name = $1),
lat AS (
  SELECT t.ts, t.dbl_v AS lat
  FROM ts_kv t JOIN key_dictionary k ON t.key = k.key_id JOIN dev d ON t.entity_id = d.id
  WHERE k.key = 'lat' AND t.dbl_v IS NOT NULL
  ORDER BY t.ts DESC LIMIT 1
),
lng AS (
  SELECT t.ts, t.dbl_v AS lng
  FROM ts_kv t JOIN key_dictionary k ON t.key = k.key_id JOIN dev d ON t.entity_id = d.id
  WHERE (k.key = 'lng' OR k.key = 'lon') AND t.dbl_v IS NOT NULL
  ORDER BY t.ts DESC LIMIT 1
)
SELECT GREATEST(lat.ts, lng.ts), lat.lat, lng.lng FROM lat, lng LIMIT 1;`

// inlineQuery returns latestQuery with the device name embedded as a quoted literal, for
// clients that cannot bind parameters.
func inlineQuery(device string) string {
	literal := "'" + strings.ReplaceAll(device, "'", "''") + "'"
	return strings.Replace(latestQuery, "$1", literal, 1)
}

// parseRow parses a single "ts|lat|lng" row as printed by psql in unaligned tuples-only mode.
func parseRow(out string) (telemetry.Observation, error) {
	var obs telemetry.Observation

	row := strings.TrimSpace(out)
	if row == "" {
		return obs, telemetry.ErrNoObservation
	}
	fields := strings.Split(row, "|")
	if len(fields) != 3 {
		return obs, fmt.Errorf("%w: unexpected psql output %q", telemetry.ErrInvalidObservation, row)
	}

	var err error
	if obs.Timestamp, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
		return obs, fmt.Errorf("failed to parse timestamp from psql output: %w", err)
	}
	if obs.Latitude, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return obs, fmt.Errorf("failed to parse latitude from psql output: %w", err)
	}
	if obs.Longitude, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return obs, fmt.Errorf("failed to parse longitude from psql output: %w", err)
	}
	return obs, nil
}
