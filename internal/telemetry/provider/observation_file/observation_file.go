// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package observation_file

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/wneessen/homewatch/internal/telemetry"
)

const name = "file"

// Fetcher reads the observation from a local text file. The first line that is neither empty
// nor a comment must hold "timestamp_ms,lat,lng". It is used to drive homewatch by hand.
type Fetcher struct {
	path string
}

func New(path string) *Fetcher {
	return &Fetcher{path: path}
}

func (f *Fetcher) Name() string {
	return name
}

func (f *Fetcher) FetchLatest(context.Context, string) (telemetry.Observation, error) {
	var obs telemetry.Observation

	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return obs, telemetry.ErrNoObservation
	}
	if err != nil {
		return obs, fmt.Errorf("failed to open observation file %q: %w", f.path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return parseLine(f.path, line)
	}
	if err = scanner.Err(); err != nil {
		return obs, fmt.Errorf("failed to read observation file %q: %w", f.path, err)
	}
	return obs, telemetry.ErrNoObservation
}

func parseLine(path, line string) (telemetry.Observation, error) {
	var obs telemetry.Observation
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return obs, fmt.Errorf("%w: observation file %q contains %q", telemetry.ErrInvalidObservation, path, line)
	}

	var err error
	if obs.Timestamp, err = strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64); err != nil {
		return obs, fmt.Errorf("failed to parse timestamp from observation file %q: %w", path, err)
	}
	if obs.Latitude, err = strconv.ParseFloat(strings.TrimSpace(fields[1]), 64); err != nil {
		return obs, fmt.Errorf("failed to parse latitude from observation file %q: %w", path, err)
	}
	if obs.Longitude, err = strconv.ParseFloat(strings.TrimSpace(fields[2]), 64); err != nil {
		return obs, fmt.Errorf("failed to parse longitude from observation file %q: %w", path, err)
	}
	return obs, nil
}
