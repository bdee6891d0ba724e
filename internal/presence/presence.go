// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package presence implements the home/away decision for a tracked device. It has no I/O:
// distances and timestamps are passed in, decisions and notification kinds come out.
package presence

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Presence is the tri-state presence of the tracked device.
type Presence int

const (
	// Unknown is the initial pseudo-state before the first accepted observation.
	Unknown Presence = iota
	Home
	Away
)

var jsonNull = []byte("null")

func (p Presence) String() string {
	switch p {
	case Home:
		return "home"
	case Away:
		return "away"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes Home as true, Away as false and Unknown as null.
func (p Presence) MarshalJSON() ([]byte, error) {
	switch p {
	case Home:
		return []byte("true"), nil
	case Away:
		return []byte("false"), nil
	default:
		return jsonNull, nil
	}
}

// UnmarshalJSON is the inverse of MarshalJSON. Any other JSON value is rejected.
func (p *Presence) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, jsonNull) {
		*p = Unknown
		return nil
	}
	var inHome bool
	if err := json.Unmarshal(data, &inHome); err != nil {
		return fmt.Errorf("invalid presence value %q: %w", string(data), err)
	}
	*p = Away
	if inHome {
		*p = Home
	}
	return nil
}

// State is the persisted presence state. LastTimestamp is the telemetry timestamp in epoch
// milliseconds of the newest observation already acted upon and never decreases.
type State struct {
	Presence      Presence `json:"in_home"`
	LastTimestamp int64    `json:"last_ts"`
}

// DefaultState returns the state used when nothing has been persisted yet.
func DefaultState() State {
	return State{Presence: Unknown}
}
