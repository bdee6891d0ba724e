// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presence

import (
	"errors"
	"fmt"
)

// Kind classifies the notification that an accepted observation calls for.
type Kind int

const (
	// KindNone means nothing is announced.
	KindNone Kind = iota
	// KindAnnounceHome is the one-time status announcement after startup: device is home.
	KindAnnounceHome
	// KindAnnounceAway is the one-time status announcement after startup: device is away.
	KindAnnounceAway
	// KindLeft is the Home to Away transition.
	KindLeft
	// KindArrived is the Away to Home transition.
	KindArrived
)

func (k Kind) String() string {
	switch k {
	case KindAnnounceHome:
		return "announce_home"
	case KindAnnounceAway:
		return "announce_away"
	case KindLeft:
		return "left_home"
	case KindArrived:
		return "arrived_home"
	default:
		return "none"
	}
}

// Thresholds holds the hysteresis parameters. A device at home must move further than
// ExitRadius to be considered away, a device that is away must come within EnterRadius.
type Thresholds struct {
	EnterRadius      float64
	HysteresisMargin float64
}

// Outcome is the result of evaluating one observation against the current state.
type Outcome struct {
	// Accepted is false if the observation is not newer than the last processed one.
	Accepted bool
	Previous Presence
	Next     Presence
	Distance float64
	Kind     Kind
}

// Changed reports whether the presence differs from the previous state.
func (o Outcome) Changed() bool {
	return o.Accepted && o.Previous != o.Next
}

// NewThresholds validates the radius and margin and returns the Thresholds.
func NewThresholds(enterRadius, margin float64) (Thresholds, error) {
	if enterRadius <= 0 {
		return Thresholds{}, fmt.Errorf("enter radius must be positive, got %f", enterRadius)
	}
	if margin < 0 {
		return Thresholds{}, errors.New("hysteresis margin must not be negative")
	}
	return Thresholds{EnterRadius: enterRadius, HysteresisMargin: margin}, nil
}

// ExitRadius returns the distance a device at home has to exceed to be considered away.
func (t Thresholds) ExitRadius() float64 {
	return t.EnterRadius + t.HysteresisMargin
}

// Decide computes the next presence from the previous presence and the current distance in
// meters. Unknown is decided like Away, so the enter radius applies.
func (t Thresholds) Decide(prev Presence, distance float64) Presence {
	if prev == Home {
		if distance > t.ExitRadius() {
			return Away
		}
		return Home
	}
	if distance <= t.EnterRadius {
		return Home
	}
	return Away
}

// Evaluate applies the monotonic timestamp guard, the hysteresis decision and the notification
// policy to a single observation. The state itself is not modified, see State.Apply.
func (t Thresholds) Evaluate(st State, timestamp int64, distance float64) Outcome {
	out := Outcome{Previous: st.Presence, Next: st.Presence, Distance: distance}
	if timestamp <= st.LastTimestamp {
		return out
	}

	out.Accepted = true
	out.Next = t.Decide(st.Presence, distance)
	switch {
	case st.Presence == Unknown && out.Next == Home:
		out.Kind = KindAnnounceHome
	case st.Presence == Unknown:
		out.Kind = KindAnnounceAway
	case st.Presence == Home && out.Next == Away:
		out.Kind = KindLeft
	case st.Presence == Away && out.Next == Home:
		out.Kind = KindArrived
	}
	return out
}

// Apply returns the state after the accepted outcome for an observation at timestamp. Rejected
// outcomes leave the state unchanged.
func (s State) Apply(o Outcome, timestamp int64) State {
	if !o.Accepted || timestamp <= s.LastTimestamp {
		return s
	}
	return State{Presence: o.Next, LastTimestamp: timestamp}
}
