// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package notify delivers presence notifications.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wneessen/homewatch/internal/presence"
)

// ErrMissingCredentials is returned by notifiers that are not fully configured. Nothing is
// sent in that case.
var ErrMissingCredentials = errors.New("missing notifier credentials")

// Event describes the presence change a notification is about.
type Event struct {
	ID       string
	Kind     presence.Kind
	Presence presence.Presence
	Device   string
	Distance float64
	Time     time.Time
	Address  string
}

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
	Event   Event
}

type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg Message) error
}

// Payload is the JSON document published by the message broker notifiers.
type Payload struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Device    string `json:"device"`
	Presence  string `json:"presence"`
	InHome    bool   `json:"in_home"`
	Distance  int64  `json:"distance_m"`
	Timestamp string `json:"timestamp"`
	Address   string `json:"address,omitempty"`
}

// Meters returns the distance truncated to whole meters.
func (e Event) Meters() int64 {
	return int64(math.Trunc(e.Distance))
}

func (m Message) Payload() Payload {
	return Payload{
		ID:        m.Event.ID,
		Kind:      m.Event.Kind.String(),
		Subject:   m.Subject,
		Body:      m.Body,
		Device:    m.Event.Device,
		Presence:  m.Event.Presence.String(),
		InHome:    m.Event.Presence == presence.Home,
		Distance:  m.Event.Meters(),
		Timestamp: m.Event.Time.UTC().Format(time.RFC3339Nano),
		Address:   m.Event.Address,
	}
}

func (m Message) JSON() ([]byte, error) {
	data, err := json.Marshal(m.Payload())
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification payload: %w", err)
	}
	return data, nil
}

// Multi sends a message to all notifiers. A failing notifier does not stop the others.
type Multi []Notifier

func (m Multi) Name() string {
	return "multi"
}

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
