// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/wneessen/homewatch/internal/i18n"
	"github.com/wneessen/homewatch/internal/presence"
)

const timeFormat = "2006-01-02 15:04:05 MST"

// staleAfter is the age from which the body mentions when the location was reported.
const staleAfter = time.Minute * 2

// Renderer turns events into localized messages.
type Renderer struct {
	t   *i18n.Translator
	loc *time.Location
	now func() time.Time
}

func NewRenderer(t *i18n.Translator, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{t: t, loc: loc, now: time.Now}
}

// Render returns the message for ev. The boolean is false for events that are not announced.
func (r *Renderer) Render(ev Event) (Message, bool) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	var subject, body string
	meters := ev.Meters()
	ts := ev.Time.In(r.loc).Format(timeFormat)
	switch ev.Kind {
	case presence.KindAnnounceHome:
		subject = r.t.Get("At Home")
		body = r.t.Getf("%s is at home. Distance %d m. Time %s.", ev.Device, meters, ts)
	case presence.KindAnnounceAway:
		subject = r.t.Get("Left Home")
		body = r.t.Getf("%s is away from home. Distance %d m. Time %s.", ev.Device, meters, ts)
	case presence.KindLeft:
		subject = r.t.Get("Left Home")
		body = r.t.Getf("%s just left home. Distance %d m. Time %s.", ev.Device, meters, ts)
	case presence.KindArrived:
		subject = r.t.Get("Back Home")
		body = r.t.Getf("%s just arrived home. Distance %d m. Time %s.", ev.Device, meters, ts)
	default:
		return Message{}, false
	}

	if ev.Address != "" {
		body += " " + r.t.Getf("Near %s.", ev.Address)
	}
	if r.now().Sub(ev.Time) >= staleAfter {
		body += " " + r.t.Getf("Location reported %s.", r.t.NaturalTime(ev.Time))
	}

	return Message{Subject: subject, Body: body, Event: ev}, true
}
