// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wneessen/homewatch/internal/notify"
	"github.com/wneessen/homewatch/internal/presence"
)

type fakeConn struct {
	subject  string
	data     []byte
	pubErr   error
	flushErr error
	closed   bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.subject, c.data = subject, data
	return c.pubErr
}

func (c *fakeConn) FlushWithContext(context.Context) error { return c.flushErr }
func (c *fakeConn) Close()                                 { c.closed = true }

var testMessage = notify.Message{
	Subject: "Back Home",
	Body:    "Nirali's iPhone just arrived home. Distance 100 m.",
	Event: notify.Event{
		ID: "event-2", Kind: presence.KindArrived, Presence: presence.Home, Device: "Nirali's iPhone",
		Distance: 100, Time: time.Date(2026, 4, 5, 18, 0, 0, 0, time.UTC),
	},
}

func TestNotifier_Notify(t *testing.T) {
	t.Run("payload is published", func(t *testing.T) {
		conn := &fakeConn{}
		notifier := &Notifier{conn: conn, subject: "homewatch.presence"}
		if err := notifier.Notify(t.Context(), testMessage); err != nil {
			t.Fatal(err)
		}
		if conn.subject != "homewatch.presence" {
			t.Errorf("expected subject homewatch.presence, got %s", conn.subject)
		}
		var payload notify.Payload
		if err := json.Unmarshal(conn.data, &payload); err != nil {
			t.Fatal(err)
		}
		if payload.Kind != "arrived_home" || !payload.InHome || payload.Distance != 100 {
			t.Errorf("unexpected payload: %+v", payload)
		}
	})
	t.Run("publish errors are returned", func(t *testing.T) {
		notifier := &Notifier{conn: &fakeConn{pubErr: nats.ErrConnectionClosed}, subject: "s"}
		if err := notifier.Notify(t.Context(), testMessage); !errors.Is(err, nats.ErrConnectionClosed) {
			t.Errorf("expected error to wrap %s, got %v", nats.ErrConnectionClosed, err)
		}
	})
	t.Run("flush errors are returned", func(t *testing.T) {
		notifier := &Notifier{conn: &fakeConn{flushErr: context.DeadlineExceeded}, subject: "s"}
		if err := notifier.Notify(t.Context(), testMessage); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected error to wrap %s, got %v", context.DeadlineExceeded, err)
		}
	})
	t.Run("close closes the connection", func(t *testing.T) {
		conn := &fakeConn{}
		if err := (&Notifier{conn: conn}).Close(); err != nil {
			t.Fatal(err)
		}
		if !conn.closed {
			t.Error("expected connection to be closed")
		}
	})
}

func TestNew_integration(t *testing.T) {
	url := os.Getenv("HOMEWATCH_TEST_NATS_URL")
	if url == "" {
		t.Skip("HOMEWATCH_TEST_NATS_URL not set")
	}
	notifier, err := New(url, "homewatch.test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = notifier.Close() })
	if err = notifier.Notify(t.Context(), testMessage); err != nil {
		t.Fatal(err)
	}
}

func TestNew(t *testing.T) {
	if _, err := New("nats://127.0.0.1:1", "s"); err == nil {
		t.Error("expected connecting to a closed port to fail")
	}
}
