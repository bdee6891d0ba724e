// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package nats publishes notifications on a NATS subject.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wneessen/homewatch/internal/notify"
)

const name = "nats"

type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

type Notifier struct {
	conn    conn
	subject string
}

func New(url, subject string) (*Notifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("homewatch"),
		nats.Timeout(time.Second*10),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Notifier{conn: nc, subject: subject}, nil
}

func (n *Notifier) Name() string {
	return name
}

// Notify publishes the JSON payload and waits for the server to acknowledge the flush.
func (n *Notifier) Notify(ctx context.Context, msg notify.Message) error {
	payload, err := msg.JSON()
	if err != nil {
		return err
	}
	if err = n.conn.Publish(n.subject, payload); err != nil {
		return fmt.Errorf("failed to publish to NATS subject %q: %w", n.subject, err)
	}
	if err = n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	return nil
}

func (n *Notifier) Close() error {
	n.conn.Close()
	return nil
}
