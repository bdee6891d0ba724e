// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package mqtt publishes notifications to an MQTT broker.
package mqtt

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/wneessen/homewatch/internal/notify"
)

const (
	name = "mqtt"

	connectTimeout = time.Second * 10
)

type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	Retained bool
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Notifier publishes the JSON payload of a message with QoS 1.
type Notifier struct {
	client   publisher
	topic    string
	retained bool
}

// New connects to the broker. The client reconnects on its own after the initial connection.
func New(conf Config) (*Notifier, error) {
	opts := paho.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID(conf.ClientID).
		SetUsername(conf.Username).
		SetPassword(conf.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection to MQTT broker %s timed out", conf.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return &Notifier{client: client, topic: conf.Topic, retained: conf.Retained}, nil
}

func (n *Notifier) Name() string {
	return name
}

func (n *Notifier) Notify(ctx context.Context, msg notify.Message) error {
	payload, err := msg.JSON()
	if err != nil {
		return err
	}

	token := n.client.Publish(n.topic, 1, n.retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("failed to publish to MQTT topic %q: %w", n.topic, ctx.Err())
	}
	if err = token.Error(); err != nil {
		return fmt.Errorf("failed to publish to MQTT topic %q: %w", n.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (n *Notifier) Close() error {
	n.client.Disconnect(1000)
	return nil
}
