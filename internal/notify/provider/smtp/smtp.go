// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package smtp sends notifications as plain text mails.
package smtp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/wneessen/homewatch/internal/notify"
)

const (
	name = "smtp"

	DefaultTimeout = time.Second * 20
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	To       string
}

// Notifier delivers messages through an SMTP server with STARTTLS and SMTP AUTH.
type Notifier struct {
	conf   Config
	sendFn func(ctx context.Context, msg *mail.Msg) error
}

func New(conf Config) *Notifier {
	n := &Notifier{conf: conf}
	n.sendFn = n.send
	return n
}

func (n *Notifier) Name() string {
	return name
}

// Notify returns notify.ErrMissingCredentials without contacting the server if username,
// password or recipient are not configured.
func (n *Notifier) Notify(ctx context.Context, msg notify.Message) error {
	if n.conf.Username == "" || n.conf.Password == "" || n.recipients() == nil {
		return fmt.Errorf("%w: smtp username, password and recipient are required", notify.ErrMissingCredentials)
	}

	mailMsg, err := n.message(msg)
	if err != nil {
		return err
	}
	if err = n.sendFn(ctx, mailMsg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

func (n *Notifier) message(msg notify.Message) (*mail.Msg, error) {
	from := n.conf.From
	if from == "" {
		from = n.conf.Username
	}

	mailMsg := mail.NewMsg()
	if err := mailMsg.FromFormat(n.conf.FromName, from); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", from, err)
	}
	if err := mailMsg.To(n.recipients()...); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	mailMsg.Subject(msg.Subject)
	mailMsg.SetDate()
	mailMsg.SetMessageID()
	mailMsg.SetGenHeader("X-Homewatch-Event", msg.Event.ID)
	mailMsg.SetBodyString(mail.TypeTextPlain, msg.Body)
	return mailMsg, nil
}

func (n *Notifier) send(ctx context.Context, msg *mail.Msg) error {
	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	client, err := mail.NewClient(n.conf.Host,
		mail.WithPort(n.conf.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.conf.Username),
		mail.WithPassword(n.conf.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func (n *Notifier) recipients() []string {
	var list []string
	for _, addr := range strings.Split(n.conf.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			list = append(list, addr)
		}
	}
	return list
}
