// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package notify

import (
	"context"
	"log/slog"

	"github.com/wneessen/homewatch/internal/logger"
)

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (l *LogNotifier) Name() string {
	return "log"
}

func (l *LogNotifier) Notify(_ context.Context, msg Message) error {
	l.logger.Info(msg.Subject, slog.String("body", msg.Body), slog.String("kind", msg.Event.Kind.String()),
		slog.String("event_id", msg.Event.ID))
	return nil
}
