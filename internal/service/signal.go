// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// stdLibSignalSource is the production implementation.
type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals reacts to user signals until the context is done. SIGUSR1 polls the device
// immediately, SIGUSR2 logs the current presence status.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				s.pollNow("signal")
			case syscall.SIGUSR2:
				status := s.Status()
				s.logger.Info("presence status", slog.String("device", status.Device),
					slog.String("presence", status.Presence), slog.Int64("last_ts", status.LastTimestamp),
					slog.Float64("distance", status.LastDistance), slog.Bool("pending_save", status.PendingSave),
					slog.String("last_error", status.LastError))
			}
		}
	}
}
