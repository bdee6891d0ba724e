// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/homewatch/internal/logger"
)

const (
	logindManager   = "org.freedesktop.login1.Manager"
	prepareForSleep = "PrepareForSleep"

	sleepSignalBuffer = 8
	// resumeDebounce swallows the duplicate resume signals some systems emit
	resumeDebounce = 2 * time.Second
	// resumeSettleDelay gives wifi or the mobile uplink time to come back after a resume
	resumeSettleDelay = 10 * time.Second
	busRetryDelay     = 5 * time.Second
)

// monitorSleepResume polls the device once the machine wakes up from suspend, so a presence
// change that happened while sleeping is not reported one poll interval late. The logind
// subscription is re-established whenever the system bus goes away.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResume time.Time
	for {
		conn, err := s.subscribeSleepSignals(ctx)
		if err != nil {
			s.logger.Debug("sleep monitor unavailable", slog.Duration("retry_in", busRetryDelay), logger.Err(err))
			if !waitFor(ctx, busRetryDelay) {
				return
			}
			continue
		}

		signals := make(chan *dbus.Signal, sleepSignalBuffer)
		conn.Signal(signals)
		s.logger.Debug("watching for resume from sleep", slog.String("member", logindManager+"."+prepareForSleep))
		s.consumeSleepSignals(ctx, signals, &lastResume)

		conn.RemoveSignal(signals)
		if err = conn.Close(); err != nil {
			s.logger.Debug("failed to close system bus connection", logger.Err(err))
		}
		if !waitFor(ctx, busRetryDelay) {
			return
		}
	}
}

// subscribeSleepSignals connects to the system bus and subscribes to logind's PrepareForSleep.
// The connection is closed when ctx is done.
func (s *Service) subscribeSleepSignals(ctx context.Context) (*dbus.Conn, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	if err = conn.AddMatchSignalContext(ctx, dbus.WithMatchInterface(logindManager),
		dbus.WithMatchMember(prepareForSleep)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s.%s: %w", logindManager, prepareForSleep, err)
	}
	return conn, nil
}

// consumeSleepSignals handles signals until ctx is done or the bus connection drops.
func (s *Service) consumeSleepSignals(ctx context.Context, signals <-chan *dbus.Signal, lastResume *time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			s.processSleepSignal(ctx, sig, lastResume)
		}
	}
}

// processSleepSignal requests a poll for a PrepareForSleep(false) signal, which logind sends on
// resume. Resumes within resumeDebounce of the previous one are ignored.
func (s *Service) processSleepSignal(ctx context.Context, sig *dbus.Signal, lastResume *time.Time) {
	if sig == nil || len(sig.Body) != 1 {
		return
	}
	if sleeping, ok := sig.Body[0].(bool); !ok || sleeping {
		return
	}

	now := time.Now()
	if !lastResume.IsZero() && now.Sub(*lastResume) < resumeDebounce {
		return
	}
	*lastResume = now

	if !waitFor(ctx, resumeSettleDelay) {
		return
	}
	s.logger.Info("resumed from sleep, polling device location")
	s.pollNow("resume")
}

// waitFor blocks for d and reports false if ctx was done first.
func waitFor(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
