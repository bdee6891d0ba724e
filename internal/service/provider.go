// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/homewatch/internal/config"
	"github.com/wneessen/homewatch/internal/geocode"
	nominatim "github.com/wneessen/homewatch/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/homewatch/internal/http"
	"github.com/wneessen/homewatch/internal/notify"
	"github.com/wneessen/homewatch/internal/notify/provider/mqtt"
	"github.com/wneessen/homewatch/internal/notify/provider/nats"
	"github.com/wneessen/homewatch/internal/notify/provider/smtp"
	"github.com/wneessen/homewatch/internal/telemetry"
	"github.com/wneessen/homewatch/internal/telemetry/provider/gpsd"
	"github.com/wneessen/homewatch/internal/telemetry/provider/observation_file"
	"github.com/wneessen/homewatch/internal/telemetry/provider/redis"
	"github.com/wneessen/homewatch/internal/telemetry/provider/thingsboard"
)

const (
	cacheHitTTL  = time.Hour * 6
	cacheMissTTL = time.Minute * 15
)

// selectProviders sets up the fetcher, the notifiers and the geocoder unless they are already set.
func (s *Service) selectProviders(ctx context.Context) error {
	if s.fetcher == nil {
		fetcher, err := s.selectFetcher()
		if err != nil {
			return fmt.Errorf("failed to create telemetry provider: %w", err)
		}
		s.fetcher = fetcher
	}
	if closer, ok := s.fetcher.(io.Closer); ok {
		s.closers = append(s.closers, closer)
	}

	if s.notifier == nil {
		notifier, err := s.selectNotifier()
		if err != nil {
			return fmt.Errorf("failed to create notification provider: %w", err)
		}
		s.notifier = notifier
	}

	if s.geocoder == nil && s.config.GeoCoder.Provider != "" {
		geocoder, err := s.selectGeocodeProvider(s.config, s.t.Language())
		if err != nil {
			return fmt.Errorf("failed to create geocode provider: %w", err)
		}
		s.geocoder = geocoder
	}

	return ctx.Err()
}

func (s *Service) selectFetcher() (telemetry.Fetcher, error) {
	conf := s.config.Telemetry
	switch conf.Provider {
	case config.TelemetryThingsBoardSQL:
		return &lazyFetcher{name: conf.Provider, connect: func(ctx context.Context) (telemetry.Fetcher, error) {
			return thingsboard.NewSQL(ctx, conf.ThingsBoardSQL.DSN)
		}}, nil
	case config.TelemetryThingsBoardExec:
		return thingsboard.NewExec(thingsboard.ExecConfig{
			Container: conf.ThingsBoardExec.Container,
			User:      conf.ThingsBoardExec.User,
			Database:  conf.ThingsBoardExec.Database,
			Sudo:      conf.ThingsBoardExec.Sudo,
		}), nil
	case config.TelemetryThingsBoardAPI:
		return thingsboard.NewAPI(http.New(s.logger), conf.ThingsBoardAPI.URL, conf.ThingsBoardAPI.Username,
			conf.ThingsBoardAPI.Password), nil
	case config.TelemetryRedis:
		return &lazyFetcher{name: conf.Provider, connect: func(ctx context.Context) (telemetry.Fetcher, error) {
			return redis.New(ctx, redis.Config{
				Addr:       conf.Redis.Addr,
				Password:   conf.Redis.Password,
				DB:         conf.Redis.DB,
				KeyPattern: conf.Redis.KeyPattern,
			})
		}}, nil
	case config.TelemetryGPSD:
		return gpsd.New(conf.GPSD.Host, conf.GPSD.Port, s.logger), nil
	case config.TelemetryFile:
		return observation_file.New(conf.File.Path), nil
	default:
		return nil, fmt.Errorf("unsupported telemetry provider: %s", conf.Provider)
	}
}

func (s *Service) selectNotifier() (notify.Notifier, error) {
	conf := s.config.Notify
	var notifiers notify.Multi
	for _, provider := range conf.Providers {
		switch provider {
		case config.NotifySMTP:
			notifiers = append(notifiers, smtp.New(smtp.Config{
				Host:     conf.SMTP.Host,
				Port:     conf.SMTP.Port,
				Username: conf.SMTP.Username,
				Password: conf.SMTP.Password,
				From:     conf.SMTP.From,
				FromName: conf.SMTP.FromName,
				To:       conf.SMTP.To,
			}))
		case config.NotifyMQTT:
			lazy := &lazyNotifier{name: provider, connect: func(context.Context) (notify.Notifier, error) {
				return mqtt.New(mqtt.Config{
					Broker:   conf.MQTT.Broker,
					Topic:    conf.MQTT.Topic,
					ClientID: conf.MQTT.ClientID,
					Username: conf.MQTT.Username,
					Password: conf.MQTT.Password,
					Retained: conf.MQTT.Retained,
				})
			}}
			notifiers = append(notifiers, lazy)
			s.closers = append(s.closers, lazy)
		case config.NotifyNATS:
			lazy := &lazyNotifier{name: provider, connect: func(context.Context) (notify.Notifier, error) {
				return nats.New(conf.NATS.URL, conf.NATS.Subject)
			}}
			notifiers = append(notifiers, lazy)
			s.closers = append(s.closers, lazy)
		case config.NotifyLog:
			notifiers = append(notifiers, notify.NewLogNotifier(s.logger))
		default:
			return nil, fmt.Errorf("unsupported notification provider: %s", provider)
		}
	}
	if len(notifiers) == 0 {
		return notify.NewLogNotifier(s.logger), nil
	}
	if len(notifiers) == 1 {
		return notifiers[0], nil
	}
	return notifiers, nil
}

func (s *Service) selectGeocodeProvider(conf *config.Config, lang language.Tag) (geocode.Geocoder, error) {
	var geocoder geocode.Geocoder

	switch conf.GeoCoder.Provider {
	case "nominatim":
		geocoder = geocode.NewCachedGeocoder(nominatim.New(http.New(s.logger), lang), cacheHitTTL, cacheMissTTL)
	default:
		return nil, fmt.Errorf("unsupported geocoder type: %s", conf.GeoCoder.Provider)
	}

	return geocoder, nil
}

// forwardGeocoder is used to resolve the home address when reverse geocoding is disabled.
func (s *Service) forwardGeocoder() geocode.Geocoder {
	return nominatim.New(http.New(s.logger), s.t.Language())
}

// lazyFetcher connects on first use, so an unreachable backend at startup is handled like any
// other fetch error and retried on the next cycle.
type lazyFetcher struct {
	name    string
	connect func(ctx context.Context) (telemetry.Fetcher, error)

	mu      sync.Mutex
	fetcher telemetry.Fetcher
}

func (l *lazyFetcher) Name() string {
	return l.name
}

func (l *lazyFetcher) FetchLatest(ctx context.Context, device string) (telemetry.Observation, error) {
	l.mu.Lock()
	if l.fetcher == nil {
		fetcher, err := l.connect(ctx)
		if err != nil {
			l.mu.Unlock()
			return telemetry.Observation{}, fmt.Errorf("failed to connect %s: %w", l.name, err)
		}
		l.fetcher = fetcher
	}
	fetcher := l.fetcher
	l.mu.Unlock()
	return fetcher.FetchLatest(ctx, device)
}

func (l *lazyFetcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if closer, ok := l.fetcher.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

type lazyNotifier struct {
	name    string
	connect func(ctx context.Context) (notify.Notifier, error)

	mu       sync.Mutex
	notifier notify.Notifier
}

func (l *lazyNotifier) Name() string {
	return l.name
}

func (l *lazyNotifier) Notify(ctx context.Context, msg notify.Message) error {
	l.mu.Lock()
	if l.notifier == nil {
		notifier, err := l.connect(ctx)
		if err != nil {
			l.mu.Unlock()
			return fmt.Errorf("failed to connect %s: %w", l.name, err)
		}
		l.notifier = notifier
	}
	notifier := l.notifier
	l.mu.Unlock()
	return notifier.Notify(ctx, msg)
}

func (l *lazyNotifier) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if closer, ok := l.notifier.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
