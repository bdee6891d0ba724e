// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/wneessen/homewatch/internal/config"
	"github.com/wneessen/homewatch/internal/geo"
	"github.com/wneessen/homewatch/internal/geocode"
	"github.com/wneessen/homewatch/internal/i18n"
	"github.com/wneessen/homewatch/internal/logger"
	"github.com/wneessen/homewatch/internal/metrics"
	"github.com/wneessen/homewatch/internal/notify"
	"github.com/wneessen/homewatch/internal/presence"
	"github.com/wneessen/homewatch/internal/state"
	"github.com/wneessen/homewatch/internal/telemetry"
)

const pollJobName = "presence_poll_job"

// stateStore persists the presence state, implemented by *state.Store.
type stateStore interface {
	Load() presence.State
	Save(presence.State) error
	Path() string
}

type Service struct {
	config     *config.Config
	logger     *logger.Logger
	t          *i18n.Translator
	scheduler  gocron.Scheduler
	store      stateStore
	thresholds presence.Thresholds
	renderer   *notify.Renderer
	registry   *prom.Registry
	metrics    *metrics.Recorder

	fetcher  telemetry.Fetcher
	notifier notify.Notifier
	geocoder geocode.Geocoder
	home     geo.Coordinate
	closers  []io.Closer

	SignalSrc signalSource

	// pollJob is set once the state is loaded and the scheduler runs. Out of band poll requests
	// are dropped while it is nil.
	jobLock sync.RWMutex
	pollJob gocron.Job

	// cycleLock serializes poll cycles, the state below is only touched while holding it
	cycleLock sync.Mutex
	state     presence.State
	pending   bool

	statusLock sync.RWMutex
	status     metrics.Status
}

func New(conf *config.Config, log *logger.Logger, t *i18n.Translator) (*Service, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	thresholds, err := presence.NewThresholds(conf.Home.Radius, conf.HysteresisMargin())
	if err != nil {
		return nil, fmt.Errorf("invalid home thresholds: %w", err)
	}

	store, err := state.New(conf.State.File, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create state store: %w", err)
	}

	registry := prom.NewRegistry()
	service := &Service{
		config:     conf,
		logger:     log,
		t:          t,
		scheduler:  scheduler,
		store:      store,
		thresholds: thresholds,
		renderer:   notify.NewRenderer(t, conf.Location()),
		registry:   registry,
		metrics:    metrics.NewRecorder(registry),
		home:       geo.Coordinate{Lat: conf.Home.Latitude, Lon: conf.Home.Longitude},
		SignalSrc:  stdLibSignalSource{},
		state:      presence.DefaultState(),
	}
	service.status = metrics.Status{Device: conf.Device.Name, Presence: presence.Unknown.String()}
	return service, nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.selectProviders(ctx); err != nil {
		return err
	}
	defer s.close()

	if err := s.resolveHome(ctx); err != nil {
		return err
	}

	s.cycleLock.Lock()
	s.state = s.store.Load()
	loaded := s.state
	s.cycleLock.Unlock()
	s.metrics.ObserveState(inHome(loaded.Presence), loaded.LastTimestamp)
	s.updateStatus(func(st *metrics.Status) {
		st.Presence = loaded.Presence.String()
		st.LastTimestamp = loaded.LastTimestamp
	})
	s.logger.Info("watching device", slog.String("device", s.config.Device.Name),
		slog.String("home", s.home.String()), slog.Float64("radius", s.thresholds.EnterRadius),
		slog.Float64("hysteresis", s.thresholds.HysteresisMargin), slog.String("telemetry", s.fetcher.Name()),
		slog.String("state", loaded.Presence.String()), slog.Int64("last_ts", loaded.LastTimestamp))

	if starter, ok := s.fetcher.(telemetry.Starter); ok {
		starter.Start(ctx)
	}

	if s.config.Metrics.Listen != "" {
		srv, err := metrics.NewServer(s.config.Metrics.Listen, metrics.Handler(s.registry, s.Status), s.logger)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		go srv.Run(ctx)
	}

	// Start scheduled jobs
	job, err := s.createScheduledJob(ctx, s.config.Intervals.Poll, s.cycle, pollJobName)
	if err != nil {
		return err
	}
	s.scheduler.Start()
	s.setPollJob(job)

	if !s.config.DisableSleepMonitor {
		go s.monitorSleepResume(ctx)
	}

	// Wait for the context to cancel
	<-ctx.Done()
	s.setPollJob(nil)
	return s.scheduler.Shutdown()
}

// pollNow asks the scheduler to run the poll job right away. Requests that arrive before Run
// has loaded the state, or after it stopped, are dropped.
func (s *Service) pollNow(reason string) bool {
	s.jobLock.RLock()
	job := s.pollJob
	s.jobLock.RUnlock()
	if job == nil {
		s.logger.Warn("service not running yet, ignoring poll request", slog.String("reason", reason))
		return false
	}
	if err := job.RunNow(); err != nil {
		s.logger.Error("failed to request poll", slog.String("reason", reason), logger.Err(err))
		return false
	}
	s.logger.Debug("poll requested", slog.String("reason", reason))
	return true
}

func (s *Service) setPollJob(job gocron.Job) {
	s.jobLock.Lock()
	defer s.jobLock.Unlock()
	s.pollJob = job
}

// Status returns a snapshot of the current presence state.
func (s *Service) Status() metrics.Status {
	s.statusLock.RLock()
	defer s.statusLock.RUnlock()
	return s.status
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) (gocron.Job, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName(jobName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return job, nil
}

// resolveHome looks up the configured home address if no coordinates are configured.
func (s *Service) resolveHome(ctx context.Context) error {
	if s.home.Lat != 0 || s.home.Lon != 0 {
		return nil
	}

	coder := s.geocoder
	if coder == nil {
		coder = s.forwardGeocoder()
	}
	ctxSearch, cancel := context.WithTimeout(ctx, s.config.Intervals.FetchTimeout)
	defer cancel()
	coords, err := coder.Search(ctxSearch, s.config.Home.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve home address: %w", err)
	}
	if !coords.Valid() {
		return fmt.Errorf("home address resolved to invalid coordinates %s", coords)
	}
	s.home = coords
	s.logger.Info("home address resolved", slog.String("address", s.config.Home.Address),
		slog.String("coordinates", coords.String()))
	return nil
}

func (s *Service) close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Error("failed to close provider", logger.Err(err))
		}
	}
}

// cycle runs one poll: fetch, guard, decide, notify and persist. Errors never leave the cycle.
func (s *Service) cycle(ctx context.Context) {
	s.cycleLock.Lock()
	defer s.cycleLock.Unlock()
	defer s.updateStatus(func(st *metrics.Status) {
		st.LastCycle = time.Now()
		st.PendingSave = s.pending
	})

	if s.pending {
		s.persist()
	}

	ctxFetch, cancelFetch := context.WithTimeout(ctx, s.config.Intervals.FetchTimeout)
	obs, err := s.fetcher.FetchLatest(ctxFetch, s.config.Device.Name)
	cancelFetch()
	switch {
	case errors.Is(err, telemetry.ErrNoObservation):
		s.logger.Warn("no location available for device yet", slog.String("device", s.config.Device.Name))
		s.metrics.IncCycle(metrics.CycleNoData)
		return
	case err != nil:
		s.logger.Error("failed to fetch latest location", slog.String("provider", s.fetcher.Name()),
			logger.Err(err))
		s.metrics.IncCycle(metrics.CycleFetchError)
		s.setLastError(err)
		return
	}
	if err = obs.Validate(); err != nil {
		s.logger.Error("received invalid observation", logger.Err(err))
		s.metrics.IncCycle(metrics.CycleInvalid)
		s.setLastError(err)
		return
	}

	distance := s.home.DistanceTo(obs.Coordinate())
	outcome := s.thresholds.Evaluate(s.state, obs.Timestamp, distance)
	if !outcome.Accepted {
		s.logger.Debug("observation already processed", slog.Int64("ts", obs.Timestamp),
			slog.Int64("last_ts", s.state.LastTimestamp))
		s.metrics.IncCycle(metrics.CycleStale)
		return
	}
	s.metrics.IncCycle(metrics.CycleAccepted)

	if outcome.Kind != presence.KindNone {
		s.announce(ctx, outcome, obs)
	}

	s.state = s.state.Apply(outcome, obs.Timestamp)
	s.persist()

	s.metrics.ObserveAccepted(distance, inHome(s.state.Presence), obs.Timestamp)
	s.updateStatus(func(st *metrics.Status) {
		st.Presence = s.state.Presence.String()
		st.LastTimestamp = s.state.LastTimestamp
		st.LastDistance = distance
		st.LastError = ""
	})
	s.logger.Info("observation processed", slog.Int64("distance", int64(distance)),
		slog.String("presence", s.state.Presence.String()), slog.String("kind", outcome.Kind.String()),
		slog.Time("observed", obs.Time()))
}

// announce renders and sends the notification for an outcome. Delivery is best effort.
func (s *Service) announce(ctx context.Context, outcome presence.Outcome, obs telemetry.Observation) {
	event := notify.Event{
		Kind:     outcome.Kind,
		Presence: outcome.Next,
		Device:   s.config.Device.Name,
		Distance: outcome.Distance,
		Time:     obs.Time(),
	}
	if s.geocoder != nil {
		ctxGeo, cancelGeo := context.WithTimeout(ctx, s.config.Intervals.FetchTimeout)
		addr, err := s.geocoder.Reverse(ctxGeo, obs.Coordinate())
		cancelGeo()
		if err != nil {
			s.logger.Debug("failed to resolve address of observation", logger.Err(err))
		}
		if err == nil && addr.AddressFound {
			event.Address = addr.Short()
		}
	}

	msg, ok := s.renderer.Render(event)
	if !ok {
		return
	}
	s.metrics.IncAnnouncement(outcome.Kind.String())

	ctxNotify, cancelNotify := context.WithTimeout(ctx, s.config.Intervals.NotifyTimeout)
	defer cancelNotify()
	if err := s.notifier.Notify(ctxNotify, msg); err != nil {
		s.metrics.IncNotification(false)
		if errors.Is(err, notify.ErrMissingCredentials) {
			s.logger.Warn("notification not sent, notifier is not configured", slog.String("subject", msg.Subject),
				logger.Err(err))
			return
		}
		s.logger.Error("failed to send notification", slog.String("subject", msg.Subject), logger.Err(err))
		return
	}
	s.metrics.IncNotification(true)
	s.logger.Debug("notification sent", slog.String("subject", msg.Subject), slog.String("event_id", msg.Event.ID))
}

// persist writes the in-memory state. On failure the state stays pending and is written again
// at the start of the next cycle.
func (s *Service) persist() {
	if err := s.store.Save(s.state); err != nil {
		s.pending = true
		s.metrics.IncPersistError()
		s.setLastError(err)
		s.logger.Error("failed to save presence state, retrying next cycle", slog.String("path", s.store.Path()),
			logger.Err(err))
		return
	}
	if s.pending {
		s.logger.Info("pending presence state saved", slog.String("path", s.store.Path()))
	}
	s.pending = false
}

func (s *Service) updateStatus(fn func(*metrics.Status)) {
	s.statusLock.Lock()
	defer s.statusLock.Unlock()
	fn(&s.status)
}

func (s *Service) setLastError(err error) {
	s.updateStatus(func(st *metrics.Status) {
		st.LastError = err.Error()
	})
}

func inHome(p presence.Presence) *bool {
	var val bool
	switch p {
	case presence.Home:
		val = true
	case presence.Away:
		val = false
	default:
		return nil
	}
	return &val
}
