// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package metrics exposes the poll loop state as Prometheus metrics.
package metrics

import (
	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "homewatch"

// CycleResult labels the outcome of a poll cycle.
type CycleResult string

const (
	CycleAccepted   CycleResult = "accepted"
	CycleStale      CycleResult = "stale"
	CycleNoData     CycleResult = "no_data"
	CycleFetchError CycleResult = "fetch_error"
	CycleInvalid    CycleResult = "invalid"
)

// Recorder records poll loop metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	cycles        *prom.CounterVec
	transitions   *prom.CounterVec
	notifications *prom.CounterVec
	persistErrors prom.Counter
	distance      prom.Gauge
	presence      prom.Gauge
	lastTimestamp prom.Gauge
}

// NewRecorder creates the metrics and registers them together with the Go and process
// collectors on reg.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		cycles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Poll cycles by result",
		}, []string{"result"}),
		transitions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "announcements_total",
			Help:      "Presence announcements and transitions by kind",
		}, []string{"kind"}),
		notifications: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by result",
		}, []string{"result"}),
		persistErrors: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "state_save_failures_total",
			Help:      "Failed attempts to write the state file",
		}),
		distance: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "distance_meters",
			Help:      "Distance of the last accepted observation to home",
		}),
		presence: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "presence",
			Help:      "Current presence: 1 home, 0 away, -1 unknown",
		}),
		lastTimestamp: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_observation_timestamp_seconds",
			Help:      "Timestamp of the last accepted observation",
		}),
	}
	r.presence.Set(-1)
	reg.MustRegister(r.cycles, r.transitions, r.notifications, r.persistErrors, r.distance, r.presence,
		r.lastTimestamp)
	reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	return r
}

func (r *Recorder) IncCycle(result CycleResult) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(string(result)).Inc()
}

func (r *Recorder) IncAnnouncement(kind string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(kind).Inc()
}

func (r *Recorder) IncNotification(success bool) {
	if r == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	r.notifications.WithLabelValues(res).Inc()
}

func (r *Recorder) IncPersistError() {
	if r == nil {
		return
	}
	r.persistErrors.Inc()
}

// ObserveAccepted updates the gauges after an accepted observation. inHome is nil while the
// presence is unknown.
func (r *Recorder) ObserveAccepted(distance float64, inHome *bool, timestampMs int64) {
	if r == nil {
		return
	}
	r.distance.Set(distance)
	r.ObserveState(inHome, timestampMs)
}

// ObserveState sets the presence and timestamp gauges, e.g. from the state loaded at startup.
func (r *Recorder) ObserveState(inHome *bool, timestampMs int64) {
	if r == nil {
		return
	}
	if timestampMs > 0 {
		r.lastTimestamp.Set(float64(timestampMs) / 1000)
	}
	switch {
	case inHome == nil:
		r.presence.Set(-1)
	case *inHome:
		r.presence.Set(1)
	default:
		r.presence.Set(0)
	}
}
