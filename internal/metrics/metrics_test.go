// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wneessen/homewatch/internal/logger"
)

func TestRecorder(t *testing.T) {
	t.Run("counters and gauges are updated", func(t *testing.T) {
		reg := prom.NewRegistry()
		rec := NewRecorder(reg)
		rec.IncCycle(CycleAccepted)
		rec.IncCycle(CycleAccepted)
		rec.IncCycle(CycleStale)
		rec.IncAnnouncement("left_home")
		rec.IncNotification(true)
		rec.IncNotification(false)
		rec.IncPersistError()
		home := true
		rec.ObserveAccepted(50.5, &home, 1712345678000)

		if got := testutil.ToFloat64(rec.cycles.WithLabelValues("accepted")); got != 2 {
			t.Errorf("expected 2 accepted cycles, got %f", got)
		}
		if got := testutil.ToFloat64(rec.transitions.WithLabelValues("left_home")); got != 1 {
			t.Errorf("expected 1 left_home announcement, got %f", got)
		}
		if got := testutil.ToFloat64(rec.notifications.WithLabelValues("failed")); got != 1 {
			t.Errorf("expected 1 failed notification, got %f", got)
		}
		if got := testutil.ToFloat64(rec.persistErrors); got != 1 {
			t.Errorf("expected 1 persist error, got %f", got)
		}
		if got := testutil.ToFloat64(rec.distance); got != 50.5 {
			t.Errorf("expected distance 50.5, got %f", got)
		}
		if got := testutil.ToFloat64(rec.presence); got != 1 {
			t.Errorf("expected presence 1, got %f", got)
		}
		if got := testutil.ToFloat64(rec.lastTimestamp); got != 1712345678 {
			t.Errorf("expected timestamp 1712345678, got %f", got)
		}
	})
	t.Run("presence gauge maps unknown and away", func(t *testing.T) {
		rec := NewRecorder(nil)
		if got := testutil.ToFloat64(rec.presence); got != -1 {
			t.Errorf("expected initial presence -1, got %f", got)
		}
		away := false
		rec.ObserveAccepted(200, &away, 1)
		if got := testutil.ToFloat64(rec.presence); got != 0 {
			t.Errorf("expected presence 0, got %f", got)
		}
		rec.ObserveAccepted(200, nil, 1)
		if got := testutil.ToFloat64(rec.presence); got != -1 {
			t.Errorf("expected presence -1, got %f", got)
		}
	})
	t.Run("loaded state seeds the gauges without a distance", func(t *testing.T) {
		rec := NewRecorder(nil)
		home := true
		rec.ObserveState(&home, 5000)
		if got := testutil.ToFloat64(rec.presence); got != 1 {
			t.Errorf("expected presence 1, got %f", got)
		}
		if got := testutil.ToFloat64(rec.lastTimestamp); got != 5 {
			t.Errorf("expected timestamp 5, got %f", got)
		}
		if got := testutil.ToFloat64(rec.distance); got != 0 {
			t.Errorf("expected distance to stay unset, got %f", got)
		}
		rec.ObserveState(nil, 0)
		if got := testutil.ToFloat64(rec.presence); got != -1 {
			t.Errorf("expected presence -1, got %f", got)
		}
		if got := testutil.ToFloat64(rec.lastTimestamp); got != 5 {
			t.Errorf("expected a zero timestamp to be ignored, got %f", got)
		}
	})
	t.Run("nil recorder is a no-op", func(t *testing.T) {
		var rec *Recorder
		rec.ObserveState(nil, 1)
		rec.IncCycle(CycleNoData)
		rec.IncAnnouncement("none")
		rec.IncNotification(true)
		rec.IncPersistError()
		rec.ObserveAccepted(1, nil, 1)
	})
}

func TestHandler(t *testing.T) {
	reg := prom.NewRegistry()
	rec := NewRecorder(reg)
	rec.IncCycle(CycleFetchError)
	handler := Handler(reg, func() Status {
		return Status{Device: "car-1", Presence: "home", LastTimestamp: 42, PendingSave: true}
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `homewatch_cycles_total{result="fetch_error"} 1`) {
			t.Errorf("expected cycle counter in output, got:\n%s", rr.Body.String())
		}
	})
	t.Run("status endpoint", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var status Status
		if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
			t.Fatal(err)
		}
		if status.Device != "car-1" || status.Presence != "home" || status.LastTimestamp != 42 || !status.PendingSave {
			t.Errorf("unexpected status: %+v", status)
		}
	})
	t.Run("other methods are rejected", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/status", nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status 405, got %d", rr.Code)
		}
	})
}

func TestServer_Run(t *testing.T) {
	reg := prom.NewRegistry()
	NewRecorder(reg)
	srv, err := NewServer("127.0.0.1:0", Handler(reg, func() Status { return Status{} }), logger.New(slog.LevelDebug))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	resp, err := http.Get(fmt.Sprintf("http://%s/status", srv.Addr()))
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("server did not shut down")
	}
}

func TestNewServer(t *testing.T) {
	if _, err := NewServer("256.0.0.1:99999", http.NotFoundHandler(), logger.New(slog.LevelDebug)); err == nil {
		t.Error("expected invalid address to fail")
	}
}
