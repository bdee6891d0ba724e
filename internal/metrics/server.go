// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wneessen/homewatch/internal/logger"
)

// Status is the document served on /status.
type Status struct {
	Device        string    `json:"device"`
	Presence      string    `json:"presence"`
	LastTimestamp int64     `json:"last_ts"`
	LastDistance  float64   `json:"last_distance_m"`
	LastCycle     time.Time `json:"last_cycle"`
	PendingSave   bool      `json:"pending_save"`
	LastError     string    `json:"last_error,omitempty"`
}

type StatusFunc func() Status

// Server serves /metrics and /status.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *logger.Logger
}

// Handler returns the HTTP handler with both endpoints.
func Handler(reg *prom.Registry, status StatusFunc) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return mux
}

// NewServer binds addr right away so configuration errors surface at startup.
func NewServer(addr string, handler http.Handler, log *logger.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &Server{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: time.Second * 5,
		},
		listener: listener,
		logger:   log,
	}, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to shut down metrics server", logger.Err(err))
		}
	}()

	s.logger.Info("serving metrics", slog.String("address", s.Addr()))
	if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("metrics server failed", logger.Err(err))
	}
}
