// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Server exposes the frame controller over HTTP while it is attached to a
// host: liveness with frame counters, attachment readiness, Prometheus
// counters and the latest published cadence state.
type Server struct {
	logger   *zap.Logger
	stats    *Stats
	version  string
	addr     string
	attached atomic.Bool
	state    func() any
	server   *http.Server
}

// NewServer creates a status server for the given counters.
func NewServer(addr, version string, stats *Stats, logger *zap.Logger) *Server {
	return &Server{
		addr:    addr,
		version: version,
		stats:   stats,
		logger:  logger,
	}
}

// SetReady records whether the interop module is attached to the host.
// /ready answers 503 before load and again after unload.
func (s *Server) SetReady(ready bool) {
	s.attached.Store(ready)
}

// SetStateFunc registers the source for /state. fn is called on the HTTP
// goroutine and must return a value safe to encode concurrently.
func (s *Server) SetStateFunc(fn func() any) {
	s.state = fn
}

// Handler returns the routes served by Start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/state", s.handleState)
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("status server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts the listener down, waiting up to five seconds for requests.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// healthResponse reports liveness. Status turns "degraded" once a
// wrapped update has panicked; the controller keeps running either way.
type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Uptime          string `json:"uptime"`
	Attached        bool   `json:"attached"`
	RealFrames      int64  `json:"real_frames"`
	BurstIterations int64  `json:"burst_iterations"`
	UpdateFailures  int64  `json:"update_failures"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:          "healthy",
		Version:         s.version,
		Uptime:          s.stats.Uptime().Truncate(time.Second).String(),
		Attached:        s.attached.Load(),
		RealFrames:      s.stats.RealFrames.Load(),
		BurstIterations: s.stats.BurstIterations.Load(),
		UpdateFailures:  s.stats.UpdateFailures.Load(),
	}
	if resp.UpdateFailures > 0 {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.attached.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "detached"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "attached"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.Write([]byte(s.stats.PrometheusMetrics()))
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	if s.state == nil {
		http.Error(w, "no cadence state published", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
