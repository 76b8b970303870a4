// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamtap/streamtap/extract"
	"github.com/streamtap/streamtap/log"
	"github.com/streamtap/streamtap/runner"
)

const shutdownTimeout = 5 * time.Second

// StatusSource exposes the state of a running pipeline.
type StatusSource interface {
	RunID() string
	Session() (extract.Session, bool)
	Candidates() []string
	Blocking() bool
}

// Server is the HTTP status server
type Server struct {
	status   StatusSource
	gatherer prometheus.Gatherer
	started  time.Time
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
}

// SessionResponse is the body of GET /session
type SessionResponse struct {
	RunID      string             `json:"run_id"`
	Server     string             `json:"server"`
	Code       string             `json:"code"`
	Candidates []string           `json:"candidates,omitempty"`
	Blocking   bool               `json:"blocking"`
	Warnings   []runner.ErrorCode `json:"warnings,omitempty"`
}

// NewServer creates a status server over status. A nil gatherer serves the
// default Prometheus registry.
func NewServer(status StatusSource, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		status:   status,
		gatherer: gatherer,
		started:  time.Now(),
	}
}

// Handler returns the router serving every endpoint.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.HealthHandler)
	r.HandleFunc("/session", s.SessionHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

// HealthHandler handles GET and HEAD /health requests
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	})
}

// SessionHandler handles GET /session requests. While no session is
// resolved it answers 404 with a SESSION_PENDING error body.
func (s *Server) SessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, ok := s.status.Session()
	if !ok {
		writeError(w, http.StatusNotFound, runner.ErrCodeSessionPending,
			fmt.Sprintf("no streaming session resolved yet (%d endpoint candidates)", len(s.status.Candidates())))
		return
	}

	resp := SessionResponse{
		RunID:    s.status.RunID(),
		Server:   session.Server,
		Code:     session.Code,
		Blocking: s.status.Blocking(),
	}
	if getBoolParam(r.URL.Query(), "candidates", true) {
		resp.Candidates = session.Candidates
	}
	if session.Ambiguous() {
		resp.Warnings = []runner.ErrorCode{runner.ErrCodeAmbiguousEndpoint}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Debugf("Starting HTTP server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("status server on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
