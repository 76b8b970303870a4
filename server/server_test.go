// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamtap/streamtap/extract"
	"github.com/streamtap/streamtap/metrics"
	"github.com/streamtap/streamtap/runner"
)

type fakeStatus struct {
	session    extract.Session
	resolved   bool
	candidates []string
	blocking   bool
}

func (f *fakeStatus) RunID() string { return "run-1" }

func (f *fakeStatus) Session() (extract.Session, bool) { return f.session, f.resolved }

func (f *fakeStatus) Candidates() []string { return f.candidates }

func (f *fakeStatus) Blocking() bool { return f.blocking }

func resolvedStatus() *fakeStatus {
	return &fakeStatus{
		resolved: true,
		blocking: true,
		session: extract.Session{
			Server:     "rtmp://a.example/app/third",
			Code:       "stream-abc",
			Candidates: []string{"rtmp://a.example/app/third", "rtmp://b.example/app/third"},
		},
	}
}

func TestNewServer(t *testing.T) {
	srv := NewServer(&fakeStatus{}, nil)
	require.NotNil(t, srv, "NewServer() returned nil")
	assert.Equal(t, prometheus.DefaultGatherer, srv.gatherer)
}

func TestHealthHandler(t *testing.T) {
	srv := NewServer(&fakeStatus{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.HealthHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response HealthResponse
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, "healthy", response.Status)
	assert.NotEmpty(t, response.Timestamp)
	assert.NotEmpty(t, response.Uptime)
}

func TestHealthHandlerHead(t *testing.T) {
	srv := NewServer(&fakeStatus{}, nil)
	req := httptest.NewRequest(http.MethodHead, "/health", nil)
	w := httptest.NewRecorder()

	srv.HealthHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Body.String())
}

func TestHealthHandlerMethodNotAllowed(t *testing.T) {
	srv := NewServer(&fakeStatus{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()

	srv.HealthHandler(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestSessionHandlerPending(t *testing.T) {
	srv := NewServer(&fakeStatus{candidates: []string{"rtmp://a.example/app/third"}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	w := httptest.NewRecorder()

	srv.SessionHandler(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var errResp runner.ErrorResponse
	err := json.NewDecoder(w.Body).Decode(&errResp)
	require.NoError(t, err)
	assert.Equal(t, runner.ErrCodeSessionPending, errResp.Code)
	assert.Contains(t, errResp.Message, "1 endpoint candidates")
}

func TestSessionHandlerResolved(t *testing.T) {
	srv := NewServer(resolvedStatus(), nil)
	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	w := httptest.NewRecorder()

	srv.SessionHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp SessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "rtmp://a.example/app/third", resp.Server)
	assert.Equal(t, "stream-abc", resp.Code)
	assert.Len(t, resp.Candidates, 2)
	assert.True(t, resp.Blocking)
	assert.Equal(t, []runner.ErrorCode{runner.ErrCodeAmbiguousEndpoint}, resp.Warnings)
}

func TestSessionHandlerWithoutCandidates(t *testing.T) {
	srv := NewServer(resolvedStatus(), nil)
	req := httptest.NewRequest(http.MethodGet, "/session?candidates=false", nil)
	w := httptest.NewRecorder()

	srv.SessionHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp SessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Empty(t, resp.Candidates)
}

func TestSessionHandlerMethodNotAllowed(t *testing.T) {
	srv := NewServer(resolvedStatus(), nil)
	req := httptest.NewRequest(http.MethodDelete, "/session", nil)
	w := httptest.NewRecorder()

	srv.SessionHandler(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandlerRoutes(t *testing.T) {
	reg := metrics.New()
	reg.IncIngested()
	srv := NewServer(resolvedStatus(), reg.Gatherer())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "streamtap_segments_ingested_total 1")

	resp, err = http.Get(ts.URL + "/session")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartStopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- NewServer(&fakeStatus{}, nil).Start(ctx, addr)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
