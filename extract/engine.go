// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package extract recovers an RTMP streaming destination, a server endpoint
// and a stream code, from captured TCP payloads.
package extract

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/streamtap/streamtap/log"
	"github.com/streamtap/streamtap/metrics"
	"github.com/streamtap/streamtap/packets"
)

// Session is the resolved streaming destination.
type Session struct {
	Server string `json:"server"`
	Code   string `json:"code"`
	// Candidates lists every endpoint seen when the session was resolved,
	// in discovery order. Server is always Candidates[0].
	Candidates []string `json:"candidates"`
}

// Ambiguous reports whether more than one endpoint was seen at resolution.
func (s Session) Ambiguous() bool {
	return len(s.Candidates) > 1
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records ingestion and resolution in m.
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithAmbiguityHandler registers a callback invoked once, outside the engine
// lock, when the session resolves with several endpoint candidates.
func WithAmbiguityHandler(fn func(Session)) Option {
	return func(e *Engine) {
		e.onAmbiguous = fn
	}
}

// Engine accumulates endpoint candidates and the stream code across
// segments until both are known, then latches. It is safe for concurrent
// use; Ingest serializes all state changes under one lock.
type Engine struct {
	mu         sync.Mutex
	candidates []string
	seen       map[string]struct{}
	code       string
	resolved   bool
	session    Session

	done    chan struct{}
	created time.Time

	metrics     *metrics.Registry
	onAmbiguous func(Session)
}

// NewEngine returns an unresolved engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		seen:    make(map[string]struct{}),
		done:    make(chan struct{}),
		created: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handler adapts the engine to a packet source callback.
func (e *Engine) Handler() packets.PacketHandler {
	return func(s packets.Segment) {
		e.Ingest(s.Payload)
	}
}

// Ingest scans one segment payload. It never blocks beyond the lock and
// never fails: undecodable payloads are dropped silently.
func (e *Engine) Ingest(payload []byte) {
	text, ok := decodeText(payload)
	if !ok {
		e.metrics.IncSkipped()
		return
	}
	e.metrics.IncIngested()

	fired, session := e.ingestText(text)
	if fired && session.Ambiguous() && e.onAmbiguous != nil {
		e.onAmbiguous(session)
	}
}

func (e *Engine) ingestText(text string) (bool, Session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.resolved {
		return false, Session{}
	}

	for _, endpoint := range findEndpoints(text) {
		if _, dup := e.seen[endpoint]; dup {
			continue
		}
		e.seen[endpoint] = struct{}{}
		e.candidates = append(e.candidates, endpoint)
		log.Infof("found streaming endpoint: %s", endpoint)
	}
	e.metrics.SetCandidates(len(e.candidates))

	if e.code == "" {
		if code, ok := findCode(text); ok {
			e.code = code
			e.metrics.SetCodeFound()
			log.Infof("found stream code: %s", code)
		}
	}

	if e.code == "" || len(e.candidates) == 0 {
		return false, Session{}
	}

	e.session = Session{
		Server:     e.candidates[0],
		Code:       e.code,
		Candidates: append([]string(nil), e.candidates...),
	}
	e.resolved = true
	close(e.done)

	if e.session.Ambiguous() {
		_ = log.Warnf("found %d streaming endpoints, using the first one: %s", len(e.candidates), strings.Join(e.candidates, ", "))
	}
	e.metrics.ObserveResolved(time.Since(e.created).Seconds(), e.session.Ambiguous())
	log.Infof("streaming session resolved: server=%s", e.session.Server)
	return true, e.session
}

// IsResolved reports whether the latch has fired.
func (e *Engine) IsResolved() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolved
}

// Snapshot returns the resolved session, or false while still listening.
func (e *Engine) Snapshot() (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.resolved {
		return Session{}, false
	}
	s := e.session
	s.Candidates = append([]string(nil), e.session.Candidates...)
	return s, true
}

// HasCode reports whether a stream code has been seen.
func (e *Engine) HasCode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.code != ""
}

// Candidates returns the endpoints discovered so far, in discovery order.
func (e *Engine) Candidates() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.candidates...)
}

// Done is closed exactly once, when the session resolves.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the session resolves or ctx is done.
func (e *Engine) Wait(ctx context.Context) (Session, error) {
	select {
	case <-e.done:
		s, _ := e.Snapshot()
		return s, nil
	case <-ctx.Done():
		// resolution and cancellation may race, the latch wins
		if s, ok := e.Snapshot(); ok {
			return s, nil
		}
		return Session{}, ctx.Err()
	}
}
