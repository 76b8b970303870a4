// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package interdict drops the outbound traffic of one process to a fixed
// set of ports through a kernel packet filter.
package interdict

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streamtap/streamtap/common"
	"github.com/streamtap/streamtap/log"
	"github.com/streamtap/streamtap/metrics"
)

// FilterSession describes the open filter.
type FilterSession struct {
	Spec       BlockSpec
	Expression string
	OpenedAt   time.Time

	filter Filter
}

// Controller owns at most one filter session for the process lifetime.
type Controller struct {
	driver       FilterDriver
	processes    ProcessManager
	restartGrace time.Duration
	metrics      *metrics.Registry

	mu         sync.Mutex
	session    *FilterSession
	activating bool
	// closing is set by Deactivate while an activation is in flight
	closing bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithRestartGrace sets how long Activate waits between terminating the
// target process and opening the filter.
func WithRestartGrace(d time.Duration) Option {
	return func(c *Controller) {
		c.restartGrace = d
	}
}

// WithMetrics records kills and filter state in m.
func WithMetrics(m *metrics.Registry) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// NewController returns a controller with no open session.
func NewController(driver FilterDriver, processes ProcessManager, opts ...Option) *Controller {
	c := &Controller{
		driver:       driver,
		processes:    processes,
		restartGrace: common.DefaultRestartGrace,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate terminates every running instance of the target process, waits
// for it to be relaunched, then opens the filter. Failing to terminate an
// instance is logged and ignored. On error no session is retained.
func (c *Controller) Activate(ctx context.Context, spec BlockSpec) (*FilterSession, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.session != nil || c.activating {
		c.mu.Unlock()
		return nil, ErrSessionAlreadyOpen
	}
	c.activating = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.activating = false
		c.closing = false
		c.mu.Unlock()
	}()

	c.terminate(ctx, spec.TargetProcessName)

	if c.restartGrace > 0 {
		log.Infof("waiting %s for %s to restart", c.restartGrace, spec.TargetProcessName)
		timer := time.NewTimer(c.restartGrace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.isClosing() {
		return nil, ErrDeactivated
	}

	expr := spec.FilterExpression()
	filter, err := c.driver.Open(expr)
	if err != nil {
		c.metrics.IncFilterOpenFailures()
		return nil, &FilterOpenError{Expression: expr, Err: err}
	}
	if filter == nil {
		c.metrics.IncFilterOpenFailures()
		return nil, &FilterOpenError{Expression: expr, Err: fmt.Errorf("driver returned no handle")}
	}

	session := &FilterSession{
		Spec:       spec,
		Expression: expr,
		OpenedAt:   time.Now(),
		filter:     filter,
	}
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		if err := filter.Close(); err != nil {
			_ = log.Warnf("failed to close packet filter opened during shutdown: %s", err)
		}
		return nil, ErrDeactivated
	}
	c.session = session
	c.mu.Unlock()

	c.metrics.SetFilterOpen(true)
	log.Infof("blocking traffic of %s", spec)
	return session, nil
}

func (c *Controller) terminate(ctx context.Context, name string) {
	pids, err := c.processes.FindByName(ctx, name)
	if err != nil {
		_ = log.Warnf("failed to list %s processes: %s", name, err)
		return
	}
	if len(pids) == 0 {
		log.Debugf("no running %s process", name)
		return
	}
	for _, pid := range pids {
		if err := c.processes.Kill(ctx, pid); err != nil {
			c.metrics.IncTerminated("error")
			_ = log.Warnf("failed to terminate %s (pid %d): %s", name, pid, err)
			continue
		}
		c.metrics.IncTerminated("ok")
		log.Infof("terminated %s (pid %d)", name, pid)
	}
}

func (c *Controller) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// Deactivate closes the session if one is open. It is safe to call any
// number of times, including before Activate. An activation still in
// flight is aborted and closes whatever filter it opens.
func (c *Controller) Deactivate() error {
	c.mu.Lock()
	if c.activating {
		c.closing = true
	}
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	c.metrics.SetFilterOpen(false)
	if err := session.filter.Close(); err != nil {
		return fmt.Errorf("failed to close packet filter: %w", err)
	}
	log.Infof("stopped blocking traffic of %s", session.Spec.TargetProcessName)
	return nil
}

// Session returns the open session, or nil.
func (c *Controller) Session() *FilterSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
