// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package runner drives one run: license check, capture until a streaming
// session resolves, OBS hand-off and interdiction.
package runner

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/streamtap/streamtap/common"
	"github.com/streamtap/streamtap/extract"
	"github.com/streamtap/streamtap/interdict"
	"github.com/streamtap/streamtap/license"
	"github.com/streamtap/streamtap/log"
	"github.com/streamtap/streamtap/metrics"
	"github.com/streamtap/streamtap/obs"
	"github.com/streamtap/streamtap/packets"
	"github.com/streamtap/streamtap/sysinfo"
)

// Processes finds, kills and polls processes by executable name.
type Processes interface {
	interdict.ProcessManager
	obs.ProcessChecker
}

// Deps are the pipeline collaborators. Nil fields are replaced by the
// production implementations in NewPipeline.
type Deps struct {
	License    license.Checker
	OpenSource func(ctx context.Context) (packets.Source, error)
	Chooser    packets.Chooser
	Driver     interdict.FilterDriver
	Processes  Processes
	IsLowEnd   func(ctx context.Context) bool

	UpdateProfiles func(server, key string) ([]string, error)
	FindOBS        func(configured string) (string, error)
	LaunchOBS      func(path string) error
	// SaveOBSPath persists a discovered OBS path, it may be nil.
	SaveOBSPath func(path string) error

	Metrics *metrics.Registry
}

// Result is the outcome of a run that resolved a session.
type Result struct {
	RunID    string          `json:"run_id"`
	Session  extract.Session `json:"session"`
	Profiles []string        `json:"profiles,omitempty"`
	Blocking bool            `json:"blocking"`
	Warnings []ErrorCode     `json:"warnings,omitempty"`
}

// Pipeline runs the whole tool once. Its read accessors are safe to call
// from other goroutines while Run is in progress.
type Pipeline struct {
	params     Params
	deps       Deps
	runID      string
	engine     *extract.Engine
	controller *interdict.Controller
}

var errCaptureDeadline = errors.New("capture deadline exceeded")

// NewPipeline returns a pipeline for params.
func NewPipeline(params Params, deps Deps) *Pipeline {
	p := &Pipeline{params: params, runID: newRunID()}

	if params.CaptureTimeout <= 0 {
		p.params.CaptureTimeout = common.DefaultCaptureTimeout
	}
	if params.OBSProcess == "" {
		p.params.OBSProcess = common.DefaultCompanionBinary
	}
	if params.StartTries == 0 {
		p.params.StartTries = common.DefaultOBSStartTries
	}
	if params.StartInterval <= 0 {
		p.params.StartInterval = time.Second
	}
	if params.ConfigSettle < 0 {
		p.params.ConfigSettle = 0
	}

	if deps.OpenSource == nil {
		deps.OpenSource = func(context.Context) (packets.Source, error) {
			return openSource(p.params, deps.Chooser)
		}
	}
	if deps.Driver == nil {
		deps.Driver = interdict.NewDivertDriver(p.params.WinDivertDLL)
	}
	if deps.Processes == nil {
		deps.Processes = sysinfo.NewProcessTable()
	}
	if deps.IsLowEnd == nil {
		deps.IsLowEnd = sysinfo.IsLowEnd
	}
	if deps.UpdateProfiles == nil {
		deps.UpdateProfiles = func(server, key string) ([]string, error) {
			dir, err := obs.ProfilesDir(p.params.OBSProfilesDir)
			if err != nil {
				return nil, err
			}
			return obs.UpdateServiceConfigs(dir, server, key)
		}
	}
	if deps.FindOBS == nil {
		deps.FindOBS = obs.FindExecutable
	}
	if deps.LaunchOBS == nil {
		deps.LaunchOBS = obs.Launch
	}
	p.deps = deps

	p.engine = extract.NewEngine(
		extract.WithMetrics(deps.Metrics),
		extract.WithAmbiguityHandler(p.reportAmbiguity),
	)
	p.controller = interdict.NewController(deps.Driver, deps.Processes,
		interdict.WithRestartGrace(p.params.RestartGrace),
		interdict.WithMetrics(deps.Metrics),
	)
	return p
}

func newRunID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// RunID identifies this run in log lines.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Session returns the resolved session, if any.
func (p *Pipeline) Session() (extract.Session, bool) {
	return p.engine.Snapshot()
}

// Candidates returns the endpoint candidates seen so far.
func (p *Pipeline) Candidates() []string {
	return p.engine.Candidates()
}

// Blocking reports whether the interdiction filter is open.
func (p *Pipeline) Blocking() bool {
	return p.controller.Session() != nil
}

// Run executes the pipeline. Once the filter is open it blocks until ctx is
// done, and the filter is always closed before Run returns. A non-nil
// Result comes back with an error when the session was resolved but OBS
// or interdiction failed.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	log.Infof("[%s] run started", p.runID)
	defer func() {
		if err := p.controller.Deactivate(); err != nil {
			_ = log.Errorf("[%s] failed to close packet filter: %s", p.runID, err)
		}
	}()

	if err := p.checkLicense(ctx); err != nil {
		return nil, p.fail(err)
	}

	session, err := p.capture(ctx)
	if err != nil {
		return nil, p.fail(err)
	}
	log.Infof("[%s] server: %s", p.runID, session.Server)
	log.Infof("[%s] stream code: %s", p.runID, session.Code)

	res := &Result{RunID: p.runID, Session: session}
	if session.Ambiguous() {
		res.Warnings = append(res.Warnings, ErrCodeAmbiguousEndpoint)
	}

	if err := p.lowEndDelay(ctx); err != nil {
		return res, p.fail(err)
	}
	if err := p.handOff(ctx, res); err != nil {
		return res, p.fail(err)
	}
	if !res.Blocking {
		return res, nil
	}

	log.Infof("[%s] filter active, waiting for shutdown", p.runID)
	<-ctx.Done()
	return res, nil
}

func (p *Pipeline) fail(err error) error {
	classified := ClassifyError(err)
	p.deps.Metrics.IncRunError(string(classified.Code))
	_ = log.Errorf("[%s] %s: %s", p.runID, classified.Code, classified.Message)
	return classified
}

func (p *Pipeline) checkLicense(ctx context.Context) error {
	if p.params.SkipLicense || p.deps.License == nil {
		log.Infof("[%s] license check skipped", p.runID)
		return nil
	}
	resp, err := p.deps.License.Check(ctx)
	if err != nil {
		return err
	}
	if !resp.Authorized() {
		return &license.DeniedError{Msg: resp.Msg}
	}
	return nil
}

// capture runs the packet source until the engine resolves, the deadline
// expires, the source runs dry or reading fails. The source is closed on
// every path.
func (p *Pipeline) capture(ctx context.Context) (extract.Session, error) {
	src, err := p.deps.OpenSource(ctx)
	if err != nil {
		return extract.Session{}, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			_ = log.Warnf("[%s] failed to close capture source: %s", p.runID, err)
		}
	}()

	if err := src.SetFilter(common.DefaultCaptureFilter); err != nil {
		return extract.Session{}, &CaptureError{Source: p.sourceName(), Err: err}
	}
	src.OnPacket(p.engine.Handler())
	if err := src.Start(); err != nil {
		return extract.Session{}, &CaptureError{Source: p.sourceName(), Err: err}
	}
	log.Infof("[%s] capturing on %s, waiting up to %s for a streaming session", p.runID, p.sourceName(), p.params.CaptureTimeout)

	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	timer := time.AfterFunc(p.params.CaptureTimeout, func() { cancel(errCaptureDeadline) })
	defer timer.Stop()
	go func() {
		select {
		case <-src.Done():
			if err := src.Err(); err != nil {
				cancel(&CaptureError{Source: p.sourceName(), Err: err})
				return
			}
			cancel(ErrSourceExhausted)
		case <-waitCtx.Done():
		}
	}()

	session, err := p.engine.Wait(waitCtx)
	if err == nil {
		return session, nil
	}
	cause := context.Cause(waitCtx)
	if errors.Is(cause, errCaptureDeadline) {
		return extract.Session{}, &ExtractionTimeoutError{
			Timeout:    p.params.CaptureTimeout,
			Candidates: len(p.engine.Candidates()),
			CodeFound:  p.engine.HasCode(),
		}
	}
	return extract.Session{}, cause
}

func (p *Pipeline) sourceName() string {
	switch {
	case p.params.PcapFile != "":
		return p.params.PcapFile
	case p.params.UseWindowsDriver:
		return "windows driver"
	case p.params.Device != "":
		return p.params.Device
	default:
		return "selected device"
	}
}

// handOff rewrites the OBS profiles, launches OBS and opens the filter.
func (p *Pipeline) handOff(ctx context.Context, res *Result) error {
	s := res.Session
	updated, err := p.deps.UpdateProfiles(s.Server, s.Code)
	res.Profiles = updated
	if err != nil {
		_ = log.Warnf("[%s] OBS profiles not fully updated: %s", p.runID, err)
	}
	log.Infof("[%s] %d OBS profiles updated", p.runID, len(updated))
	if err := sleep(ctx, p.params.ConfigSettle); err != nil {
		return err
	}

	path, err := p.deps.FindOBS(p.params.OBSPath)
	if err != nil {
		_ = log.Warnf("[%s] OBS not configured, skipping interdiction: %s", p.runID, err)
		return nil
	}
	if path != p.params.OBSPath && p.deps.SaveOBSPath != nil {
		if err := p.deps.SaveOBSPath(path); err != nil {
			_ = log.Warnf("[%s] failed to save OBS path: %s", p.runID, err)
		}
	}

	if err := p.deps.LaunchOBS(path); err != nil {
		return &CompanionError{Err: err}
	}
	log.Infof("[%s] launched %s, waiting for %s", p.runID, path, p.params.OBSProcess)
	if err := obs.WaitRunning(ctx, p.deps.Processes, p.params.OBSProcess, p.params.StartInterval, p.params.StartTries); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &CompanionError{Err: err}
	}
	if err := p.lowEndDelay(ctx); err != nil {
		return err
	}

	fs, err := p.controller.Activate(ctx, p.params.Block)
	if err != nil {
		return err
	}
	res.Blocking = true
	log.Infof("[%s] filter open: %s", p.runID, fs.Expression)
	return nil
}

func (p *Pipeline) lowEndDelay(ctx context.Context) error {
	if p.params.LowEndDelay <= 0 || !p.deps.IsLowEnd(ctx) {
		return nil
	}
	log.Debugf("[%s] low-end system, waiting %s", p.runID, p.params.LowEndDelay)
	return sleep(ctx, p.params.LowEndDelay)
}

func (p *Pipeline) reportAmbiguity(s extract.Session) {
	log.Infof("[%s] %s, candidates:", p.runID, ErrCodeAmbiguousEndpoint)
	for i, c := range s.Candidates {
		log.Infof("[%s]   %d. %s", p.runID, i+1, c)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// openSource opens the packet source selected by params.
func openSource(params Params, choose packets.Chooser) (packets.Source, error) {
	switch {
	case params.PcapFile != "":
		src, err := packets.OpenOffline(params.PcapFile)
		if err != nil {
			return nil, &CaptureError{Source: params.PcapFile, Err: err}
		}
		return src, nil
	case params.UseWindowsDriver:
		if err := packets.StartDriver(); err != nil {
			return nil, &CaptureError{Source: "windows driver", Err: err}
		}
		src, err := packets.NewDriverSource()
		if err != nil {
			return nil, &CaptureError{Source: "windows driver", Err: err}
		}
		return src, nil
	}

	name := params.Device
	if name == "" {
		devices, err := packets.ListDevices()
		if err != nil {
			return nil, &CaptureError{Source: "device list", Err: err}
		}
		d, err := packets.SelectDevice(devices, choose)
		if err != nil {
			return nil, err
		}
		name = d.Name
		log.Infof("capturing on %s (%s)", d.Label(), d.Name)
	}
	src, err := packets.OpenLive(name, packets.DefaultCaptureConfig())
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, &CaptureError{Source: name, Err: fmt.Errorf("insufficient privileges: %w", err)}
		}
		return nil, &CaptureError{Source: name, Err: err}
	}
	return src, nil
}
