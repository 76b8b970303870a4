package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamtap/streamtap/interdict"
	"github.com/streamtap/streamtap/license"
	"github.com/streamtap/streamtap/obs"
	"github.com/streamtap/streamtap/packets"
)

const (
	testServer = "rtmp://live.example/app/third"
	testCode   = "stream-abc123-xyz"
)

// fakeSource delivers its payloads once started, then either ends (like an
// offline capture, or with readErr like an unplugged device) or idles
// until stopped.
type fakeSource struct {
	payloads [][]byte
	endless  bool
	readErr  error

	mu       sync.Mutex
	handler  packets.PacketHandler
	filter   string
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	closed   atomic.Int32
}

func newFakeSource(endless bool, payloads ...string) *fakeSource {
	s := &fakeSource{
		endless: endless,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, p := range payloads {
		s.payloads = append(s.payloads, []byte(p))
	}
	return s
}

func (s *fakeSource) SetFilter(expr string) error {
	s.filter = expr
	return nil
}

func (s *fakeSource) OnPacket(h packets.PacketHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *fakeSource) Start() error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	go func() {
		defer close(s.done)
		for _, p := range s.payloads {
			h(packets.Segment{Payload: p, Timestamp: time.Now()})
		}
		if s.endless {
			<-s.stop
		}
	}()
	return nil
}

func (s *fakeSource) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *fakeSource) Close() error {
	s.closed.Add(1)
	return s.Stop()
}

func (s *fakeSource) Done() <-chan struct{} {
	return s.done
}

func (s *fakeSource) Err() error {
	select {
	case <-s.done:
		return s.readErr
	default:
		return nil
	}
}

type fakeProcesses struct {
	mu      sync.Mutex
	running bool
	pids    []int32
	killed  []int32
}

func (f *fakeProcesses) FindByName(context.Context, string) ([]int32, error) {
	return f.pids, nil
}

func (f *fakeProcesses) Kill(_ context.Context, pid int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, pid)
	return nil
}

func (f *fakeProcesses) IsRunning(context.Context, string) (bool, error) {
	return f.running, nil
}

func testParams() Params {
	return Params{
		CaptureTimeout: 5 * time.Second,
		SkipLicense:    true,
		StartTries:     3,
		StartInterval:  time.Millisecond,
		Block: interdict.BlockSpec{
			TargetProcessName: "MediaSDK_Server.exe",
			DestinationPorts:  []int{1935, 443, 80},
		},
	}
}

// testDeps wires a resolving source and stubs every side effect.
func testDeps(src packets.Source, driver interdict.FilterDriver, procs *fakeProcesses) Deps {
	return Deps{
		OpenSource: func(context.Context) (packets.Source, error) { return src, nil },
		Driver:     driver,
		Processes:  procs,
		IsLowEnd:   func(context.Context) bool { return false },
		UpdateProfiles: func(server, key string) ([]string, error) {
			return []string{"profiles/Untitled/service.json"}, nil
		},
		FindOBS:   func(string) (string, error) { return "", obs.ErrNotFound },
		LaunchOBS: func(string) error { return nil },
	}
}

func resolvingSource() *fakeSource {
	return newFakeSource(true,
		"\x02\x00\x07connect tcUrl "+testServer+" flashVer",
		"publish "+testCode+" live",
	)
}

func TestPipelineResolvesWithoutOBS(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := interdict.NewMockFilterDriver(ctrl)

	src := resolvingSource()
	deps := testDeps(src, driver, &fakeProcesses{})
	var gotServer, gotKey string
	deps.UpdateProfiles = func(server, key string) ([]string, error) {
		gotServer, gotKey = server, key
		return []string{"a/service.json"}, nil
	}

	p := NewPipeline(testParams(), deps)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, testServer, res.Session.Server)
	assert.Equal(t, testCode, res.Session.Code)
	assert.Equal(t, testServer, gotServer)
	assert.Equal(t, testCode, gotKey)
	assert.Equal(t, []string{"a/service.json"}, res.Profiles)
	assert.False(t, res.Blocking)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, p.RunID(), res.RunID)

	assert.Equal(t, "tcp", src.filter)
	assert.Equal(t, int32(1), src.closed.Load())

	s, ok := p.Session()
	require.True(t, ok)
	assert.Equal(t, res.Session, s)
	assert.False(t, p.Blocking())
}

func TestPipelineActivatesAndHoldsUntilCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := interdict.NewMockFilterDriver(ctrl)
	filter := interdict.NewMockFilter(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var p *Pipeline
	driver.EXPECT().
		Open(`process.name == "MediaSDK_Server.exe" and outbound and (tcp.DstPort == 1935 or tcp.DstPort == 443 or tcp.DstPort == 80)`).
		DoAndReturn(func(string) (interdict.Filter, error) {
			go func() {
				// let Run reach the hold before interrupting it
				for !p.Blocking() {
					time.Sleep(time.Millisecond)
				}
				cancel()
			}()
			return filter, nil
		})
	filter.EXPECT().Close().Return(nil).Times(1)

	procs := &fakeProcesses{running: true, pids: []int32{41, 42}}
	deps := testDeps(resolvingSource(), driver, procs)
	deps.FindOBS = func(configured string) (string, error) { return `C:\obs\bin\64bit\obs64.exe`, nil }
	var launched, saved string
	deps.LaunchOBS = func(path string) error {
		launched = path
		return nil
	}
	deps.SaveOBSPath = func(path string) error {
		saved = path
		return nil
	}

	p = NewPipeline(testParams(), deps)
	res, err := p.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Blocking)
	assert.Equal(t, `C:\obs\bin\64bit\obs64.exe`, launched)
	assert.Equal(t, `C:\obs\bin\64bit\obs64.exe`, saved)
	assert.ElementsMatch(t, []int32{41, 42}, procs.killed)
	assert.False(t, p.Blocking(), "filter must be closed when Run returns")
}

func TestPipelineFilterOpenFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := interdict.NewMockFilterDriver(ctrl)
	driver.EXPECT().Open(gomock.Any()).Return(nil, errors.New("access denied"))

	deps := testDeps(resolvingSource(), driver, &fakeProcesses{running: true})
	deps.FindOBS = func(string) (string, error) { return "/opt/obs/obs", nil }

	p := NewPipeline(testParams(), deps)
	res, err := p.Run(context.Background())
	require.Error(t, err)

	var pipelineErr *PipelineError
	require.ErrorAs(t, err, &pipelineErr)
	assert.Equal(t, ErrCodeFilterOpenFailed, pipelineErr.Code)

	// extraction and the OBS update are kept
	require.NotNil(t, res)
	assert.Equal(t, testServer, res.Session.Server)
	assert.NotEmpty(t, res.Profiles)
	assert.False(t, res.Blocking)
}

func TestPipelineCompanionFailures(t *testing.T) {
	tests := []struct {
		name    string
		launch  error
		running bool
	}{
		{name: "launch fails", launch: errors.New("exec format error")},
		{name: "never starts", running: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			driver := interdict.NewMockFilterDriver(ctrl)

			deps := testDeps(resolvingSource(), driver, &fakeProcesses{running: tt.running})
			deps.FindOBS = func(string) (string, error) { return "/opt/obs/obs", nil }
			deps.LaunchOBS = func(string) error { return tt.launch }

			res, err := NewPipeline(testParams(), deps).Run(context.Background())
			var pipelineErr *PipelineError
			require.ErrorAs(t, err, &pipelineErr)
			assert.Equal(t, ErrCodeCompanionFailed, pipelineErr.Code)
			require.NotNil(t, res)
			assert.Equal(t, testCode, res.Session.Code)
		})
	}
}

func TestPipelineAmbiguousEndpointWarning(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := newFakeSource(true,
		"rtmp://a.example/app/third rtmp://b.example/app/third",
		"publish "+testCode+" live",
	)
	deps := testDeps(src, interdict.NewMockFilterDriver(ctrl), &fakeProcesses{})

	res, err := NewPipeline(testParams(), deps).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rtmp://a.example/app/third", res.Session.Server)
	assert.Equal(t, []string{"rtmp://a.example/app/third", "rtmp://b.example/app/third"}, res.Session.Candidates)
	assert.Equal(t, []ErrorCode{ErrCodeAmbiguousEndpoint}, res.Warnings)
}

func TestPipelineCaptureFailures(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := newFakeSource(true, "publish "+testCode+" live")
		params := testParams()
		params.CaptureTimeout = 20 * time.Millisecond

		_, err := NewPipeline(params, testDeps(src, interdict.NewMockFilterDriver(ctrl), &fakeProcesses{})).Run(context.Background())
		var pipelineErr *PipelineError
		require.ErrorAs(t, err, &pipelineErr)
		assert.Equal(t, ErrCodeExtractionTimeout, pipelineErr.Code)

		var timeoutErr *ExtractionTimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.True(t, timeoutErr.CodeFound)
		assert.Equal(t, 0, timeoutErr.Candidates)
		assert.Equal(t, int32(1), src.closed.Load())
	})

	t.Run("source exhausted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := newFakeSource(false, "rtmp://live.example/app/third")

		_, err := NewPipeline(testParams(), testDeps(src, interdict.NewMockFilterDriver(ctrl), &fakeProcesses{})).Run(context.Background())
		var pipelineErr *PipelineError
		require.ErrorAs(t, err, &pipelineErr)
		assert.Equal(t, ErrCodeSourceExhausted, pipelineErr.Code)
		assert.ErrorIs(t, err, ErrSourceExhausted)
	})

	t.Run("read error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		deviceGone := errors.New("device removed")
		src := newFakeSource(false, "rtmp://live.example/app/third")
		src.readErr = deviceGone
		params := testParams()
		params.Device = "eth0"

		_, err := NewPipeline(params, testDeps(src, interdict.NewMockFilterDriver(ctrl), &fakeProcesses{})).Run(context.Background())
		var pipelineErr *PipelineError
		require.ErrorAs(t, err, &pipelineErr)
		assert.Equal(t, ErrCodeCaptureFailed, pipelineErr.Code)
		assert.ErrorIs(t, err, deviceGone)
		assert.NotErrorIs(t, err, ErrSourceExhausted)
		assert.Contains(t, pipelineErr.Message, "eth0")
	})

	t.Run("canceled", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		src := newFakeSource(true)
		_, err := NewPipeline(testParams(), testDeps(src, interdict.NewMockFilterDriver(ctrl), &fakeProcesses{})).Run(ctx)
		var pipelineErr *PipelineError
		require.ErrorAs(t, err, &pipelineErr)
		assert.Equal(t, ErrCodeCanceled, pipelineErr.Code)
	})

	t.Run("start fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := packets.NewMockSource(ctrl)
		gomock.InOrder(
			src.EXPECT().SetFilter("tcp").Return(nil),
			src.EXPECT().OnPacket(gomock.Any()),
			src.EXPECT().Start().Return(errors.New("device gone")),
			src.EXPECT().Close().Return(nil),
		)

		params := testParams()
		params.Device = "eth0"
		_, err := NewPipeline(params, testDeps(src, interdict.NewMockFilterDriver(ctrl), &fakeProcesses{})).Run(context.Background())
		var pipelineErr *PipelineError
		require.ErrorAs(t, err, &pipelineErr)
		assert.Equal(t, ErrCodeCaptureFailed, pipelineErr.Code)
		assert.Contains(t, pipelineErr.Message, "eth0")
	})

	t.Run("no device", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		deps := testDeps(nil, interdict.NewMockFilterDriver(ctrl), &fakeProcesses{})
		deps.OpenSource = func(context.Context) (packets.Source, error) { return nil, packets.ErrNoDevice }

		_, err := NewPipeline(testParams(), deps).Run(context.Background())
		var pipelineErr *PipelineError
		require.ErrorAs(t, err, &pipelineErr)
		assert.Equal(t, ErrCodeNoDevice, pipelineErr.Code)
	})
}

func TestPipelineLicense(t *testing.T) {
	expiry := "2026-12-31"
	tests := []struct {
		name     string
		resp     *license.Response
		err      error
		wantCode ErrorCode
	}{
		{
			name:     "denied by server",
			err:      &license.DeniedError{Msg: "expired"},
			wantCode: ErrCodeLicenseDenied,
		},
		{
			name:     "unauthorized response",
			resp:     &license.Response{Code: "false", Msg: "unknown key"},
			wantCode: ErrCodeLicenseDenied,
		},
		{
			name:     "server down",
			err:      &license.UnavailableError{StatusCode: 503},
			wantCode: ErrCodeLicenseUnavailable,
		},
		{
			name: "authorized",
			resp: &license.Response{Code: "TRUE", Msg: "ok", Expiry: &expiry},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			checker := license.NewMockChecker(ctrl)
			checker.EXPECT().Check(gomock.Any()).Return(tt.resp, tt.err)

			opened := false
			deps := testDeps(nil, interdict.NewMockFilterDriver(ctrl), &fakeProcesses{})
			deps.License = checker
			deps.OpenSource = func(context.Context) (packets.Source, error) {
				opened = true
				return resolvingSource(), nil
			}
			params := testParams()
			params.SkipLicense = false

			res, err := NewPipeline(params, deps).Run(context.Background())
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.True(t, opened)
				assert.NotNil(t, res)
				return
			}
			var pipelineErr *PipelineError
			require.ErrorAs(t, err, &pipelineErr)
			assert.Equal(t, tt.wantCode, pipelineErr.Code)
			assert.False(t, opened, "capture must not start without a license")
		})
	}
}

func TestPipelineSkipLicense(t *testing.T) {
	ctrl := gomock.NewController(t)
	checker := license.NewMockChecker(ctrl)
	// no Check expectation: gomock fails the test if it is called

	deps := testDeps(resolvingSource(), interdict.NewMockFilterDriver(ctrl), &fakeProcesses{})
	deps.License = checker
	_, err := NewPipeline(testParams(), deps).Run(context.Background())
	require.NoError(t, err)
}

func TestRunIDsAreUnique(t *testing.T) {
	a := NewPipeline(testParams(), Deps{}).RunID()
	b := NewPipeline(testParams(), Deps{}).RunID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 22)
}
