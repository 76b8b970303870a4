package runner

import (
	"time"

	"github.com/streamtap/streamtap/interdict"
)

// Params configures one pipeline run.
type Params struct {
	// Device is the capture device name. Empty means automatic selection.
	Device string
	// PcapFile replays a capture file instead of capturing live.
	PcapFile string
	// UseWindowsDriver captures through the Datadog network driver.
	UseWindowsDriver bool
	// CaptureTimeout bounds the extraction phase.
	CaptureTimeout time.Duration
	SkipLicense    bool

	OBSPath        string
	OBSProfilesDir string
	// OBSProcess is the process polled after launching OBS.
	OBSProcess    string
	StartTries    uint
	StartInterval time.Duration
	ConfigSettle  time.Duration

	Block        interdict.BlockSpec
	RestartGrace time.Duration
	LowEndDelay  time.Duration
	WinDivertDLL string
}
