package cmd

import (
	"github.com/spf13/pflag"

	"github.com/streamtap/streamtap/common"
	"github.com/streamtap/streamtap/config"
	"github.com/streamtap/streamtap/interdict"
	"github.com/streamtap/streamtap/log"
	"github.com/streamtap/streamtap/runner"
)

// applyLogFlags sets the log level from --log-level, raised to debug by
// --verbose.
func applyLogFlags(levelName string, verbose bool) error {
	level, err := log.ParseLogLevel(levelName)
	if err != nil {
		return &runner.InvalidConfigError{Err: err}
	}
	if verbose && level < log.LevelDebug {
		level = log.LevelDebug
	}
	log.SetVerbose(true)
	log.SetLogLevel(level)
	return nil
}

// loadConfig reads the config file and lets explicitly set flags override it.
func loadConfig(flags *pflag.FlagSet, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &runner.InvalidConfigError{Err: err}
	}
	if flags.Changed("device") {
		cfg.Device = Args.device
	}
	if flags.Changed("timeout") {
		cfg.CaptureTimeout = Args.timeout
	}
	if flags.Changed("target-process") {
		cfg.TargetProcess = Args.targetProcess
	}
	if flags.Changed("block-port") {
		cfg.BlockPorts = append([]int(nil), Args.blockPorts...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, &runner.InvalidConfigError{Err: err}
	}
	return cfg, nil
}

func buildParams(cfg *config.Config) runner.Params {
	return runner.Params{
		Device:           cfg.Device,
		PcapFile:         Args.pcapFile,
		UseWindowsDriver: Args.useWindowsDriver,
		CaptureTimeout:   cfg.CaptureTimeout,
		SkipLicense:      Args.skipLicense,
		OBSPath:          cfg.OBSPath,
		OBSProfilesDir:   cfg.OBSProfilesDir,
		OBSProcess:       common.DefaultCompanionBinary,
		StartTries:       common.DefaultOBSStartTries,
		ConfigSettle:     common.DefaultConfigSettle,
		Block: interdict.BlockSpec{
			TargetProcessName: cfg.TargetProcess,
			Direction:         interdict.Outbound,
			DestinationPorts:  cfg.BlockPorts,
		},
		RestartGrace: cfg.RestartGrace,
		LowEndDelay:  cfg.LowEndDelay,
		WinDivertDLL: cfg.WinDivertDLL,
	}
}
