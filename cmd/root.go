// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/streamtap/streamtap/common"
	"github.com/streamtap/streamtap/config"
	"github.com/streamtap/streamtap/license"
	"github.com/streamtap/streamtap/log"
	"github.com/streamtap/streamtap/metrics"
	"github.com/streamtap/streamtap/packets"
	"github.com/streamtap/streamtap/runner"
	"github.com/streamtap/streamtap/server"
)

type args struct {
	configPath       string
	device           string
	pcapFile         string
	timeout          time.Duration
	logLevel         string
	verbose          bool
	useWindowsDriver bool
	statusAddr       string
	skipLicense      bool
	targetProcess    string
	blockPorts       []int
}

var Args args

var rootCmd = &cobra.Command{
	Use:   "streamtap",
	Short: "Capture a live streaming session and hand it over to OBS",
	Long: `streamtap watches TCP traffic until the RTMP server and stream code of a
live session show up, writes them into every OBS profile, starts OBS and
blocks the original streaming client from publishing.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := applyLogFlags(Args.logLevel, Args.verbose); err != nil {
			return err
		}

		cfg, err := loadConfig(cmd.Flags(), Args.configPath)
		if err != nil {
			return err
		}

		reg := metrics.New()
		deps := runner.Deps{
			License: license.NewHTTPChecker(nil, cfg.AuthURL),
			Chooser: packets.PromptChooser(os.Stdin, os.Stdout),
			Metrics: reg,
			SaveOBSPath: func(path string) error {
				return config.SaveOBSPath(Args.configPath, path)
			},
		}
		pipeline := runner.NewPipeline(buildParams(cfg), deps)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		statusCtx, stopStatus := context.WithCancel(gctx)
		defer stopStatus()

		var result *runner.Result
		g.Go(func() error {
			defer stopStatus()
			var err error
			result, err = pipeline.Run(gctx)
			return err
		})
		if Args.statusAddr != "" {
			g.Go(func() error {
				log.Infof("status server listening on %s", Args.statusAddr)
				return server.NewServer(pipeline, reg.Gatherer()).Start(statusCtx, Args.statusAddr)
			})
		}

		err = g.Wait()
		if result != nil {
			jsonStr, jsonErr := json.MarshalIndent(result, "", "  ")
			if jsonErr != nil {
				return fmt.Errorf("JSON marshalling failed: %v", jsonErr)
			}
			fmt.Println(string(jsonStr))
		}
		return err
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&Args.configPath, "config", "c", common.DefaultConfigFile, "Path to the configuration file")
	rootCmd.Flags().StringVarP(&Args.device, "device", "d", "", "Capture device name (skips automatic selection)")
	rootCmd.Flags().StringVarP(&Args.pcapFile, "pcap-file", "r", "", "Replay a capture file instead of capturing live")
	rootCmd.Flags().DurationVarP(&Args.timeout, "timeout", "t", common.DefaultCaptureTimeout, "How long to wait for a streaming session")
	rootCmd.Flags().StringVarP(&Args.logLevel, "log-level", "l", "info", "Log level (error, warn, info, debug, trace)")
	rootCmd.Flags().BoolVarP(&Args.verbose, "verbose", "v", false, "Log at debug level or above")
	rootCmd.Flags().BoolVarP(&Args.useWindowsDriver, "windows-driver", "", false, "Capture through the Windows network driver (Windows only)")
	rootCmd.Flags().StringVarP(&Args.statusAddr, "status-addr", "", "", "Serve /health, /session and /metrics on this address")
	rootCmd.Flags().BoolVarP(&Args.skipLicense, "skip-license", "", false, "Do not query the license server")
	rootCmd.Flags().StringVarP(&Args.targetProcess, "target-process", "", common.DefaultTargetProcess, "Process whose streaming traffic is blocked")
	rootCmd.Flags().IntSliceVarP(&Args.blockPorts, "block-port", "", common.DefaultBlockPorts, "Destination ports to block (repeatable)")
}
