// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package common contains the defaults shared by the capture, extraction
// and interdiction stages
package common

import "time"

const (
	DefaultCaptureTimeout  = 3 * time.Minute
	DefaultRestartGrace    = 2 * time.Second
	DefaultLowEndDelay     = 3 * time.Second
	DefaultConfigSettle    = 1 * time.Second
	DefaultSnapLen         = 65535
	DefaultReadTimeout     = 500 * time.Millisecond
	DefaultCaptureFilter   = "tcp"
	DefaultTargetProcess   = "MediaSDK_Server.exe"
	DefaultCompanionBinary = "obs64"
	DefaultConfigFile      = "streamtap.yaml"
	DefaultWinDivertDLL    = `lib\WinDivert.dll`
	DefaultAuthURL         = "http://127.0.0.1:3000/api/v1/app/key"

	// DefaultOBSStartTries bounds how many one second polls are spent
	// waiting for the companion application process to appear.
	DefaultOBSStartTries = 30

	// LowEndMemoryBytes is the physical memory below which a host gets the
	// extra settling delay.
	LowEndMemoryBytes = 8 << 30
)

// DefaultBlockPorts are the destination ports (RTMP, RTMPS, HTTP) dropped for
// the target process.
var DefaultBlockPorts = []int{1935, 443, 80}

// LowEndManufacturers are manufacturer substrings that get the extra
// settling delay regardless of memory size.
var LowEndManufacturers = []string{"HUAWEI"}
