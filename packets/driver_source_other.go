// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build !windows

package packets

import "fmt"

// StartDriver starts the driver
// as there is no driver for this platform, this is a no-op
func StartDriver() error {
	return nil
}

// NewDriverSource is only available on Windows.
func NewDriverSource() (Source, error) {
	return nil, fmt.Errorf("NewDriverSource: the network driver is only available on Windows")
}
