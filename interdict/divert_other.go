// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build !windows

package interdict

// DivertDriver is unavailable outside Windows, every Open fails.
type DivertDriver struct {
	dllPath string
}

var _ FilterDriver = &DivertDriver{}

// NewDivertDriver returns a driver whose Open reports ErrUnsupported.
func NewDivertDriver(dllPath string) *DivertDriver {
	return &DivertDriver{dllPath: dllPath}
}

// Open always fails with ErrUnsupported.
func (d *DivertDriver) Open(_ string) (Filter, error) {
	return nil, ErrUnsupported
}
