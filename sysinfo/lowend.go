// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package sysinfo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/streamtap/streamtap/cache"
	"github.com/streamtap/streamtap/common"
	"github.com/streamtap/streamtap/log"
)

// ErrManufacturerUnknown is returned where the platform exposes no
// manufacturer information.
var ErrManufacturerUnknown = errors.New("system manufacturer is unknown")

var (
	readTotalMemory  = totalMemory
	readManufacturer = manufacturer
)

func totalMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read memory size: %w", err)
	}
	return vm.Total, nil
}

// TotalMemory returns the physical memory size in bytes.
func TotalMemory(ctx context.Context) (uint64, error) {
	return cache.Get(cache.KeyTotalMemory, func() (uint64, error) {
		return readTotalMemory(ctx)
	})
}

// Manufacturer returns the system manufacturer reported by the firmware.
func Manufacturer() (string, error) {
	return cache.Get(cache.KeyManufacturer, readManufacturer)
}

// IsLowEnd reports whether the host needs extra settling delays: less than
// common.LowEndMemoryBytes of memory, or a manufacturer listed in
// common.LowEndManufacturers. A failed memory lookup counts as low-end.
func IsLowEnd(ctx context.Context) bool {
	lowEnd, _ := cache.Get(cache.KeyLowEnd, func() (bool, error) {
		return detectLowEnd(ctx), nil
	})
	return lowEnd
}

func detectLowEnd(ctx context.Context) bool {
	total, err := TotalMemory(ctx)
	if err != nil {
		_ = log.Warnf("assuming a low-end host: %s", err)
		return true
	}
	if total < common.LowEndMemoryBytes {
		log.Infof("low-end host: %d MiB of memory", total>>20)
		return true
	}

	vendor, err := Manufacturer()
	if err != nil {
		log.Debugf("manufacturer check skipped: %s", err)
		return false
	}
	for _, m := range common.LowEndManufacturers {
		if strings.Contains(strings.ToUpper(vendor), strings.ToUpper(m)) {
			log.Infof("low-end host: manufacturer %s", vendor)
			return true
		}
	}
	return false
}
