// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build linux

package sysinfo

import (
	"fmt"
	"os"
	"strings"
)

var sysVendorPath = "/sys/class/dmi/id/sys_vendor"

func manufacturer() (string, error) {
	b, err := os.ReadFile(sysVendorPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrManufacturerUnknown, err)
	}
	return strings.TrimSpace(string(b)), nil
}
