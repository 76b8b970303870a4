// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build windows

package sysinfo

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows/registry"
)

const biosKey = `HARDWARE\DESCRIPTION\System\BIOS`

func manufacturer() (string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, biosKey, registry.QUERY_VALUE)
	if err != nil {
		return "", errors.Wrap(err, "failed to open BIOS registry key")
	}
	defer k.Close()

	v, _, err := k.GetStringValue("SystemManufacturer")
	if err != nil {
		return "", errors.Wrap(err, "failed to read SystemManufacturer")
	}
	return strings.TrimSpace(v), nil
}
