// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package obs

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrNotFound is returned when no OBS executable could be located.
var ErrNotFound = errors.New("OBS executable not found")

// installCandidates are the well-known install locations, checked in order.
var installCandidates = func() []string {
	var paths []string
	for _, drive := range []string{"C:", "D:", "E:"} {
		for _, dir := range []string{"Program Files", "Program Files (x86)"} {
			paths = append(paths, filepath.Join(drive+`\`, dir, "obs-studio", "bin", "64bit", "obs64.exe"))
		}
	}
	return paths
}()

var pathNames = []string{"obs64", "obs"}

// FindExecutable returns configured if it names an existing file, then the
// first well-known install location that exists, then an OBS binary found
// on PATH.
func FindExecutable(configured string) (string, error) {
	if configured != "" {
		if isFile(configured) {
			return configured, nil
		}
	}
	for _, p := range installCandidates {
		if isFile(p) {
			return p, nil
		}
	}
	for _, name := range pathNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	if configured != "" {
		return "", fmt.Errorf("%w: configured path %s does not exist", ErrNotFound, configured)
	}
	return "", ErrNotFound
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
