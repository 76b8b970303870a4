// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package sysinfo answers questions about the local host: running
// processes, memory size and manufacturer.
package sysinfo

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/streamtap/streamtap/log"
)

// ProcessTable looks processes up by executable name through gopsutil.
// Names match case-insensitively, with or without the ".exe" suffix.
type ProcessTable struct{}

// NewProcessTable returns a ProcessTable.
func NewProcessTable() *ProcessTable {
	return &ProcessTable{}
}

// FindByName returns the PIDs of every process named name.
func (ProcessTable) FindByName(ctx context.Context, name string) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	want := normalizeName(name)
	var pids []int32
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil {
			// processes exit between listing and inspection
			log.Tracef("skipping pid %d: %s", p.Pid, err)
			continue
		}
		if normalizeName(n) == want {
			pids = append(pids, p.Pid)
		}
	}
	return pids, nil
}

// Kill terminates pid.
func (ProcessTable) Kill(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return fmt.Errorf("process %d: %w", pid, err)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}

// IsRunning reports whether at least one process named name exists.
func (t ProcessTable) IsRunning(ctx context.Context, name string) (bool, error) {
	pids, err := t.FindByName(ctx, name)
	if err != nil {
		return false, err
	}
	return len(pids) > 0, nil
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".exe")
}
