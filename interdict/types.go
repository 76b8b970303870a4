// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package interdict

//go:generate mockgen -source=types.go -destination=mock_types.go -package=interdict

import "context"

// Filter is an open kernel filter handle.
type Filter interface {
	Close() error
}

// FilterDriver opens sniff-and-drop filter sessions.
type FilterDriver interface {
	Open(expression string) (Filter, error)
}

// ProcessManager finds and terminates processes. The target process is
// expected to be relaunched by its own supervisor after termination.
type ProcessManager interface {
	// FindByName returns the PIDs of running processes named name.
	FindByName(ctx context.Context, name string) ([]int32, error)
	// Kill terminates pid.
	Kill(ctx context.Context, pid int32) error
}
