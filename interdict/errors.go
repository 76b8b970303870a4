// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package interdict

import (
	"context"
	"errors"
	"fmt"
)

// ErrSessionAlreadyOpen is returned by Activate while a previous session
// has not been deactivated.
var ErrSessionAlreadyOpen = errors.New("a filter session is already open")

// ErrDeactivated is returned by Activate when Deactivate ran before the
// filter was installed. It wraps context.Canceled.
var ErrDeactivated = fmt.Errorf("filter session deactivated during activation: %w", context.Canceled)

// ErrUnsupported is returned by the filter driver on platforms without a
// packet diversion driver.
var ErrUnsupported = errors.New("packet filtering is not supported on this platform")

// FilterOpenError reports that the kernel filter could not be opened,
// most often because the process is not elevated.
type FilterOpenError struct {
	Expression string
	Err        error
}

func (e *FilterOpenError) Error() string {
	return fmt.Sprintf("failed to open packet filter %q: %s", e.Expression, e.Err)
}

func (e *FilterOpenError) Unwrap() error {
	return e.Err
}
