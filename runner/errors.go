// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package runner

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/streamtap/streamtap/interdict"
	"github.com/streamtap/streamtap/license"
	"github.com/streamtap/streamtap/packets"
)

// ErrorCode classifies a pipeline failure.
type ErrorCode string

const (
	// ErrCodeExtractionTimeout indicates no session was resolved before the deadline.
	ErrCodeExtractionTimeout ErrorCode = "EXTRACTION_TIMEOUT"
	// ErrCodeAmbiguousEndpoint flags a session resolved among several endpoints. It is a warning.
	ErrCodeAmbiguousEndpoint ErrorCode = "AMBIGUOUS_ENDPOINT"
	// ErrCodeFilterOpenFailed indicates the packet filter could not be opened.
	ErrCodeFilterOpenFailed ErrorCode = "FILTER_OPEN_FAILED"
	// ErrCodeLicenseDenied indicates the license server refused execution.
	ErrCodeLicenseDenied ErrorCode = "LICENSE_DENIED"
	// ErrCodeLicenseUnavailable indicates the license server could not be queried.
	ErrCodeLicenseUnavailable ErrorCode = "LICENSE_UNAVAILABLE"
	// ErrCodeNoDevice indicates no capture device could be selected.
	ErrCodeNoDevice ErrorCode = "NO_DEVICE"
	// ErrCodeCaptureFailed indicates the capture device could not be opened.
	ErrCodeCaptureFailed ErrorCode = "CAPTURE_FAILED"
	// ErrCodeSourceExhausted indicates an offline capture ended before resolution.
	ErrCodeSourceExhausted ErrorCode = "SOURCE_EXHAUSTED"
	// ErrCodeCompanionFailed indicates OBS could not be launched or did not start.
	ErrCodeCompanionFailed ErrorCode = "COMPANION_FAILED"
	// ErrCodeSessionPending is reported by the status endpoint before resolution.
	ErrCodeSessionPending ErrorCode = "SESSION_PENDING"
	// ErrCodeCanceled indicates the run was interrupted.
	ErrCodeCanceled ErrorCode = "CANCELED"
	// ErrCodeInvalidConfig indicates bad flags or configuration.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeUnknown is the catch-all for unclassified errors.
	ErrCodeUnknown ErrorCode = "UNKNOWN"
)

// PipelineError is a classified pipeline failure.
type PipelineError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the JSON body returned on error from the status API.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrSourceExhausted is returned when a capture file ends before the
// session is resolved.
var ErrSourceExhausted = errors.New("capture source ended before a session was found")

// ExtractionTimeoutError reports what had been found when the capture
// deadline expired.
type ExtractionTimeoutError struct {
	Timeout    time.Duration
	Candidates int
	CodeFound  bool
}

func (e *ExtractionTimeoutError) Error() string {
	return fmt.Sprintf("no streaming session found within %s (%d endpoint candidates, code found: %t)", e.Timeout, e.Candidates, e.CodeFound)
}

func (e *ExtractionTimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// CaptureError wraps a failure to open or configure the capture source.
type CaptureError struct {
	Source string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture on %s failed: %s", e.Source, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// CompanionError wraps a failure to start OBS.
type CompanionError struct {
	Err error
}

func (e *CompanionError) Error() string {
	return fmt.Sprintf("OBS: %s", e.Err)
}

func (e *CompanionError) Unwrap() error {
	return e.Err
}

// InvalidConfigError wraps a configuration problem.
type InvalidConfigError struct {
	Err error
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Err)
}

func (e *InvalidConfigError) Unwrap() error {
	return e.Err
}

// ClassifyError inspects an error chain and returns a PipelineError with the appropriate code.
func ClassifyError(err error) *PipelineError {
	if err == nil {
		return nil
	}

	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr
	}

	code := classify(err)
	return &PipelineError{Code: code, Message: err.Error(), Err: err}
}

func classify(err error) ErrorCode {
	// Check for our own typed errors first
	var timeoutErr *ExtractionTimeoutError
	if errors.As(err, &timeoutErr) {
		return ErrCodeExtractionTimeout
	}
	var filterErr *interdict.FilterOpenError
	if errors.As(err, &filterErr) {
		return ErrCodeFilterOpenFailed
	}
	var deniedErr *license.DeniedError
	if errors.As(err, &deniedErr) {
		return ErrCodeLicenseDenied
	}
	var unavailableErr *license.UnavailableError
	if errors.As(err, &unavailableErr) {
		return ErrCodeLicenseUnavailable
	}
	if errors.Is(err, packets.ErrNoDevice) {
		return ErrCodeNoDevice
	}
	var captureErr *CaptureError
	if errors.As(err, &captureErr) {
		return ErrCodeCaptureFailed
	}
	if errors.Is(err, ErrSourceExhausted) {
		return ErrCodeSourceExhausted
	}
	var companionErr *CompanionError
	if errors.As(err, &companionErr) {
		return ErrCodeCompanionFailed
	}
	var configErr *InvalidConfigError
	if errors.As(err, &configErr) {
		return ErrCodeInvalidConfig
	}

	// Check for context errors (timeout / cancellation)
	if errors.Is(err, context.Canceled) {
		return ErrCodeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeExtractionTimeout
	}

	// Permission problems surface as raw errnos from the capture layer
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EACCES || errno == syscall.EPERM) {
		return ErrCodeCaptureFailed
	}

	return ErrCodeUnknown
}
