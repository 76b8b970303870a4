// Package license performs the startup authorization check.
package license

//go:generate mockgen -source=license.go -destination=mock_license.go -package=license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/streamtap/streamtap/log"
)

const defaultTimeout = 10 * time.Second

// maximum response body read, the answer is a small JSON object
const maxBodySize = 64 << 10

// Response is the body returned by the authorization endpoint.
type Response struct {
	Code          string  `json:"code"`
	Msg           string  `json:"msg"`
	Expiry        *string `json:"expiry,omitempty"`
	RemainingDays *int    `json:"remainingDays,omitempty"`
}

// Authorized reports whether the response grants execution.
func (r *Response) Authorized() bool {
	return strings.EqualFold(strings.TrimSpace(r.Code), "true")
}

// DeniedError is returned when the server answered but did not authorize.
type DeniedError struct {
	Msg string
}

func (e *DeniedError) Error() string {
	if e.Msg == "" {
		return "license denied"
	}
	return fmt.Sprintf("license denied: %s", e.Msg)
}

// UnavailableError is returned when the server could not be reached or
// did not answer with a usable response.
type UnavailableError struct {
	StatusCode int
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("license server unavailable (HTTP %d): %s", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("license server unavailable: %s", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Maintenance reports whether the server signalled a gateway or
// maintenance outage.
func (e *UnavailableError) Maintenance() bool {
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Checker validates the license.
type Checker interface {
	Check(ctx context.Context) (*Response, error)
}

// HTTPChecker queries an authorization URL with a single GET.
type HTTPChecker struct {
	client *http.Client
	url    string
}

var _ Checker = &HTTPChecker{}

// NewHTTPChecker returns a checker for url. A nil client gets a default
// one with a 10 second timeout.
func NewHTTPChecker(client *http.Client, url string) *HTTPChecker {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPChecker{client: client, url: url}
}

// Check returns the server's response when it authorizes execution, a
// *DeniedError when it refuses, and an *UnavailableError otherwise.
func (c *HTTPChecker) Check(ctx context.Context) (*Response, error) {
	if c.url == "" {
		return nil, &UnavailableError{Err: errors.New("no authorization URL configured")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &UnavailableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UnavailableError{StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, &UnavailableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if !r.Authorized() {
		return nil, &DeniedError{Msg: r.Msg}
	}

	if r.RemainingDays != nil {
		log.Infof("license valid: %s (%d days remaining)", r.Msg, *r.RemainingDays)
	} else {
		log.Infof("license valid: %s", r.Msg)
	}
	return &r, nil
}
