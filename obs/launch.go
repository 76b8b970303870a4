// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package obs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/streamtap/streamtap/log"
)

// StartStreamingFlag makes OBS start streaming as soon as it is up.
const StartStreamingFlag = "--startstreaming"

// ErrNotRunning is returned when OBS did not show up in the process table.
var ErrNotRunning = errors.New("OBS did not start")

// ProcessChecker reports whether a named process is running.
type ProcessChecker interface {
	IsRunning(ctx context.Context, name string) (bool, error)
}

// Launch starts OBS from its own directory, streaming immediately. OBS is
// not waited for and keeps running after this program exits.
func Launch(path string) error {
	cmd := exec.Command(path, StartStreamingFlag)
	cmd.Dir = filepath.Dir(path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start OBS %s: %w", path, err)
	}
	log.Infof("started OBS (pid %d)", cmd.Process.Pid)
	go func() {
		// reap the child if it exits while we are still running
		_ = cmd.Wait()
	}()
	return nil
}

// WaitRunning polls procs every interval until name is running, at most
// tries times.
func WaitRunning(ctx context.Context, procs ProcessChecker, name string, interval time.Duration, tries uint) error {
	operation := func() (struct{}, error) {
		running, err := procs.IsRunning(ctx, name)
		if err != nil {
			return struct{}{}, err
		}
		if !running {
			return struct{}{}, ErrNotRunning
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxTries(tries),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("waiting for %s: %w", name, err)
	}
	log.Infof("%s is running", name)
	return nil
}
