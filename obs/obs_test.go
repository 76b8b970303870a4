// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package obs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, dir, profile, content string) string {
	t.Helper()
	p := filepath.Join(dir, profile, serviceFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func readService(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestUpdateServiceConfig(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantType string
		extra    map[string]interface{}
	}{
		{
			name:     "custom service with extra settings",
			content:  `{"type":"rtmp_custom","settings":{"server":"rtmp://old/app","key":"old","use_auth":true,"bwtest":true,"protocol":"RTMP"}}`,
			wantType: "rtmp_custom",
			extra:    map[string]interface{}{"protocol": "RTMP"},
		},
		{
			name:     "common service type is kept",
			content:  `{"type":"rtmp_common","settings":{"service":"Twitch"}}`,
			wantType: "rtmp_common",
			extra:    map[string]interface{}{"service": "Twitch"},
		},
		{
			name:     "old layout without settings",
			content:  `{"type":"rtmp_custom"}`,
			wantType: "rtmp_custom",
		},
		{
			name:     "empty file",
			content:  ``,
			wantType: "rtmp_custom",
		},
		{
			name:     "corrupt file",
			content:  `{not json`,
			wantType: "rtmp_custom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeProfile(t, t.TempDir(), "Untitled", tt.content)
			require.NoError(t, UpdateServiceConfig(p, "rtmp://live.example/app/third", "stream-abc"))

			doc := readService(t, p)
			assert.Equal(t, tt.wantType, doc["type"])
			settings, ok := doc["settings"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "rtmp://live.example/app/third", settings["server"])
			assert.Equal(t, "stream-abc", settings["key"])
			assert.Equal(t, false, settings["bwtest"])
			assert.Equal(t, false, settings["use_auth"])
			for k, v := range tt.extra {
				assert.Equal(t, v, settings[k])
			}
		})
	}
}

func TestUpdateServiceConfigs(t *testing.T) {
	dir := t.TempDir()
	a := writeProfile(t, dir, "A", `{"type":"rtmp_custom","settings":{}}`)
	b := writeProfile(t, dir, "B", `{"type":"rtmp_custom","settings":{}}`)
	// a profile without service.json is ignored
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "C"), 0o755))

	updated, err := UpdateServiceConfigs(dir, "rtmp://s/app/third", "stream-k")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, updated)

	_, err = UpdateServiceConfigs(t.TempDir(), "rtmp://s/app/third", "stream-k")
	require.ErrorIs(t, err, ErrNoProfiles)

	_, err = UpdateServiceConfigs(filepath.Join(dir, "missing"), "rtmp://s/app/third", "stream-k")
	require.ErrorIs(t, err, ErrNoProfiles)
}

func TestProfilesDir(t *testing.T) {
	got, err := ProfilesDir("/tmp/profiles")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/profiles", got)
}

func TestFindExecutable(t *testing.T) {
	orig := installCandidates
	defer func() { installCandidates = orig }()

	dir := t.TempDir()
	configured := filepath.Join(dir, "obs64.exe")
	require.NoError(t, os.WriteFile(configured, []byte("x"), 0o755))
	installed := filepath.Join(dir, "install", "obs64.exe")
	require.NoError(t, os.MkdirAll(filepath.Dir(installed), 0o755))
	require.NoError(t, os.WriteFile(installed, []byte("x"), 0o755))

	installCandidates = []string{filepath.Join(dir, "nope.exe"), installed}

	got, err := FindExecutable(configured)
	require.NoError(t, err)
	assert.Equal(t, configured, got)

	got, err = FindExecutable(filepath.Join(dir, "moved.exe"))
	require.NoError(t, err)
	assert.Equal(t, installed, got)

	got, err = FindExecutable("")
	require.NoError(t, err)
	assert.Equal(t, installed, got)

	// a directory is not an executable
	installCandidates = []string{filepath.Dir(installed)}
	t.Setenv("PATH", "")
	_, err = FindExecutable("")
	require.ErrorIs(t, err, ErrNotFound)
}

type fakeChecker struct {
	runningAfter int32
	calls        int32
	err          error
}

func (f *fakeChecker) IsRunning(context.Context, string) (bool, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return false, f.err
	}
	return f.runningAfter > 0 && n >= f.runningAfter, nil
}

func TestWaitRunning(t *testing.T) {
	t.Run("appears on third try", func(t *testing.T) {
		f := &fakeChecker{runningAfter: 3}
		require.NoError(t, WaitRunning(context.Background(), f, "obs64", time.Millisecond, 30))
		assert.Equal(t, int32(3), f.calls)
	})

	t.Run("never appears", func(t *testing.T) {
		f := &fakeChecker{}
		err := WaitRunning(context.Background(), f, "obs64", time.Millisecond, 5)
		require.ErrorIs(t, err, ErrNotRunning)
		assert.Equal(t, int32(5), f.calls)
	})

	t.Run("lookup errors are retried", func(t *testing.T) {
		f := &fakeChecker{err: errors.New("snapshot failed")}
		err := WaitRunning(context.Background(), f, "obs64", time.Millisecond, 2)
		require.Error(t, err)
		assert.Equal(t, int32(2), f.calls)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WaitRunning(ctx, &fakeChecker{}, "obs64", time.Hour, 30)
		require.ErrorIs(t, err, context.Canceled)
	})
}
