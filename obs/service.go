// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package obs drives OBS Studio: it points every profile at the captured
// streaming destination and launches OBS so that it starts streaming.
package obs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/streamtap/streamtap/log"
)

const (
	serviceFile        = "service.json"
	defaultServiceType = "rtmp_custom"
)

// ErrNoProfiles is returned when no profile has a service.json.
var ErrNoProfiles = errors.New("no OBS profile found")

// ProfilesDir returns override when set, else the per-user OBS profiles
// directory.
func ProfilesDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, "obs-studio", "basic", "profiles"), nil
}

// FindServiceConfigs returns the service.json of every profile under dir.
func FindServiceConfigs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list OBS profiles: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name(), serviceFile)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// UpdateServiceConfig points one service.json at server with stream key
// key. The service type is kept (rtmp_custom when absent) and so are any
// other settings.
func UpdateServiceConfig(path, server, key string) error {
	doc := map[string]json.RawMessage{}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			// a corrupt file is replaced
			_ = log.Warnf("rewriting unreadable %s: %s", path, err)
			doc = map[string]json.RawMessage{}
		}
	}

	var serviceType string
	if raw, ok := doc["type"]; ok {
		_ = json.Unmarshal(raw, &serviceType)
	}
	if serviceType == "" {
		serviceType = defaultServiceType
	}

	settings := map[string]interface{}{}
	if raw, ok := doc["settings"]; ok {
		if err := json.Unmarshal(raw, &settings); err != nil || settings == nil {
			settings = map[string]interface{}{}
		}
	}
	settings["server"] = server
	settings["key"] = key
	settings["bwtest"] = false
	settings["use_auth"] = false

	if doc["type"], err = json.Marshal(serviceType); err != nil {
		return err
	}
	if doc["settings"], err = json.Marshal(settings); err != nil {
		return err
	}

	out, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// UpdateServiceConfigs rewrites every profile under dir. A failure on one
// profile is logged and the others are still updated. It returns the
// paths that were updated.
func UpdateServiceConfigs(dir, server, key string) ([]string, error) {
	paths, err := FindServiceConfigs(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoProfiles, dir)
	}

	var updated []string
	var errs []error
	for _, p := range paths {
		if err := UpdateServiceConfig(p, server, key); err != nil {
			_ = log.Errorf("failed to update OBS profile: %s", err)
			errs = append(errs, err)
			continue
		}
		log.Infof("updated OBS profile %s", p)
		updated = append(updated, p)
	}
	if len(updated) == 0 {
		return nil, errors.Join(errs...)
	}
	return updated, nil
}
