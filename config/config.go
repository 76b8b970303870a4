// Package config loads and saves the streamtap.yaml settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/streamtap/streamtap/common"
)

// Config is the on-disk configuration. Zero durations and empty strings in
// the file fall back to the defaults.
type Config struct {
	OBSPath        string        `yaml:"obs_path,omitempty"`
	OBSProfilesDir string        `yaml:"obs_profiles_dir,omitempty"`
	AuthURL        string        `yaml:"auth_url"`
	Device         string        `yaml:"device,omitempty"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	TargetProcess  string        `yaml:"target_process"`
	BlockPorts     []int         `yaml:"block_ports,flow"`
	RestartGrace   time.Duration `yaml:"restart_grace"`
	LowEndDelay    time.Duration `yaml:"low_end_delay"`
	WinDivertDLL   string        `yaml:"windivert_dll"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AuthURL:        common.DefaultAuthURL,
		CaptureTimeout: common.DefaultCaptureTimeout,
		TargetProcess:  common.DefaultTargetProcess,
		BlockPorts:     append([]int(nil), common.DefaultBlockPorts...),
		RestartGrace:   common.DefaultRestartGrace,
		LowEndDelay:    common.DefaultLowEndDelay,
		WinDivertDLL:   common.DefaultWinDivertDLL,
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.AuthURL == "" {
		c.AuthURL = d.AuthURL
	}
	if c.CaptureTimeout == 0 {
		c.CaptureTimeout = d.CaptureTimeout
	}
	if c.TargetProcess == "" {
		c.TargetProcess = d.TargetProcess
	}
	if len(c.BlockPorts) == 0 {
		c.BlockPorts = d.BlockPorts
	}
	if c.RestartGrace == 0 {
		c.RestartGrace = d.RestartGrace
	}
	if c.WinDivertDLL == "" {
		c.WinDivertDLL = d.WinDivertDLL
	}
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.CaptureTimeout < 0 {
		return fmt.Errorf("capture_timeout must be positive, got %s", c.CaptureTimeout)
	}
	if c.RestartGrace < 0 || c.LowEndDelay < 0 {
		return errors.New("restart_grace and low_end_delay must not be negative")
	}
	for _, p := range c.BlockPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("block_ports: invalid port %d", p)
		}
	}
	return nil
}

// Save writes the configuration to path, replacing it atomically.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".streamtap-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// SaveOBSPath records a discovered OBS executable in the file at path,
// leaving its other settings as they are on disk.
func SaveOBSPath(path, obsPath string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	if cfg.OBSPath == obsPath {
		return nil
	}
	cfg.OBSPath = obsPath
	return cfg.Save(path)
}
