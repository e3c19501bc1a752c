package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RootConfigFile is the per-root configuration file discovered at the
// top of a watched root.
const RootConfigFile = ".vigilconfig"

// RootConfig is read once when a root is first watched. A zero
// IdleReapAge disables idle reaping for that root.
type RootConfig struct {
	IdleReapAgeSeconds int `json:"idle_reap_age_seconds"`

	// IdleReapAgeOverride takes precedence over the seconds value when
	// set. It is never read from the config file; embedders and tests
	// use it for sub-second ages.
	IdleReapAgeOverride time.Duration `json:"-"`
}

// IdleReapAge returns the configured reap age as a duration.
func (c RootConfig) IdleReapAge() time.Duration {
	if c.IdleReapAgeOverride > 0 {
		return c.IdleReapAgeOverride
	}
	if c.IdleReapAgeSeconds <= 0 {
		return 0
	}
	return time.Duration(c.IdleReapAgeSeconds) * time.Second
}

// ReapEnabled reports whether idle reaping applies to this root.
func (c RootConfig) ReapEnabled() bool {
	return c.IdleReapAge() > 0
}

// LoadRootConfig reads the root-local config file under rootPath. A
// missing file yields the zero config; a malformed or invalid file is
// an error so a typo never silently enables or disables reaping.
func LoadRootConfig(rootPath string) (RootConfig, error) {
	payload, err := os.ReadFile(filepath.Join(rootPath, RootConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return RootConfig{}, nil
		}
		return RootConfig{}, fmt.Errorf("read root config: %w", err)
	}

	var cfg RootConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return RootConfig{}, fmt.Errorf("parse %s: %w", RootConfigFile, err)
	}
	if cfg.IdleReapAgeSeconds < 0 {
		return RootConfig{}, fmt.Errorf("%s: idle_reap_age_seconds must not be negative", RootConfigFile)
	}
	return cfg, nil
}
