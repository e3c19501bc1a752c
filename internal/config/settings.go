package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSweepInterval = time.Second
	DefaultListenAddr    = "127.0.0.1:9736"
	DefaultLogBufferSize = 1000
	DefaultMaxRoots      = 1024
)

// Settings holds daemon-wide configuration. Per-root reap ages live in
// the root-local config file, not here.
type Settings struct {
	Reaper ReaperSettings `yaml:"reaper"`
	API    APISettings    `yaml:"api"`
	Log    LogSettings    `yaml:"log"`
	Limits LimitSettings  `yaml:"limits"`
}

type ReaperSettings struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Disabled      bool          `yaml:"disabled"`
}

type APISettings struct {
	Listen         string   `yaml:"listen"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogSettings struct {
	Level      string `yaml:"level"`
	BufferSize int    `yaml:"buffer_size"`
}

type LimitSettings struct {
	MaxRoots int `yaml:"max_roots"`
}

func DefaultSettings() Settings {
	return Settings{
		Reaper: ReaperSettings{SweepInterval: DefaultSweepInterval},
		API:    APISettings{Listen: DefaultListenAddr},
		Log:    LogSettings{Level: "info", BufferSize: DefaultLogBufferSize},
		Limits: LimitSettings{MaxRoots: DefaultMaxRoots},
	}
}

// LoadSettings reads settings from a YAML file layered over defaults. A
// missing file is not an error; the defaults apply.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if strings.TrimSpace(path) == "" {
		return settings, nil
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}

	if err := yaml.Unmarshal(payload, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	return normalizeSettings(settings), nil
}

func normalizeSettings(settings Settings) Settings {
	if settings.Reaper.SweepInterval <= 0 {
		settings.Reaper.SweepInterval = DefaultSweepInterval
	}
	if strings.TrimSpace(settings.API.Listen) == "" {
		settings.API.Listen = DefaultListenAddr
	}
	if settings.Log.BufferSize <= 0 {
		settings.Log.BufferSize = DefaultLogBufferSize
	}
	if settings.Log.Level == "" {
		settings.Log.Level = "info"
	}
	if settings.Limits.MaxRoots <= 0 {
		settings.Limits.MaxRoots = DefaultMaxRoots
	}
	return settings
}
