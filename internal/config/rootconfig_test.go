package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRootConfig(t *testing.T, dir, payload string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, RootConfigFile), []byte(payload), 0600); err != nil {
		t.Fatalf("write root config: %v", err)
	}
}

func TestLoadRootConfigMissingFileDisablesReap(t *testing.T) {
	cfg, err := LoadRootConfig(t.TempDir())
	if err != nil {
		t.Fatalf("load root config: %v", err)
	}
	if cfg.ReapEnabled() {
		t.Fatal("expected reaping disabled without config file")
	}
	if cfg.IdleReapAge() != 0 {
		t.Fatalf("expected zero reap age, got %v", cfg.IdleReapAge())
	}
}

func TestLoadRootConfigParsesReapAge(t *testing.T) {
	dir := t.TempDir()
	writeRootConfig(t, dir, `{"idle_reap_age_seconds": 3}`)

	cfg, err := LoadRootConfig(dir)
	if err != nil {
		t.Fatalf("load root config: %v", err)
	}
	if !cfg.ReapEnabled() {
		t.Fatal("expected reaping enabled")
	}
	if cfg.IdleReapAge() != 3*time.Second {
		t.Fatalf("expected 3s reap age, got %v", cfg.IdleReapAge())
	}
}

func TestLoadRootConfigZeroAgeDisablesReap(t *testing.T) {
	dir := t.TempDir()
	writeRootConfig(t, dir, `{"idle_reap_age_seconds": 0}`)

	cfg, err := LoadRootConfig(dir)
	if err != nil {
		t.Fatalf("load root config: %v", err)
	}
	if cfg.ReapEnabled() {
		t.Fatal("expected zero age to disable reaping")
	}
}

func TestLoadRootConfigRejectsBadInput(t *testing.T) {
	for name, payload := range map[string]string{
		"malformed": `{"idle_reap_age_seconds":`,
		"negative":  `{"idle_reap_age_seconds": -1}`,
	} {
		dir := t.TempDir()
		writeRootConfig(t, dir, payload)
		if _, err := LoadRootConfig(dir); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
