package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSettingsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vigild.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings file: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9736" {
		t.Fatalf("unexpected default listen addr %q", cfg.ListenAddr)
	}
	if cfg.SweepInterval != time.Second {
		t.Fatalf("unexpected default sweep interval %s", cfg.SweepInterval)
	}
	if cfg.Sources["listen"] != sourceDefault {
		t.Fatalf("expected default source for listen, got %s", cfg.Sources["listen"])
	}
}

func TestLoadConfigFileLayer(t *testing.T) {
	path := writeSettingsFile(t, "api:\n  listen: 127.0.0.1:7700\nreaper:\n  sweep_interval: 5s\n")
	cfg, err := LoadConfig([]string{"--config", path})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7700" {
		t.Fatalf("file listen addr not applied, got %q", cfg.ListenAddr)
	}
	if cfg.SweepInterval != 5*time.Second {
		t.Fatalf("file sweep interval not applied, got %s", cfg.SweepInterval)
	}
	if cfg.Sources["listen"] != sourceFile {
		t.Fatalf("expected file source for listen, got %s", cfg.Sources["listen"])
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeSettingsFile(t, "api:\n  listen: 127.0.0.1:7700\n")
	t.Setenv("VIGILD_LISTEN", "127.0.0.1:7800")
	cfg, err := LoadConfig([]string{"--config", path})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7800" {
		t.Fatalf("env listen addr not applied, got %q", cfg.ListenAddr)
	}
	if cfg.Sources["listen"] != sourceEnv {
		t.Fatalf("expected env source for listen, got %s", cfg.Sources["listen"])
	}
}

func TestLoadConfigFlagOverridesEnv(t *testing.T) {
	t.Setenv("VIGILD_LISTEN", "127.0.0.1:7800")
	t.Setenv("VIGILD_SWEEP_INTERVAL", "5s")
	cfg, err := LoadConfig([]string{
		"--config", filepath.Join(t.TempDir(), "absent.yaml"),
		"--listen", "127.0.0.1:7900",
		"--sweep-interval", "250ms",
	})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7900" {
		t.Fatalf("flag listen addr not applied, got %q", cfg.ListenAddr)
	}
	if cfg.SweepInterval != 250*time.Millisecond {
		t.Fatalf("flag sweep interval not applied, got %s", cfg.SweepInterval)
	}
	if cfg.Sources["listen"] != sourceFlag || cfg.Sources["sweep-interval"] != sourceFlag {
		t.Fatalf("expected flag sources, got %v", cfg.Sources)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	if _, err := LoadConfig([]string{"--listen", "  "}); err == nil {
		t.Fatal("expected error for empty --listen")
	}
	if _, err := LoadConfig([]string{"--sweep-interval", "-1s"}); err == nil {
		t.Fatal("expected error for negative --sweep-interval")
	}
	if _, err := LoadConfig([]string{"--max-roots", "0"}); err == nil {
		t.Fatal("expected error for zero --max-roots")
	}
}

func TestLoadConfigOriginsList(t *testing.T) {
	cfg, err := LoadConfig([]string{
		"--config", filepath.Join(t.TempDir(), "absent.yaml"),
		"--allowed-origins", "http://a.local, http://b.local",
	})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "http://a.local" || cfg.AllowedOrigins[1] != "http://b.local" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}
