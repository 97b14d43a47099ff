package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")
	t.Setenv("JWT_SECRET", "")
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Mode != "release" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.PingPeriod != 54*time.Second || cfg.RingTime != 45*time.Second {
		t.Fatalf("durations = ping %v ring %v", cfg.PingPeriod, cfg.RingTime)
	}
	if cfg.CookieName != "parley-token" || cfg.MaxUpload != 10<<20 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := "mode: debug\nport: 9090\ndb_path: /tmp/test.db\nring_timeout: 10s\n"
	if err := os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("JWT_SECRET", "from-env")
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "debug" || cfg.Port != 9090 || cfg.DBPath != "/tmp/test.db" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RingTime != 10*time.Second {
		t.Fatalf("ring = %v", cfg.RingTime)
	}
	if cfg.JWTSecret != "from-env" {
		t.Fatalf("secret = %q, want env override", cfg.JWTSecret)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
