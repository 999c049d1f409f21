package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fastodo/internal/config"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.URL == "" {
		t.Fatalf("default backend url missing")
	}
	if cfg.Sync.RetryLimit != 3 {
		t.Fatalf("default retry limit = %d", cfg.Sync.RetryLimit)
	}
	if cfg.Timeout() != 10*time.Second {
		t.Fatalf("default timeout = %s", cfg.Timeout())
	}
}

func TestFromYAMLMergesOverDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("backend:\n  url: http://api.example.com\nsync:\n  interval_seconds: 5\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Backend.URL != "http://api.example.com" {
		t.Fatalf("url not applied: %q", cfg.Backend.URL)
	}
	if cfg.SyncInterval() != 5*time.Second {
		t.Fatalf("interval not applied: %s", cfg.SyncInterval())
	}
	// untouched sections keep their defaults
	if cfg.Sync.RetryLimit != 3 {
		t.Fatalf("retry limit lost: %d", cfg.Sync.RetryLimit)
	}
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"blank url":         "backend:\n  url: \"\"\n",
		"zero timeout":      "backend:\n  timeout_seconds: 0\n",
		"zero retry limit":  "sync:\n  retry_limit: 0\n",
		"negative interval": "sync:\n  interval_seconds: -1\n",
		"bad yaml":          "backend: [",
	}
	for name, raw := range cases {
		if _, err := config.FromYAML([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Backend.URL = "http://localhost:9999"
	cfg.User.ID = "u1"
	if err := cfg.Write(dir); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "fastodo.yml")); err != nil {
		t.Fatalf("config file missing: %v", err)
	}
	got, err := config.Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Backend.URL != cfg.Backend.URL || got.User.ID != "u1" {
		t.Fatalf("round trip mangled config: %+v", got)
	}
}
