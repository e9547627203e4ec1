// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if len(kv) > len(envPrefix) && kv[:len(envPrefix)] == envPrefix {
			key := kv[:indexByte(kv, '=')]
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return len(s)
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(ConfigPathEnvVar, "/nonexistent/periscope.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL == "" || cfg.Pipeline.URL == "" {
		t.Fatalf("defaults missing: %+v", cfg)
	}
	if cfg.Reconcile.PageSize != 100 {
		t.Fatalf("page size = %d, want 100", cfg.Reconcile.PageSize)
	}
	if cfg.Presence.FriendPageSize != 50 {
		t.Fatalf("friend page size = %d, want 50", cfg.Presence.FriendPageSize)
	}
	if cfg.Presence.DeferDelay != 50*time.Second || cfg.Presence.FlapWindow != 60*time.Second {
		t.Fatalf("presence windows = %v/%v", cfg.Presence.DeferDelay, cfg.Presence.FlapWindow)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
api:
  base_url: https://api.example.org/api/1
presence:
  reconcile_interval: 30m
logging:
  level: debug
  format: console
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://api.example.org/api/1" {
		t.Fatalf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.Presence.ReconcileInterval != 30*time.Minute {
		t.Fatalf("reconcile interval = %v", cfg.Presence.ReconcileInterval)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	// Untouched sections keep their defaults.
	if cfg.Pipeline.URL == "" {
		t.Fatal("pipeline default lost")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("api:\n  user_agent: FromFile/1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("PERISCOPE_API_USER_AGENT", "FromEnv/2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.UserAgent != "FromEnv/2" {
		t.Fatalf("user agent = %q, want env to win", cfg.API.UserAgent)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv(ConfigPathEnvVar, "/nonexistent/periscope.yaml")
	t.Setenv("PERISCOPE_API_BASE_URL", "not a url")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestEnvTransform(t *testing.T) {
	cases := map[string]string{
		"PERISCOPE_API_BASE_URL":       "api.base_url",
		"PERISCOPE_PIPELINE_URL":       "pipeline.url",
		"PERISCOPE_STORE_DEBOUNCE_DELAY": "store.debounce_delay",
		"PERISCOPE_LOGGING_LEVEL":      "logging.level",
		"PERISCOPE_BADKEY":             "",
	}
	for in, want := range cases {
		if got := envTransform(in); got != want {
			t.Errorf("envTransform(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
