// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty upstream url", func(c *Config) { c.Upstream.URL = "" }},
		{"probe concurrency too high", func(c *Config) { c.Probe.MaxConcurrent = 17 }},
		{"probe retry count too high", func(c *Config) { c.Probe.RetryCount = 6 }},
		{"bad timezone", func(c *Config) { c.Bandwidth.Timezone = "Mars/Olympus" }},
		{"bad sort key", func(c *Config) { c.Probe.SortKeys = []string{"codec"} }},
		{"bad profile strategy", func(c *Config) { c.Probe.ProfileStrategy = "random" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"zero retention", func(c *Config) { c.Bandwidth.RetentionDays = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"UPSTREAM_URL", "upstream.url"},
		{"PROBE_MAX_CONCURRENT", "probe.max_concurrent"},
		{"BANDWIDTH_POLL_INTERVAL", "bandwidth.poll_interval"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDatabasePathDerivedFromConfigDir(t *testing.T) {
	t.Setenv(ConfigDirEnvVar, "/tmp/swtest")
	cfg := defaultConfig()
	want := filepath.Join("/tmp/swtest", "journal.db")
	if got := cfg.DatabasePath(); got != want {
		t.Errorf("DatabasePath() = %q, want %q", got, want)
	}
	if got := cfg.ProbeHistoryPath(); got != filepath.Join("/tmp/swtest", "probe_history.json") {
		t.Errorf("ProbeHistoryPath() = %q", got)
	}
}

func TestDatabasePathExplicitOverride(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.Path = "/data/custom.db"
	if got := cfg.DatabasePath(); got != "/data/custom.db" {
		t.Errorf("DatabasePath() = %q, want explicit override", got)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://upstream.example:9191")
	t.Setenv("PROBE_MAX_CONCURRENT", "8")
	t.Setenv("BANDWIDTH_POLL_INTERVAL", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Upstream.URL != "http://upstream.example:9191" {
		t.Errorf("upstream url = %q", cfg.Upstream.URL)
	}
	if cfg.Probe.MaxConcurrent != 8 {
		t.Errorf("probe max concurrent = %d, want 8", cfg.Probe.MaxConcurrent)
	}
	if cfg.Bandwidth.PollInterval != 30*time.Second {
		t.Errorf("poll interval = %v, want 30s", cfg.Bandwidth.PollInterval)
	}
}
