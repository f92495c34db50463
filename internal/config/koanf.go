// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfigPaths lists the search order for the YAML config file.
// CONFIG_DIR/config.yaml is appended at load time.
var defaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// layered first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			URL:      "http://localhost:9191",
			Timeout:  30 * time.Second,
			PageSize: 250,
		},
		Database: DatabaseConfig{
			Path:        "", // derived from CONFIG_DIR
			BusyTimeout: 5 * time.Second,
		},
		Probe: ProbeConfig{
			MaxConcurrent:         4,
			Timeout:               30 * time.Second,
			BitrateSampleDuration: 10 * time.Second,
			RetryCount:            1,
			RetryDelay:            2 * time.Second,
			Binary:                "ffprobe",
			ProfileStrategy:       "fill_first",
			AutoReorder:           false,
			SortKeys:              []string{"resolution", "bitrate", "fps", "m3u_priority", "audio_channels"},
			DeprioritizeFailed:    true,
			HistorySize:           5,
		},
		Bandwidth: BandwidthConfig{
			Enabled:           true,
			PollInterval:      10 * time.Second,
			Timezone:          "UTC",
			RetentionDays:     90,
			ChannelMapRefresh: 5 * time.Minute,
		},
		AutoCreation: AutoCreationConfig{
			PrefixChannelNumber:    false,
			ProbeOnSortConcurrency: 3,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8585,
			RequestsPerMinute: 300,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Stream:  "streamweaver-journal",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	paths := append([]string{}, defaultConfigPaths...)
	paths = append(paths, filepath.Join(ConfigDir(), "config.yaml"))
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - UPSTREAM_URL -> upstream.url
//   - PROBE_MAX_CONCURRENT -> probe.max_concurrent
//   - BANDWIDTH_POLL_INTERVAL -> bandwidth.poll_interval
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	mappings := map[string]string{
		"upstream_url":       "upstream.url",
		"upstream_api_token": "upstream.api_token",
		"upstream_timeout":   "upstream.timeout",
		"upstream_page_size": "upstream.page_size",

		"database_path":         "database.path",
		"database_busy_timeout": "database.busy_timeout",

		"probe_max_concurrent":           "probe.max_concurrent",
		"probe_timeout":                  "probe.timeout",
		"probe_bitrate_sample_duration":  "probe.bitrate_sample_duration",
		"probe_retry_count":              "probe.retry_count",
		"probe_retry_delay":              "probe.retry_delay",
		"probe_binary":                   "probe.binary",
		"probe_profile_strategy":         "probe.profile_strategy",
		"probe_auto_reorder":             "probe.auto_reorder",
		"probe_deprioritize_failed":      "probe.deprioritize_failed",
		"probe_history_size":             "probe.history_size",
		"bandwidth_enabled":              "bandwidth.enabled",
		"bandwidth_poll_interval":        "bandwidth.poll_interval",
		"bandwidth_timezone":             "bandwidth.timezone",
		"bandwidth_retention_days":       "bandwidth.retention_days",
		"bandwidth_channel_map_refresh":  "bandwidth.channel_map_refresh",
		"autocreation_prefix_number":     "autocreation.prefix_channel_number",
		"autocreation_probe_concurrency": "autocreation.probe_on_sort_concurrency",

		"http_host":          "server.host",
		"http_port":          "server.port",
		"http_rate_limit":    "server.requests_per_minute",
		"http_read_timeout":  "server.read_timeout",
		"http_write_timeout": "server.write_timeout",
		"nats_enabled":       "nats.enabled",
		"nats_url":           "nats.url",
		"nats_stream":        "nats.stream",
		"log_level":          "logging.level",
		"log_format":         "logging.format",
		"log_caller":         "logging.caller",
	}
	if mapped, ok := mappings[key]; ok {
		return mapped
	}

	// Unmapped variables are ignored rather than guessed into paths; a
	// typo'd variable silently overriding config is worse than no-op.
	return ""
}
