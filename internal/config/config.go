// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package config loads and validates Streamweaver configuration.
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables > YAML config file > built-in
// defaults. The configuration directory (CONFIG_DIR, default /config) holds
// the SQLite database and the probe history file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// ConfigDirEnvVar overrides the configuration directory.
const ConfigDirEnvVar = "CONFIG_DIR"

// DefaultConfigDir is used when CONFIG_DIR is unset.
const DefaultConfigDir = "/config"

// Config is the root configuration.
type Config struct {
	Upstream     UpstreamConfig     `koanf:"upstream"`
	Database     DatabaseConfig     `koanf:"database"`
	Probe        ProbeConfig        `koanf:"probe"`
	Bandwidth    BandwidthConfig    `koanf:"bandwidth"`
	AutoCreation AutoCreationConfig `koanf:"autocreation"`
	Server       ServerConfig       `koanf:"server"`
	NATS         NATSConfig         `koanf:"nats"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// UpstreamConfig points at the IPTV backend that owns channels, groups,
// streams and live stats.
type UpstreamConfig struct {
	URL      string        `koanf:"url" validate:"required,url"`
	APIToken string        `koanf:"api_token"`
	Timeout  time.Duration `koanf:"timeout" validate:"min=1s,max=5m"`
	PageSize int           `koanf:"page_size" validate:"min=1,max=1000"`
}

// DatabaseConfig configures the local SQLite database.
type DatabaseConfig struct {
	// Path to the database file. Empty derives CONFIG_DIR/journal.db.
	Path string `koanf:"path"`

	// BusyTimeout is the SQLite busy timeout for concurrent writers.
	BusyTimeout time.Duration `koanf:"busy_timeout"`
}

// ProbeConfig configures the stream prober.
type ProbeConfig struct {
	// MaxConcurrent is the global probe semaphore size, clamped 1-16.
	MaxConcurrent int `koanf:"max_concurrent" validate:"min=1,max=16"`

	// Timeout is the probe subprocess timeout. A +5s wall-clock buffer is
	// applied before force-kill.
	Timeout time.Duration `koanf:"timeout" validate:"min=1s,max=10m"`

	// BitrateSampleDuration is the throughput measurement window.
	BitrateSampleDuration time.Duration `koanf:"bitrate_sample_duration" validate:"min=1s,max=2m"`

	// RetryCount retries transient probe errors, 0-5.
	RetryCount int `koanf:"retry_count" validate:"min=0,max=5"`

	// RetryDelay waits between retry attempts.
	RetryDelay time.Duration `koanf:"retry_delay"`

	// Binary is the ffprobe-compatible executable resolved on PATH.
	Binary string `koanf:"binary"`

	// ProfileStrategy selects stream profiles: fill_first, round_robin,
	// least_loaded.
	ProfileStrategy string `koanf:"profile_strategy" validate:"oneof=fill_first round_robin least_loaded"`

	// AutoReorder re-sorts channel streams after a full probe run.
	AutoReorder bool `koanf:"auto_reorder"`

	// SortKeys is the reorder key priority order. Supported keys:
	// resolution, bitrate, fps, m3u_priority, audio_channels.
	SortKeys []string `koanf:"sort_keys"`

	// DeprioritizeFailed pushes failed/timeout/pending streams to the
	// bottom during reorder.
	DeprioritizeFailed bool `koanf:"deprioritize_failed"`

	// HistorySize limits the persisted probe run history.
	HistorySize int `koanf:"history_size" validate:"min=1,max=50"`
}

// BandwidthConfig configures the bandwidth and watch tracker.
type BandwidthConfig struct {
	Enabled bool `koanf:"enabled"`

	// PollInterval is the upstream stats sampling cadence.
	PollInterval time.Duration `koanf:"poll_interval" validate:"min=1s,max=10m"`

	// Timezone keys BandwidthDaily rows; dates roll over in this zone.
	Timezone string `koanf:"timezone"`

	// RetentionDays purges BandwidthDaily rows older than this.
	RetentionDays int `koanf:"retention_days" validate:"min=1,max=3650"`

	// ChannelMapRefresh is the cadence for refreshing the channel
	// uuid/number to name map.
	ChannelMapRefresh time.Duration `koanf:"channel_map_refresh"`
}

// AutoCreationConfig configures the auto-creation pipeline.
type AutoCreationConfig struct {
	// DefaultProfileIDs are assigned to newly created channels.
	DefaultProfileIDs []int `koanf:"default_profile_ids"`

	// PrefixChannelNumber prefixes "NUMBER | " into created channel names.
	PrefixChannelNumber bool `koanf:"prefix_channel_number"`

	// ProbeOnSortConcurrency bounds pass 1.5 probes.
	ProbeOnSortConcurrency int `koanf:"probe_on_sort_concurrency" validate:"min=1,max=16"`
}

// ServerConfig configures the admin HTTP API.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`

	// RequestsPerMinute is the per-IP rate limit for the admin API.
	RequestsPerMinute int `koanf:"requests_per_minute" validate:"min=1"`

	// CORSOrigins lists allowed origins for browser clients.
	CORSOrigins []string `koanf:"cors_origins"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// NATSConfig optionally mirrors journal events to NATS JetStream. When
// disabled the journal bus runs on the in-process gochannel transport.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Stream  string `koanf:"stream"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// ConfigDir returns the configuration directory, honoring CONFIG_DIR.
func ConfigDir() string {
	if dir := os.Getenv(ConfigDirEnvVar); dir != "" {
		return dir
	}
	return DefaultConfigDir
}

// DatabasePath returns the resolved SQLite database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(ConfigDir(), "journal.db")
}

// ProbeHistoryPath returns the resolved probe history file path.
func (c *Config) ProbeHistoryPath() string {
	return filepath.Join(ConfigDir(), "probe_history.json")
}

// Validate checks the configuration for structural errors. A failed
// validation is fatal at startup.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.Bandwidth.Timezone); err != nil {
		return fmt.Errorf("invalid bandwidth timezone %q: %w", c.Bandwidth.Timezone, err)
	}
	for _, key := range c.Probe.SortKeys {
		switch key {
		case "resolution", "bitrate", "fps", "m3u_priority", "audio_channels":
		default:
			return fmt.Errorf("unknown probe sort key %q", key)
		}
	}
	return nil
}
