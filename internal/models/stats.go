// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package models

import "time"

// ProbeStatus is the outcome classification of one stream probe.
type ProbeStatus string

// Probe statuses.
const (
	ProbeSuccess ProbeStatus = "success"
	ProbeFailed  ProbeStatus = "failed"
	ProbeTimeout ProbeStatus = "timeout"
	ProbePending ProbeStatus = "pending"
)

// StreamStats holds the most recent probe result for a stream.
//
// ConsecutiveFailures increments on failed/timeout and resets to zero on
// success; it drives failure deprioritization during channel reordering.
type StreamStats struct {
	StreamID            int         `json:"stream_id"`
	StreamName          string      `json:"stream_name"`
	ProbeStatus         ProbeStatus `json:"probe_status"`
	LastProbed          time.Time   `json:"last_probed"`
	Resolution          string      `json:"resolution,omitempty"`
	ResolutionHeight    int         `json:"resolution_height,omitempty"`
	VideoCodec          string      `json:"video_codec,omitempty"`
	AudioCodec          string      `json:"audio_codec,omitempty"`
	AudioChannels       int         `json:"audio_channels,omitempty"`
	FPS                 float64     `json:"fps,omitempty"`
	Bitrate             int64       `json:"bitrate,omitempty"`
	VideoBitrate        int64       `json:"video_bitrate,omitempty"`
	StreamType          string      `json:"stream_type,omitempty"`
	ErrorMessage        string      `json:"error_message,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	DismissedAt         *time.Time  `json:"dismissed_at,omitempty"`
}

// ProbeRunStatus is the lifecycle state of a whole probe run.
type ProbeRunStatus string

// Probe run statuses.
const (
	ProbeRunIdle      ProbeRunStatus = "idle"
	ProbeRunRunning   ProbeRunStatus = "running"
	ProbeRunPaused    ProbeRunStatus = "paused"
	ProbeRunCancelled ProbeRunStatus = "cancelled"
	ProbeRunCompleted ProbeRunStatus = "completed"
)

// ProbeProgress is the live counter snapshot exposed while a probe run is
// in flight.
type ProbeProgress struct {
	Total               int            `json:"total"`
	Current             int            `json:"current"`
	SuccessCount        int            `json:"success_count"`
	FailedCount         int            `json:"failed_count"`
	SkippedCount        int            `json:"skipped_count"`
	CurrentStream       string         `json:"current_stream,omitempty"`
	Status              ProbeRunStatus `json:"status"`
	RateLimited         bool           `json:"rate_limited"`
	RateLimitedHosts    []string       `json:"rate_limited_hosts,omitempty"`
	MaxBackoffRemaining float64        `json:"max_backoff_remaining,omitempty"`
}

// ProbeRunRecord is one entry of the on-disk probe history file.
type ProbeRunRecord struct {
	StartedAt         time.Time      `json:"started_at"`
	DurationSeconds   float64        `json:"duration_seconds"`
	Total             int            `json:"total"`
	SuccessCount      int            `json:"success_count"`
	FailedCount       int            `json:"failed_count"`
	SkippedCount      int            `json:"skipped_count"`
	Status            ProbeRunStatus `json:"status"`
	SuccessStreams    []string       `json:"success_streams,omitempty"`
	FailedStreams     []string       `json:"failed_streams,omitempty"`
	SkippedStreams    []string       `json:"skipped_streams,omitempty"`
	ReorderedChannels []string       `json:"reordered_channels,omitempty"`
	SortConfig        map[string]any `json:"sort_config,omitempty"`
}
