// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package models

import "time"

// BandwidthDaily aggregates transfer totals for one local-timezone day.
//
// BytesTransferred always equals BytesIn + BytesOut; each delta feeding it
// is clamped at zero because the upstream counters are cumulative and never
// decrease within a channel lifetime.
type BandwidthDaily struct {
	Date             string  `json:"date"` // YYYY-MM-DD in the configured timezone
	BytesTransferred int64   `json:"bytes_transferred"`
	BytesIn          int64   `json:"bytes_in"`
	BytesOut         int64   `json:"bytes_out"`
	PeakChannels     int     `json:"peak_channels"`
	PeakClients      int     `json:"peak_clients"`
	PeakBitrateIn    float64 `json:"peak_bitrate_in"`
	PeakBitrateOut   float64 `json:"peak_bitrate_out"`
}

// ChannelBandwidth aggregates per-channel transfer and watch time for one
// day.
type ChannelBandwidth struct {
	ChannelID         string `json:"channel_id"`
	ChannelName       string `json:"channel_name"`
	Date              string `json:"date"`
	BytesTransferred  int64  `json:"bytes_transferred"`
	PeakClients       int    `json:"peak_clients"`
	TotalWatchSeconds int64  `json:"total_watch_seconds"`
	ConnectionCount   int    `json:"connection_count"`
}

// UniqueClientConnection tracks one client IP watching one channel.
// DisconnectedAt is nil exactly while the IP is still present in the most
// recent stats sample for the channel.
type UniqueClientConnection struct {
	ID             int        `json:"id"`
	IPAddress      string     `json:"ip_address"`
	ChannelID      string     `json:"channel_id"`
	ChannelName    string     `json:"channel_name"`
	Date           string     `json:"date"`
	ConnectedAt    time.Time  `json:"connected_at"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
	WatchSeconds   int64      `json:"watch_seconds"`
}
