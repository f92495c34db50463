// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package models

// Stream is an immutable snapshot of one provider stream, taken at the start
// of a pipeline run or probe run. The upstream owns the live record; the
// snapshot is enriched locally with group name, provider name and cached
// probe data before evaluation.
type Stream struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	URL              string `json:"url"`
	GroupName        string `json:"group_name,omitempty"`
	TvgID            string `json:"tvg_id,omitempty"`
	TvgName          string `json:"tvg_name,omitempty"`
	LogoURL          string `json:"logo_url,omitempty"`
	ProviderID       int    `json:"provider_id"`
	ProviderName     string `json:"provider_name,omitempty"`
	ResolutionHeight int    `json:"resolution_height,omitempty"`
	NormalizedName   string `json:"normalized_name,omitempty"`
}

// Channel mirrors the upstream channel record. Mutations go through the
// upstream client; Streamweaver never writes channels locally.
type Channel struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	ChannelNumber float64 `json:"channel_number"`
	GroupID       *int    `json:"channel_group_id,omitempty"`
	Streams       []int   `json:"streams,omitempty"`
	TvgID         string  `json:"tvg_id,omitempty"`
	LogoID        *int    `json:"logo_id,omitempty"`
	EpgDataID     *int    `json:"epg_data_id,omitempty"`
	AutoCreated   bool    `json:"auto_created,omitempty"`
	AutoCreatedBy *int    `json:"auto_created_by,omitempty"`
}

// Group mirrors the upstream channel group record.
type Group struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Provider is an upstream M3U account: one authenticated feed of streams
// with a hard connection cap and zero or more stream profiles.
type Provider struct {
	ID         int               `json:"id"`
	Name       string            `json:"name"`
	MaxStreams int               `json:"max_streams"`
	Priority   int               `json:"priority,omitempty"`
	Profiles   []ProviderProfile `json:"profiles,omitempty"`
	UpdatedAt  string            `json:"updated_at,omitempty"`
}

// ProviderProfile is a URL variant of a provider feed with its own
// connection cap. SearchPattern/ReplacePattern rewrite the stream URL when
// probing through this profile.
type ProviderProfile struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	IsDefault      bool   `json:"is_default"`
	IsActive       bool   `json:"is_active"`
	MaxStreams     int    `json:"max_streams"`
	SearchPattern  string `json:"search_pattern,omitempty"`
	ReplacePattern string `json:"replace_pattern,omitempty"`
}

// Logo mirrors the upstream logo record.
type Logo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// EpgSource mirrors one upstream EPG source.
type EpgSource struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	IsDummy  bool   `json:"is_dummy,omitempty"`
	URL      string `json:"url,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// EpgData is one programme-data entry inside an EPG source.
type EpgData struct {
	ID       int    `json:"id"`
	SourceID int    `json:"epg_source_id"`
	TvgID    string `json:"tvg_id"`
	Name     string `json:"name"`
}

// ChannelStats is one live-stats sample for a single channel as reported by
// the upstream stats endpoint. TotalBytes is cumulative since channel start.
type ChannelStats struct {
	ChannelID      string        `json:"channel_id"`
	ChannelNumber  float64       `json:"channel_number,omitempty"`
	ChannelName    string        `json:"channel_name,omitempty"`
	TotalBytes     int64         `json:"total_bytes"`
	ClientCount    int           `json:"client_count"`
	AvgBitrateKbps float64       `json:"avg_bitrate_kbps"`
	M3UProfileID   *int          `json:"m3u_profile_id,omitempty"`
	Clients        []ClientStats `json:"clients,omitempty"`
}

// ClientStats identifies one connected client inside a ChannelStats sample.
type ClientStats struct {
	IPAddress string `json:"ip_address"`
}

// StatsSnapshot is the full upstream stats payload for one poll.
type StatsSnapshot struct {
	Channels []ChannelStats `json:"channels"`
}
