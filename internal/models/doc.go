// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package models defines the shared data types for Streamweaver.
//
// The types split into two ownership domains:
//
//   - Upstream-owned: Stream, Channel, Group, Provider. Streamweaver only
//     reads and mutates these through the upstream client; it never persists
//     them locally beyond in-memory snapshots taken for a single pipeline run.
//   - Streamweaver-owned: Rule, Execution, Conflict, StreamStats,
//     BandwidthDaily, ChannelBandwidth, UniqueClientConnection, Notification,
//     JournalEntry. These are persisted in the local SQLite database.
//
// All JSON tags follow the upstream's wire naming (snake_case) so the same
// structs serve both the upstream client and the admin API.
package models
