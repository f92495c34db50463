// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package database

import (
	"context"
	"fmt"
)

// createTableStatements holds the initial schema. New columns are never
// added here after release; they go through runMigrations so existing
// databases upgrade in place.
var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		priority INTEGER NOT NULL DEFAULT 0,
		group_id INTEGER,
		provider_id INTEGER,
		target_group_id INTEGER,
		conditions TEXT NOT NULL DEFAULT '[]',
		actions TEXT NOT NULL DEFAULT '[]',
		stop_on_first_match INTEGER NOT NULL DEFAULT 0,
		sort_field TEXT NOT NULL DEFAULT '',
		sort_order TEXT NOT NULL DEFAULT 'asc',
		probe_on_sort INTEGER NOT NULL DEFAULT 0,
		normalize_names INTEGER NOT NULL DEFAULT 0,
		starting_number INTEGER NOT NULL DEFAULT 0,
		orphan_action TEXT NOT NULL DEFAULT 'none',
		managed_channel_ids TEXT,
		match_count INTEGER NOT NULL DEFAULT 0,
		last_run_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS rule_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mode TEXT NOT NULL,
		triggered_by TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		status TEXT NOT NULL,
		streams_evaluated INTEGER NOT NULL DEFAULT 0,
		streams_matched INTEGER NOT NULL DEFAULT 0,
		channels_created INTEGER NOT NULL DEFAULT 0,
		channels_updated INTEGER NOT NULL DEFAULT 0,
		groups_created INTEGER NOT NULL DEFAULT 0,
		streams_merged INTEGER NOT NULL DEFAULT 0,
		streams_skipped INTEGER NOT NULL DEFAULT 0,
		created_entities TEXT NOT NULL DEFAULT '[]',
		modified_entities TEXT NOT NULL DEFAULT '[]',
		execution_log TEXT NOT NULL DEFAULT '[]',
		dry_run_results TEXT NOT NULL DEFAULT '[]',
		rolled_back_at TIMESTAMP,
		rolled_back_by TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS conflicts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		execution_id INTEGER NOT NULL,
		stream_id INTEGER NOT NULL,
		stream_name TEXT NOT NULL DEFAULT '',
		winning_rule_id INTEGER NOT NULL,
		losing_rule_ids TEXT NOT NULL DEFAULT '[]',
		conflict_type TEXT NOT NULL DEFAULT '',
		resolution TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS stream_stats (
		stream_id INTEGER PRIMARY KEY,
		stream_name TEXT NOT NULL DEFAULT '',
		probe_status TEXT NOT NULL DEFAULT 'pending',
		last_probed TIMESTAMP,
		resolution TEXT NOT NULL DEFAULT '',
		resolution_height INTEGER NOT NULL DEFAULT 0,
		video_codec TEXT NOT NULL DEFAULT '',
		audio_codec TEXT NOT NULL DEFAULT '',
		audio_channels INTEGER NOT NULL DEFAULT 0,
		fps REAL NOT NULL DEFAULT 0,
		bitrate INTEGER NOT NULL DEFAULT 0,
		video_bitrate INTEGER NOT NULL DEFAULT 0,
		stream_type TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		dismissed_at TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS bandwidth_daily (
		date TEXT PRIMARY KEY,
		bytes_transferred INTEGER NOT NULL DEFAULT 0,
		bytes_in INTEGER NOT NULL DEFAULT 0,
		bytes_out INTEGER NOT NULL DEFAULT 0,
		peak_channels INTEGER NOT NULL DEFAULT 0,
		peak_clients INTEGER NOT NULL DEFAULT 0,
		peak_bitrate_in REAL NOT NULL DEFAULT 0,
		peak_bitrate_out REAL NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS channel_bandwidth (
		channel_id TEXT NOT NULL,
		date TEXT NOT NULL,
		channel_name TEXT NOT NULL DEFAULT '',
		bytes_transferred INTEGER NOT NULL DEFAULT 0,
		peak_clients INTEGER NOT NULL DEFAULT 0,
		total_watch_seconds INTEGER NOT NULL DEFAULT 0,
		connection_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (channel_id, date)
	)`,

	`CREATE TABLE IF NOT EXISTS channel_watch_stats (
		channel_id TEXT PRIMARY KEY,
		channel_name TEXT NOT NULL DEFAULT '',
		total_watch_seconds INTEGER NOT NULL DEFAULT 0,
		last_watched_at TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS unique_client_connections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ip_address TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		channel_name TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		connected_at TIMESTAMP NOT NULL,
		disconnected_at TIMESTAMP,
		watch_seconds INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS tag_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,

	`CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL REFERENCES tag_groups(id) ON DELETE CASCADE,
		value TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS normalization_rule_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,

	`CREATE TABLE IF NOT EXISTS normalization_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER REFERENCES normalization_rule_groups(id) ON DELETE SET NULL,
		pattern TEXT NOT NULL,
		replacement TEXT NOT NULL DEFAULT '',
		is_regex INTEGER NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1
	)`,

	`CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		event TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		source_id TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		read INTEGER NOT NULL DEFAULT 0
	)`,
}

var createIndexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_rules_priority ON rules(priority)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_started ON executions(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_conflicts_execution ON conflicts(execution_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stream_stats_status ON stream_stats(probe_status)`,
	`CREATE INDEX IF NOT EXISTS idx_channel_bandwidth_date ON channel_bandwidth(date)`,
	`CREATE INDEX IF NOT EXISTS idx_connections_channel ON unique_client_connections(channel_id, disconnected_at)`,
	`CREATE INDEX IF NOT EXISTS idx_connections_date ON unique_client_connections(date)`,
	`CREATE INDEX IF NOT EXISTS idx_journal_event ON journal_entries(event, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_source ON notifications(source, source_id)`,
}

func (db *DB) createTables(ctx context.Context) error {
	for _, stmt := range createTableStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

func (db *DB) createIndexes(ctx context.Context) error {
	for _, stmt := range createIndexStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
