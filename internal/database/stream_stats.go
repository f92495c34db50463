// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/streamweaver/internal/models"
)

// ErrStreamStatsNotFound reports a missing stream_stats row.
var ErrStreamStatsNotFound = errors.New("stream stats not found")

// UpsertStreamStats writes one probe result. The consecutive_failures
// counter is derived in SQL: failed/timeout increments the previous value,
// success resets it to zero. Pending probes leave it untouched.
func (db *DB) UpsertStreamStats(ctx context.Context, s *models.StreamStats) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO stream_stats (
			stream_id, stream_name, probe_status, last_probed, resolution,
			resolution_height, video_codec, audio_codec, audio_channels, fps,
			bitrate, video_bitrate, stream_type, error_message,
			consecutive_failures
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			CASE WHEN ? IN ('failed', 'timeout') THEN 1 ELSE 0 END)
		ON CONFLICT(stream_id) DO UPDATE SET
			stream_name = excluded.stream_name,
			probe_status = excluded.probe_status,
			last_probed = excluded.last_probed,
			resolution = excluded.resolution,
			resolution_height = excluded.resolution_height,
			video_codec = excluded.video_codec,
			audio_codec = excluded.audio_codec,
			audio_channels = excluded.audio_channels,
			fps = excluded.fps,
			bitrate = excluded.bitrate,
			video_bitrate = excluded.video_bitrate,
			stream_type = excluded.stream_type,
			error_message = excluded.error_message,
			consecutive_failures = CASE
				WHEN excluded.probe_status IN ('failed', 'timeout')
					THEN stream_stats.consecutive_failures + 1
				WHEN excluded.probe_status = 'success' THEN 0
				ELSE stream_stats.consecutive_failures
			END`,
		s.StreamID, s.StreamName, string(s.ProbeStatus), s.LastProbed.UTC(),
		s.Resolution, s.ResolutionHeight, s.VideoCodec, s.AudioCodec,
		s.AudioChannels, s.FPS, s.Bitrate, s.VideoBitrate, s.StreamType,
		s.ErrorMessage, string(s.ProbeStatus))
	if err != nil {
		return fmt.Errorf("upsert stream stats: %w", err)
	}
	return nil
}

// GetStreamStats fetches the probe record of one stream.
func (db *DB) GetStreamStats(ctx context.Context, streamID int) (*models.StreamStats, error) {
	row := db.conn.QueryRowContext(ctx, streamStatsSelect+` WHERE stream_id = ?`, streamID)
	s, err := scanStreamStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStreamStatsNotFound
	}
	return s, err
}

// ListStreamStats returns probe records, optionally filtered by status.
func (db *DB) ListStreamStats(ctx context.Context, status models.ProbeStatus) ([]*models.StreamStats, error) {
	query := streamStatsSelect
	var args []any
	if status != "" {
		query += ` WHERE probe_status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY stream_id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stream stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.StreamStats
	for rows.Next() {
		s, err := scanStreamStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SuccessfulStatsByStream loads all success-status probe records keyed by
// stream id, used to enrich pipeline snapshots without per-stream queries.
func (db *DB) SuccessfulStatsByStream(ctx context.Context) (map[int]*models.StreamStats, error) {
	list, err := db.ListStreamStats(ctx, models.ProbeSuccess)
	if err != nil {
		return nil, err
	}
	out := make(map[int]*models.StreamStats, len(list))
	for _, s := range list {
		out[s.StreamID] = s
	}
	return out, nil
}

// DismissStreamStats marks a known-bad stream as dismissed, hiding it from
// failure listings until it is probed again.
func (db *DB) DismissStreamStats(ctx context.Context, streamID int, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE stream_stats SET dismissed_at = ? WHERE stream_id = ?`, at.UTC(), streamID)
	if err != nil {
		return fmt.Errorf("dismiss stream stats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStreamStatsNotFound
	}
	return nil
}

const streamStatsSelect = `
	SELECT stream_id, stream_name, probe_status, last_probed, resolution,
		resolution_height, video_codec, audio_codec, audio_channels, fps,
		bitrate, video_bitrate, stream_type, error_message,
		consecutive_failures, dismissed_at
	FROM stream_stats`

func scanStreamStats(row rowScanner) (*models.StreamStats, error) {
	var (
		s          models.StreamStats
		status     string
		lastProbed sql.NullTime
		dismissed  sql.NullTime
	)
	err := row.Scan(&s.StreamID, &s.StreamName, &status, &lastProbed,
		&s.Resolution, &s.ResolutionHeight, &s.VideoCodec, &s.AudioCodec,
		&s.AudioChannels, &s.FPS, &s.Bitrate, &s.VideoBitrate, &s.StreamType,
		&s.ErrorMessage, &s.ConsecutiveFailures, &dismissed)
	if err != nil {
		return nil, err
	}
	s.ProbeStatus = models.ProbeStatus(status)
	if lastProbed.Valid {
		s.LastProbed = lastProbed.Time
	}
	if dismissed.Valid {
		t := dismissed.Time
		s.DismissedAt = &t
	}
	return &s, nil
}
