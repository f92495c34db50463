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

// AccumulateDaily folds one sample's deltas into the daily row, tracking
// peaks with MAX so a quiet sample never lowers a recorded peak.
func (db *DB) AccumulateDaily(ctx context.Context, d *models.BandwidthDaily) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO bandwidth_daily (
			date, bytes_transferred, bytes_in, bytes_out, peak_channels,
			peak_clients, peak_bitrate_in, peak_bitrate_out
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			bytes_transferred = bandwidth_daily.bytes_transferred + excluded.bytes_transferred,
			bytes_in = bandwidth_daily.bytes_in + excluded.bytes_in,
			bytes_out = bandwidth_daily.bytes_out + excluded.bytes_out,
			peak_channels = MAX(bandwidth_daily.peak_channels, excluded.peak_channels),
			peak_clients = MAX(bandwidth_daily.peak_clients, excluded.peak_clients),
			peak_bitrate_in = MAX(bandwidth_daily.peak_bitrate_in, excluded.peak_bitrate_in),
			peak_bitrate_out = MAX(bandwidth_daily.peak_bitrate_out, excluded.peak_bitrate_out)`,
		d.Date, d.BytesTransferred, d.BytesIn, d.BytesOut, d.PeakChannels,
		d.PeakClients, d.PeakBitrateIn, d.PeakBitrateOut)
	if err != nil {
		return fmt.Errorf("accumulate daily bandwidth: %w", err)
	}
	return nil
}

// GetDaily fetches one day's aggregate, or nil when the day has no row.
func (db *DB) GetDaily(ctx context.Context, date string) (*models.BandwidthDaily, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT date, bytes_transferred, bytes_in, bytes_out, peak_channels,
			peak_clients, peak_bitrate_in, peak_bitrate_out
		FROM bandwidth_daily WHERE date = ?`, date)
	var d models.BandwidthDaily
	err := row.Scan(&d.Date, &d.BytesTransferred, &d.BytesIn, &d.BytesOut,
		&d.PeakChannels, &d.PeakClients, &d.PeakBitrateIn, &d.PeakBitrateOut)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get daily bandwidth: %w", err)
	}
	return &d, nil
}

// ListDaily returns daily aggregates for an inclusive date range.
func (db *DB) ListDaily(ctx context.Context, from, to string) ([]models.BandwidthDaily, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT date, bytes_transferred, bytes_in, bytes_out, peak_channels,
			peak_clients, peak_bitrate_in, peak_bitrate_out
		FROM bandwidth_daily WHERE date >= ? AND date <= ? ORDER BY date`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily bandwidth: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.BandwidthDaily
	for rows.Next() {
		var d models.BandwidthDaily
		if err := rows.Scan(&d.Date, &d.BytesTransferred, &d.BytesIn,
			&d.BytesOut, &d.PeakChannels, &d.PeakClients, &d.PeakBitrateIn,
			&d.PeakBitrateOut); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AccumulateChannelBandwidth folds one sample's per-channel deltas into the
// (channel, date) row.
func (db *DB) AccumulateChannelBandwidth(ctx context.Context, c *models.ChannelBandwidth) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO channel_bandwidth (
			channel_id, date, channel_name, bytes_transferred, peak_clients,
			total_watch_seconds, connection_count
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id, date) DO UPDATE SET
			channel_name = excluded.channel_name,
			bytes_transferred = channel_bandwidth.bytes_transferred + excluded.bytes_transferred,
			peak_clients = MAX(channel_bandwidth.peak_clients, excluded.peak_clients),
			total_watch_seconds = channel_bandwidth.total_watch_seconds + excluded.total_watch_seconds,
			connection_count = channel_bandwidth.connection_count + excluded.connection_count`,
		c.ChannelID, c.Date, c.ChannelName, c.BytesTransferred, c.PeakClients,
		c.TotalWatchSeconds, c.ConnectionCount)
	if err != nil {
		return fmt.Errorf("accumulate channel bandwidth: %w", err)
	}
	return nil
}

// ListChannelBandwidth returns per-channel aggregates for one date.
func (db *DB) ListChannelBandwidth(ctx context.Context, date string) ([]models.ChannelBandwidth, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT channel_id, date, channel_name, bytes_transferred, peak_clients,
			total_watch_seconds, connection_count
		FROM channel_bandwidth WHERE date = ?
		ORDER BY bytes_transferred DESC`, date)
	if err != nil {
		return nil, fmt.Errorf("list channel bandwidth: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.ChannelBandwidth
	for rows.Next() {
		var c models.ChannelBandwidth
		if err := rows.Scan(&c.ChannelID, &c.Date, &c.ChannelName,
			&c.BytesTransferred, &c.PeakClients, &c.TotalWatchSeconds,
			&c.ConnectionCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TouchChannelWatchStats adds watch seconds to the lifetime counter of one
// channel.
func (db *DB) TouchChannelWatchStats(ctx context.Context, channelID, channelName string, watchSeconds int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO channel_watch_stats (channel_id, channel_name, total_watch_seconds, last_watched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			channel_name = excluded.channel_name,
			total_watch_seconds = channel_watch_stats.total_watch_seconds + excluded.total_watch_seconds,
			last_watched_at = excluded.last_watched_at`,
		channelID, channelName, watchSeconds, at.UTC())
	if err != nil {
		return fmt.Errorf("touch channel watch stats: %w", err)
	}
	return nil
}

// PurgeBandwidthBefore removes daily rows, channel rows and closed
// connections older than the cutoff date (exclusive). Returns rows removed.
func (db *DB) PurgeBandwidthBefore(ctx context.Context, cutoff string) (int64, error) {
	var total int64
	for _, stmt := range []string{
		`DELETE FROM bandwidth_daily WHERE date < ?`,
		`DELETE FROM channel_bandwidth WHERE date < ?`,
		`DELETE FROM unique_client_connections WHERE date < ? AND disconnected_at IS NOT NULL`,
	} {
		res, err := db.conn.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return total, fmt.Errorf("purge bandwidth: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
