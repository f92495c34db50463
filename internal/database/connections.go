// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/streamweaver/internal/models"
)

// OpenConnection records a client IP newly observed watching a channel.
func (db *DB) OpenConnection(ctx context.Context, c *models.UniqueClientConnection) (int, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO unique_client_connections (
			ip_address, channel_id, channel_name, date, connected_at, watch_seconds
		) VALUES (?, ?, ?, ?, ?, ?)`,
		c.IPAddress, c.ChannelID, c.ChannelName, c.Date,
		c.ConnectedAt.UTC(), c.WatchSeconds)
	if err != nil {
		return 0, fmt.Errorf("open connection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

// AddWatchSeconds extends the open connections of a channel by one poll
// interval's worth of watch time.
func (db *DB) AddWatchSeconds(ctx context.Context, channelID string, seconds int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE unique_client_connections
		SET watch_seconds = watch_seconds + ?
		WHERE channel_id = ? AND disconnected_at IS NULL`,
		seconds, channelID)
	if err != nil {
		return fmt.Errorf("add watch seconds: %w", err)
	}
	return nil
}

// CloseConnections marks the given IPs as disconnected from a channel.
// An empty ips slice closes every open connection on the channel.
func (db *DB) CloseConnections(ctx context.Context, channelID string, ips []string, at time.Time) (int64, error) {
	query := `
		UPDATE unique_client_connections
		SET disconnected_at = ?
		WHERE channel_id = ? AND disconnected_at IS NULL`
	args := []any{at.UTC(), channelID}
	if len(ips) > 0 {
		query += ` AND ip_address IN (?` + repeatPlaceholder(len(ips)-1) + `)`
		for _, ip := range ips {
			args = append(args, ip)
		}
	}
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("close connections: %w", err)
	}
	return res.RowsAffected()
}

// OpenConnectionsByChannel returns open connections grouped by channel ID.
func (db *DB) OpenConnectionsByChannel(ctx context.Context) (map[string][]models.UniqueClientConnection, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, ip_address, channel_id, channel_name, date, connected_at,
			disconnected_at, watch_seconds
		FROM unique_client_connections
		WHERE disconnected_at IS NULL
		ORDER BY channel_id, connected_at`)
	if err != nil {
		return nil, fmt.Errorf("open connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]models.UniqueClientConnection)
	for rows.Next() {
		var c models.UniqueClientConnection
		if err := rows.Scan(&c.ID, &c.IPAddress, &c.ChannelID, &c.ChannelName,
			&c.Date, &c.ConnectedAt, &c.DisconnectedAt, &c.WatchSeconds); err != nil {
			return nil, err
		}
		out[c.ChannelID] = append(out[c.ChannelID], c)
	}
	return out, rows.Err()
}

// ListConnections returns connections for a date, open and closed.
func (db *DB) ListConnections(ctx context.Context, date string) ([]models.UniqueClientConnection, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, ip_address, channel_id, channel_name, date, connected_at,
			disconnected_at, watch_seconds
		FROM unique_client_connections WHERE date = ?
		ORDER BY connected_at`, date)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.UniqueClientConnection
	for rows.Next() {
		var c models.UniqueClientConnection
		if err := rows.Scan(&c.ID, &c.IPAddress, &c.ChannelID, &c.ChannelName,
			&c.Date, &c.ConnectedAt, &c.DisconnectedAt, &c.WatchSeconds); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountUniqueClients returns distinct client IPs seen on a date.
func (db *DB) CountUniqueClients(ctx context.Context, date string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT ip_address) FROM unique_client_connections
		WHERE date = ?`, date).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unique clients: %w", err)
	}
	return n, nil
}

func repeatPlaceholder(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}
