// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/streamweaver/internal/models"
)

// CreateNotification inserts a notification and returns its ID.
func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) (int, error) {
	meta, err := marshalMeta(n.Metadata)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO notifications (type, title, message, source, source_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(n.Type), n.Title, n.Message, n.Source, n.SourceID, meta, now, now)
	if err != nil {
		return 0, fmt.Errorf("create notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

// UpdateNotification replaces the mutable fields of a notification in
// place, used for in-progress probe runs that edit one message.
func (db *DB) UpdateNotification(ctx context.Context, n *models.Notification) error {
	meta, err := marshalMeta(n.Metadata)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
		UPDATE notifications
		SET type = ?, title = ?, message = ?, metadata = ?, updated_at = ?
		WHERE id = ?`,
		string(n.Type), n.Title, n.Message, meta, time.Now().UTC(), n.ID)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	return nil
}

// DeleteNotificationsBySource removes every notification tied to one source
// entity, such as a cancelled probe run.
func (db *DB) DeleteNotificationsBySource(ctx context.Context, source, sourceID string) error {
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM notifications WHERE source = ? AND source_id = ?`,
		source, sourceID)
	if err != nil {
		return fmt.Errorf("delete notifications: %w", err)
	}
	return nil
}

// MarkNotificationRead flags one notification as read.
func (db *DB) MarkNotificationRead(ctx context.Context, id int) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE notifications SET read = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// ListNotifications returns recent notifications, newest first. When
// unreadOnly is set, read notifications are excluded.
func (db *DB) ListNotifications(ctx context.Context, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, type, title, message, source, source_id, metadata,
			created_at, updated_at, read
		FROM notifications`
	if unreadOnly {
		query += ` WHERE read = 0`
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var typ, meta string
		if err := rows.Scan(&n.ID, &typ, &n.Title, &n.Message, &n.Source,
			&n.SourceID, &meta, &n.CreatedAt, &n.UpdatedAt, &n.Read); err != nil {
			return nil, err
		}
		n.Type = models.NotificationType(typ)
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &n.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal notification metadata: %w", err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func marshalMeta(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal notification metadata: %w", err)
	}
	return string(raw), nil
}
