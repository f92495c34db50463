// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package database

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/streamweaver/internal/models"
)

// AppendJournal persists one audit event. The entry ID is assigned by the
// caller so the bus message and the stored row share an identifier.
func (db *DB) AppendJournal(ctx context.Context, e *models.JournalEntry) error {
	details := e.Details
	if details == nil {
		details = map[string]string{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal journal details: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO journal_entries (id, event, subject, details, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Event, e.Subject, string(raw), e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// ListJournal returns the most recent entries, newest first, optionally
// filtered by event name.
func (db *DB) ListJournal(ctx context.Context, event string, limit int) ([]models.JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, event, subject, details, created_at FROM journal_entries`
	args := []any{}
	if event != "" {
		query += ` WHERE event = ?`
		args = append(args, event)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		var raw string
		if err := rows.Scan(&e.ID, &e.Event, &e.Subject, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		if raw != "" && raw != "{}" {
			if err := json.Unmarshal([]byte(raw), &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal journal details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
