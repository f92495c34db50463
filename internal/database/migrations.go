// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/streamweaver/internal/logging"
)

// columnMigration adds one column when it is missing. Migrations are
// additive and idempotent: each startup checks the live schema and applies
// only what is absent, so databases created by any prior version upgrade
// in place. Entries are append-only.
type columnMigration struct {
	Table      string
	Column     string
	Definition string
}

// columnMigrations lists every post-initial-schema column, oldest first.
func columnMigrations() []columnMigration {
	return []columnMigration{
		// v0.2: stream_stats gained the parsed video bitrate alongside the
		// container bitrate.
		{Table: "stream_stats", Column: "video_bitrate", Definition: "INTEGER NOT NULL DEFAULT 0"},
		// v0.2: rules gained per-rule name normalization.
		{Table: "rules", Column: "normalize_names", Definition: "INTEGER NOT NULL DEFAULT 0"},
		// v0.3: rules gained a renumber base for sorted output.
		{Table: "rules", Column: "starting_number", Definition: "INTEGER NOT NULL DEFAULT 0"},
		// v0.4: dismissals for known-bad streams surfaced in the UI.
		{Table: "stream_stats", Column: "dismissed_at", Definition: "TIMESTAMP"},
	}
}

// runMigrations applies all pending column migrations. An error here is
// fatal at startup; running with a partial schema corrupts reconciliation
// state.
func (db *DB) runMigrations(ctx context.Context) error {
	for _, m := range columnMigrations() {
		exists, err := db.columnExists(ctx, m.Table, m.Column)
		if err != nil {
			return fmt.Errorf("migration check %s.%s: %w", m.Table, m.Column, err)
		}
		if exists {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Definition)
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %s.%s: %w", m.Table, m.Column, err)
		}
		logging.Info().Str("table", m.Table).Str("column", m.Column).Msg("Applied column migration")
	}
	return nil
}

// columnExists checks table_info for the named column.
func (db *DB) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
