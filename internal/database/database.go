// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package database provides SQLite persistence for Streamweaver-owned
// state: rules, executions, conflicts, probe stats, bandwidth aggregates,
// client connections, tag groups, normalization rules, notifications and
// the journal.
//
// Upstream-owned entities (channels, groups, streams) are never stored
// here; they live in the upstream and are only snapshotted in memory for
// the duration of a pipeline run.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tomtom215/streamweaver/internal/logging"
)

// DB wraps the SQLite connection and provides data access methods.
type DB struct {
	conn *sql.DB
}

// Options configure the database connection.
type Options struct {
	// Path is the database file path. ":memory:" opens an in-memory
	// database (used by tests).
	Path string

	// BusyTimeout is handed to SQLite for concurrent writer waits.
	BusyTimeout time.Duration
}

// New opens the database, applies pragmas, creates the schema and runs
// migrations. A migration failure is returned to the caller and must be
// treated as fatal at startup.
func New(opts Options) (*DB, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	if opts.Path != ":memory:" {
		dir := filepath.Dir(opts.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on",
		opts.Path, opts.BusyTimeout.Milliseconds())
	if opts.Path == ":memory:" {
		// Shared cache keeps the schema visible across pooled connections.
		dsn = "file::memory:?mode=memory&cache=shared&_foreign_keys=on"
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under the short row-scoped transactions used here.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initialize(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// Conn returns the underlying SQL connection for packages that need direct
// access, such as store tests.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// initialize creates tables, indexes, and runs additive migrations.
func (db *DB) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.createTables(ctx); err != nil {
		return err
	}
	if err := db.runMigrations(ctx); err != nil {
		return err
	}
	if err := db.createIndexes(ctx); err != nil {
		return err
	}
	logging.Debug().Msg("Database schema initialized")
	return nil
}
