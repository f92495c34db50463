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

	"github.com/goccy/go-json"

	"github.com/tomtom215/streamweaver/internal/models"
)

// ErrExecutionNotFound reports a missing execution row.
var ErrExecutionNotFound = errors.New("execution not found")

// CreateExecution inserts a running execution and returns its ID.
func (db *DB) CreateExecution(ctx context.Context, e *models.Execution) (int, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO executions (mode, triggered_by, started_at, status)
		VALUES (?, ?, ?, ?)`,
		string(e.Mode), e.TriggeredBy, e.StartedAt.UTC(), string(e.Status))
	if err != nil {
		return 0, fmt.Errorf("insert execution: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	e.ID = int(id)
	return e.ID, nil
}

// FinishExecution persists the final state of an execution: counters,
// entity lists, logs, status and completion time.
func (db *DB) FinishExecution(ctx context.Context, e *models.Execution) error {
	created, err := json.Marshal(orEmptyRefs(e.CreatedEntities))
	if err != nil {
		return fmt.Errorf("encode created entities: %w", err)
	}
	modified, err := json.Marshal(orEmptyRefs(e.ModifiedEntities))
	if err != nil {
		return fmt.Errorf("encode modified entities: %w", err)
	}
	execLog, err := json.Marshal(orEmptyLog(e.ExecutionLog))
	if err != nil {
		return fmt.Errorf("encode execution log: %w", err)
	}
	dryRun, err := json.Marshal(orEmptyLog(e.DryRunResults))
	if err != nil {
		return fmt.Errorf("encode dry run results: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, `
		UPDATE executions SET
			completed_at = ?, status = ?, streams_evaluated = ?,
			streams_matched = ?, channels_created = ?, channels_updated = ?,
			groups_created = ?, streams_merged = ?, streams_skipped = ?,
			created_entities = ?, modified_entities = ?, execution_log = ?,
			dry_run_results = ?, error = ?
		WHERE id = ?`,
		e.CompletedAt, string(e.Status), e.StreamsEvaluated, e.StreamsMatched,
		e.ChannelsCreated, e.ChannelsUpdated, e.GroupsCreated, e.StreamsMerged,
		e.StreamsSkipped, string(created), string(modified), string(execLog),
		string(dryRun), e.Error, e.ID)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExecutionNotFound
	}
	return nil
}

// MarkRolledBack flips an execution to rolled_back with actor and time.
func (db *DB) MarkRolledBack(ctx context.Context, id int, by string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE executions SET status = ?, rolled_back_at = ?, rolled_back_by = ?
		WHERE id = ?`,
		string(models.ExecRolledBack), at.UTC(), by, id)
	if err != nil {
		return fmt.Errorf("mark rolled back: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExecutionNotFound
	}
	return nil
}

// GetExecution fetches one execution with its full logs.
func (db *DB) GetExecution(ctx context.Context, id int) (*models.Execution, error) {
	row := db.conn.QueryRowContext(ctx, executionSelect+` WHERE id = ?`, id)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExecutionNotFound
	}
	return e, err
}

// ListExecutions returns executions newest first.
func (db *DB) ListExecutions(ctx context.Context, limit int) ([]*models.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, executionSelect+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const executionSelect = `
	SELECT id, mode, triggered_by, started_at, completed_at, status,
		streams_evaluated, streams_matched, channels_created, channels_updated,
		groups_created, streams_merged, streams_skipped, created_entities,
		modified_entities, execution_log, dry_run_results, rolled_back_at,
		rolled_back_by, error
	FROM executions`

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		e           models.Execution
		mode        string
		status      string
		completedAt sql.NullTime
		created     string
		modified    string
		execLog     string
		dryRun      string
		rolledAt    sql.NullTime
	)
	err := row.Scan(&e.ID, &mode, &e.TriggeredBy, &e.StartedAt, &completedAt,
		&status, &e.StreamsEvaluated, &e.StreamsMatched, &e.ChannelsCreated,
		&e.ChannelsUpdated, &e.GroupsCreated, &e.StreamsMerged,
		&e.StreamsSkipped, &created, &modified, &execLog, &dryRun,
		&rolledAt, &e.RolledBackBy, &e.Error)
	if err != nil {
		return nil, err
	}

	e.Mode = models.ExecutionMode(mode)
	e.Status = models.ExecutionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		e.CompletedAt = &t
	}
	if rolledAt.Valid {
		t := rolledAt.Time
		e.RolledBackAt = &t
	}
	if err := json.Unmarshal([]byte(created), &e.CreatedEntities); err != nil {
		return nil, fmt.Errorf("decode created entities for execution %d: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(modified), &e.ModifiedEntities); err != nil {
		return nil, fmt.Errorf("decode modified entities for execution %d: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(execLog), &e.ExecutionLog); err != nil {
		return nil, fmt.Errorf("decode execution log for execution %d: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(dryRun), &e.DryRunResults); err != nil {
		return nil, fmt.Errorf("decode dry run results for execution %d: %w", e.ID, err)
	}
	return &e, nil
}

func orEmptyRefs(refs []models.EntityRef) []models.EntityRef {
	if refs == nil {
		return []models.EntityRef{}
	}
	return refs
}

func orEmptyLog(log []models.StreamLogEntry) []models.StreamLogEntry {
	if log == nil {
		return []models.StreamLogEntry{}
	}
	return log
}

// RecordConflict inserts one conflict row.
func (db *DB) RecordConflict(ctx context.Context, c *models.Conflict) error {
	losing, err := json.Marshal(c.LosingRules)
	if err != nil {
		return fmt.Errorf("encode losing rules: %w", err)
	}
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO conflicts (execution_id, stream_id, stream_name,
			winning_rule_id, losing_rule_ids, conflict_type, resolution,
			description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ExecutionID, c.StreamID, c.StreamName, c.WinningRule, string(losing),
		c.ConflictType, c.Resolution, c.Description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert conflict: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = int(id)
	return nil
}

// ListConflicts returns the conflicts of one execution.
func (db *DB) ListConflicts(ctx context.Context, executionID int) ([]models.Conflict, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, execution_id, stream_id, stream_name, winning_rule_id,
			losing_rule_ids, conflict_type, resolution, description, created_at
		FROM conflicts WHERE execution_id = ? ORDER BY id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Conflict
	for rows.Next() {
		var (
			c      models.Conflict
			losing string
		)
		if err := rows.Scan(&c.ID, &c.ExecutionID, &c.StreamID, &c.StreamName,
			&c.WinningRule, &losing, &c.ConflictType, &c.Resolution,
			&c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(losing), &c.LosingRules); err != nil {
			return nil, fmt.Errorf("decode losing rules for conflict %d: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
