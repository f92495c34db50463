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

// ErrRuleNotFound reports a missing rule row.
var ErrRuleNotFound = errors.New("rule not found")

// CreateRule inserts a rule and returns it with its assigned ID.
func (db *DB) CreateRule(ctx context.Context, r *models.Rule) (*models.Rule, error) {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return nil, fmt.Errorf("encode conditions: %w", err)
	}
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return nil, fmt.Errorf("encode actions: %w", err)
	}
	managed, err := encodeManagedIDs(r.ManagedChannelIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO rules (
			name, enabled, priority, group_id, provider_id, target_group_id,
			conditions, actions, stop_on_first_match, sort_field, sort_order,
			probe_on_sort, normalize_names, starting_number, orphan_action,
			managed_channel_ids, match_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		r.Name, r.Enabled, r.Priority, r.GroupID, r.ProviderID, r.TargetGroupID,
		string(conditions), string(actions), r.StopOnFirstMatch, r.SortField,
		string(r.SortOrder), r.ProbeOnSort, r.NormalizeNames, r.StartingNumber,
		string(r.OrphanAction), managed, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetRule(ctx, int(id))
}

// UpdateRule rewrites all mutable fields of a rule.
func (db *DB) UpdateRule(ctx context.Context, r *models.Rule) error {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}
	managed, err := encodeManagedIDs(r.ManagedChannelIDs)
	if err != nil {
		return err
	}

	res, err := db.conn.ExecContext(ctx, `
		UPDATE rules SET
			name = ?, enabled = ?, priority = ?, group_id = ?, provider_id = ?,
			target_group_id = ?, conditions = ?, actions = ?,
			stop_on_first_match = ?, sort_field = ?, sort_order = ?,
			probe_on_sort = ?, normalize_names = ?, starting_number = ?,
			orphan_action = ?, managed_channel_ids = ?, updated_at = ?
		WHERE id = ?`,
		r.Name, r.Enabled, r.Priority, r.GroupID, r.ProviderID, r.TargetGroupID,
		string(conditions), string(actions), r.StopOnFirstMatch, r.SortField,
		string(r.SortOrder), r.ProbeOnSort, r.NormalizeNames, r.StartingNumber,
		string(r.OrphanAction), managed, time.Now().UTC(), r.ID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes a rule.
func (db *DB) DeleteRule(ctx context.Context, id int) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// GetRule fetches one rule.
func (db *DB) GetRule(ctx context.Context, id int) (*models.Rule, error) {
	row := db.conn.QueryRowContext(ctx, ruleSelect+` WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	return r, err
}

// ListRules returns rules ordered by priority ascending, then id. When
// enabledOnly is set, disabled rules are filtered out.
func (db *DB) ListRules(ctx context.Context, enabledOnly bool) ([]*models.Rule, error) {
	query := ruleSelect
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY priority ASC, id ASC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetManagedChannelIDs persists the reconciliation anchor for one rule.
// A nil slice clears the anchor back to "never run" state; an empty
// non-nil slice persists as an empty set.
func (db *DB) SetManagedChannelIDs(ctx context.Context, ruleID int, ids []int) error {
	managed, err := encodeManagedIDs(ids)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx,
		`UPDATE rules SET managed_channel_ids = ?, updated_at = ? WHERE id = ?`,
		managed, time.Now().UTC(), ruleID)
	if err != nil {
		return fmt.Errorf("set managed channel ids: %w", err)
	}
	return nil
}

// RecordRuleRun updates the per-rule run bookkeeping after an execution.
func (db *DB) RecordRuleRun(ctx context.Context, ruleID, matchCount int, at time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE rules SET match_count = ?, last_run_at = ?, updated_at = ? WHERE id = ?`,
		matchCount, at.UTC(), time.Now().UTC(), ruleID)
	if err != nil {
		return fmt.Errorf("record rule run: %w", err)
	}
	return nil
}

const ruleSelect = `
	SELECT id, name, enabled, priority, group_id, provider_id, target_group_id,
		conditions, actions, stop_on_first_match, sort_field, sort_order,
		probe_on_sort, normalize_names, starting_number, orphan_action,
		managed_channel_ids, match_count, last_run_at, created_at, updated_at
	FROM rules`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.Rule, error) {
	var (
		r          models.Rule
		conditions string
		actions    string
		sortOrder  string
		orphan     string
		managed    sql.NullString
		lastRun    sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Name, &r.Enabled, &r.Priority, &r.GroupID,
		&r.ProviderID, &r.TargetGroupID, &conditions, &actions,
		&r.StopOnFirstMatch, &r.SortField, &sortOrder, &r.ProbeOnSort,
		&r.NormalizeNames, &r.StartingNumber, &orphan, &managed,
		&r.MatchCount, &lastRun, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(conditions), &r.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions for rule %d: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(actions), &r.Actions); err != nil {
		return nil, fmt.Errorf("decode actions for rule %d: %w", r.ID, err)
	}
	r.SortOrder = models.SortOrder(sortOrder)
	r.OrphanAction = models.OrphanAction(orphan)
	if managed.Valid {
		if err := json.Unmarshal([]byte(managed.String), &r.ManagedChannelIDs); err != nil {
			return nil, fmt.Errorf("decode managed ids for rule %d: %w", r.ID, err)
		}
		if r.ManagedChannelIDs == nil {
			r.ManagedChannelIDs = []int{}
		}
	}
	if lastRun.Valid {
		t := lastRun.Time
		r.LastRunAt = &t
	}
	return &r, nil
}

// encodeManagedIDs maps nil to SQL NULL, preserving the "never reconciled"
// tri-state alongside the empty set.
func encodeManagedIDs(ids []int) (any, error) {
	if ids == nil {
		return nil, nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode managed ids: %w", err)
	}
	return string(data), nil
}

// CreateRuleGroup inserts a rule folder.
func (db *DB) CreateRuleGroup(ctx context.Context, name, description string) (*models.RuleGroup, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO rule_groups (name, description, created_at) VALUES (?, ?, ?)`,
		name, description, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert rule group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.RuleGroup{ID: int(id), Name: name, Description: description}, nil
}

// ListRuleGroups returns all rule folders.
func (db *DB) ListRuleGroups(ctx context.Context) ([]models.RuleGroup, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM rule_groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list rule groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.RuleGroup
	for rows.Next() {
		var g models.RuleGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListTagGroups returns every tag group with its tags.
func (db *DB) ListTagGroups(ctx context.Context) ([]models.TagGroup, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT g.id, g.name, t.value
		FROM tag_groups g
		LEFT JOIN tags t ON t.group_id = g.id
		ORDER BY g.id, t.id`)
	if err != nil {
		return nil, fmt.Errorf("list tag groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.TagGroup
	byID := make(map[int]int)
	for rows.Next() {
		var (
			id    int
			name  string
			value sql.NullString
		)
		if err := rows.Scan(&id, &name, &value); err != nil {
			return nil, err
		}
		idx, ok := byID[id]
		if !ok {
			out = append(out, models.TagGroup{ID: id, Name: name})
			idx = len(out) - 1
			byID[id] = idx
		}
		if value.Valid {
			out[idx].Tags = append(out[idx].Tags, value.String)
		}
	}
	return out, rows.Err()
}

// SaveTagGroup upserts a tag group and replaces its tags.
func (db *DB) SaveTagGroup(ctx context.Context, g *models.TagGroup) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if g.ID == 0 {
		res, err := tx.ExecContext(ctx, `INSERT INTO tag_groups (name) VALUES (?)`, g.Name)
		if err != nil {
			return fmt.Errorf("insert tag group: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		g.ID = int(id)
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE tag_groups SET name = ? WHERE id = ?`, g.Name, g.ID); err != nil {
			return fmt.Errorf("update tag group: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE group_id = ?`, g.ID); err != nil {
			return fmt.Errorf("clear tags: %w", err)
		}
	}
	for _, tag := range g.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (group_id, value) VALUES (?, ?)`, g.ID, tag); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	return tx.Commit()
}

// ListNormalizationRules returns enabled normalization rules in order.
func (db *DB) ListNormalizationRules(ctx context.Context) ([]models.NormalizationRule, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, group_id, pattern, replacement, is_regex, sort_order, enabled
		FROM normalization_rules
		WHERE enabled = 1
		ORDER BY sort_order ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list normalization rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.NormalizationRule
	for rows.Next() {
		var r models.NormalizationRule
		if err := rows.Scan(&r.ID, &r.GroupID, &r.Pattern, &r.Replacement, &r.IsRegex, &r.Order, &r.Enabled); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
