// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package autocreate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/streamweaver/internal/logging"
	"github.com/tomtom215/streamweaver/internal/metrics"
	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/upstream"
)

// Rollback reverses a completed execute-mode run: created entities are
// deleted in reverse creation order, then modified entities have their
// previous_state restored. A second rollback of the same execution returns
// ErrAlreadyRolledBack without touching the upstream. Per-entity failures
// are logged and rollback continues.
func (e *Engine) Rollback(ctx context.Context, executionID int, actor string) error {
	exec, err := e.db.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status == models.ExecRolledBack {
		return ErrAlreadyRolledBack
	}
	if exec.Mode != models.ModeExecute {
		return ErrRollbackMode
	}
	if exec.Status != models.ExecCompleted {
		return ErrRollbackStatus
	}

	failures := 0
	for i := len(exec.CreatedEntities) - 1; i >= 0; i-- {
		ref := exec.CreatedEntities[i]
		if err := e.deleteEntity(ctx, ref); err != nil {
			failures++
			logging.Err(err).
				Str("entity_type", ref.EntityType).
				Int("entity_id", ref.EntityID).
				Msg("Rollback delete failed, continuing")
		}
	}

	for _, ref := range exec.ModifiedEntities {
		if err := e.restoreEntity(ctx, ref); err != nil {
			failures++
			logging.Err(err).
				Str("entity_type", ref.EntityType).
				Int("entity_id", ref.EntityID).
				Msg("Rollback restore failed, continuing")
		}
	}

	if err := e.db.MarkRolledBack(ctx, executionID, actor, time.Now()); err != nil {
		return fmt.Errorf("mark rolled back: %w", err)
	}

	status := "success"
	if failures > 0 {
		status = "partial"
	}
	metrics.RollbacksTotal.WithLabelValues(status).Inc()
	e.publish(ctx, "execution:rolled_back", strconv.Itoa(executionID), map[string]string{
		"actor": actor, "failures": strconv.Itoa(failures),
	})
	logging.Info().
		Int("execution_id", executionID).
		Str("actor", actor).
		Int("failures", failures).
		Msg("Execution rolled back")
	return nil
}

// deleteEntity removes one created entity. Upstream 404s count as success
// so rollback stays idempotent against concurrent deletions.
func (e *Engine) deleteEntity(ctx context.Context, ref models.EntityRef) error {
	var err error
	switch ref.EntityType {
	case "channel":
		err = e.client.DeleteChannel(ctx, ref.EntityID)
	case "group":
		err = e.client.DeleteChannelGroup(ctx, ref.EntityID)
	case "logo":
		// The upstream has no logo delete; orphaned logos are harmless.
		return nil
	default:
		return fmt.Errorf("unknown entity type %q", ref.EntityType)
	}
	if err != nil && !upstream.IsNotFound(err) {
		return err
	}
	return nil
}

// restoreEntity re-applies the previous_state blob of a modified entity.
func (e *Engine) restoreEntity(ctx context.Context, ref models.EntityRef) error {
	if len(ref.PreviousState) == 0 {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal(ref.PreviousState, &data); err != nil {
		return fmt.Errorf("decode previous state: %w", err)
	}

	var err error
	switch ref.EntityType {
	case "channel":
		_, err = e.client.UpdateChannel(ctx, ref.EntityID, data)
	case "group":
		_, err = e.client.UpdateChannelGroup(ctx, ref.EntityID, data)
	default:
		return fmt.Errorf("unknown entity type %q", ref.EntityType)
	}
	if err != nil && !upstream.IsNotFound(err) {
		return err
	}
	return nil
}
