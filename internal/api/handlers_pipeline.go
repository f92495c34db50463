// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/streamweaver/internal/autocreate"
	"github.com/tomtom215/streamweaver/internal/database"
	"github.com/tomtom215/streamweaver/internal/models"
)

// pipelineRunRequest triggers one pipeline run.
type pipelineRunRequest struct {
	Mode       string `json:"mode"`
	RuleID     int    `json:"rule_id,omitempty"`
	ProviderID int    `json:"provider_id,omitempty"`
}

// rollbackRequest names the actor undoing an execution.
type rollbackRequest struct {
	Actor string `json:"actor,omitempty"`
}

// PipelineRun triggers a pipeline run and returns the finished
// execution record. Dry runs mutate nothing upstream.
func (h *Handler) PipelineRun(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req pipelineRunRequest
	if err := decodeBody(r, &req); err != nil {
		rw.BadRequest("Invalid request body: " + err.Error())
		return
	}

	mode := models.ExecutionMode(req.Mode)
	if mode != models.ModeDryRun && mode != models.ModeExecute {
		rw.ValidationError("mode must be dry_run or execute", map[string]string{"mode": req.Mode})
		return
	}
	if req.RuleID < 0 || req.ProviderID < 0 {
		rw.BadRequest("rule_id and provider_id must be positive")
		return
	}

	exec, err := h.pipeline.Run(r.Context(), autocreate.RunOptions{
		RuleID:      req.RuleID,
		ProviderID:  req.ProviderID,
		Mode:        mode,
		TriggeredBy: "api",
	})
	if err != nil {
		if exec != nil {
			// The run failed partway; the record still carries the log.
			rw.ErrorWithDetails(http.StatusBadGateway, ErrCodeUpstreamFailed, err.Error(), exec)
			return
		}
		rw.InternalError(err.Error())
		return
	}

	rw.Success(exec)
}

// ListExecutions returns past pipeline runs, newest first.
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit := queryInt(r, "limit", 50)
	execs, err := h.db.ListExecutions(r.Context(), limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.SuccessWithPagination(execs, &PaginationMeta{
		Count:   len(execs),
		Limit:   limit,
		HasMore: len(execs) == limit,
	})
}

// GetExecution returns one execution with its full log, dry-run results
// and recorded conflicts.
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := urlParamInt(r, "id")
	if !ok {
		rw.BadRequest("Invalid execution ID")
		return
	}

	exec, err := h.db.GetExecution(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrExecutionNotFound) {
			rw.NotFound("Execution not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	conflicts, err := h.db.ListConflicts(r.Context(), id)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.Success(map[string]any{
		"execution": exec,
		"conflicts": conflicts,
	})
}

// RollbackExecution undoes an execute-mode run: created entities are
// deleted, modified entities restored from their recorded prior state.
func (h *Handler) RollbackExecution(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := urlParamInt(r, "id")
	if !ok {
		rw.BadRequest("Invalid execution ID")
		return
	}

	var req rollbackRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			rw.BadRequest("Invalid request body: " + err.Error())
			return
		}
	}
	actor := req.Actor
	if actor == "" {
		actor = "api"
	}

	err := h.pipeline.Rollback(r.Context(), id, actor)
	switch {
	case err == nil:
		exec, getErr := h.db.GetExecution(r.Context(), id)
		if getErr != nil {
			rw.Success(map[string]any{"rolled_back": true})
			return
		}
		rw.Success(exec)
	case errors.Is(err, database.ErrExecutionNotFound):
		rw.NotFound("Execution not found")
	case errors.Is(err, autocreate.ErrAlreadyRolledBack),
		errors.Is(err, autocreate.ErrRollbackMode),
		errors.Is(err, autocreate.ErrRollbackStatus):
		rw.Conflict(err.Error())
	default:
		rw.InternalError(err.Error())
	}
}
