// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/streamweaver/internal/database"
	"github.com/tomtom215/streamweaver/internal/models"
)

// ListRules returns all creation rules. ?enabled=true filters to
// enabled rules only.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	enabledOnly := r.URL.Query().Get("enabled") == "true"
	rules, err := h.db.ListRules(r.Context(), enabledOnly)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(rules)
}

// GetRule returns one rule.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := urlParamInt(r, "id")
	if !ok {
		rw.BadRequest("Invalid rule ID")
		return
	}

	rule, err := h.db.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrRuleNotFound) {
			rw.NotFound("Rule not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Success(rule)
}

// CreateRule stores a new creation rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var rule models.Rule
	if err := decodeBody(r, &rule); err != nil {
		rw.BadRequest("Invalid request body: " + err.Error())
		return
	}
	if problems := validateRule(&rule); len(problems) > 0 {
		rw.ValidationError("Rule validation failed", problems)
		return
	}

	created, err := h.db.CreateRule(r.Context(), &rule)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Created(created)
}

// UpdateRule replaces an existing rule. Managed channel IDs are kept;
// only the rule definition changes.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := urlParamInt(r, "id")
	if !ok {
		rw.BadRequest("Invalid rule ID")
		return
	}

	var rule models.Rule
	if err := decodeBody(r, &rule); err != nil {
		rw.BadRequest("Invalid request body: " + err.Error())
		return
	}
	rule.ID = id
	if problems := validateRule(&rule); len(problems) > 0 {
		rw.ValidationError("Rule validation failed", problems)
		return
	}

	if err := h.db.UpdateRule(r.Context(), &rule); err != nil {
		if errors.Is(err, database.ErrRuleNotFound) {
			rw.NotFound("Rule not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Success(&rule)
}

// DeleteRule removes a rule. Channels it created are left in place.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := urlParamInt(r, "id")
	if !ok {
		rw.BadRequest("Invalid rule ID")
		return
	}

	if err := h.db.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrRuleNotFound) {
			rw.NotFound("Rule not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.NoContent()
}

// ListRuleGroups returns the rule grouping folders.
func (h *Handler) ListRuleGroups(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	groups, err := h.db.ListRuleGroups(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(groups)
}

func validateRule(rule *models.Rule) map[string]string {
	problems := make(map[string]string)
	if rule.Name == "" {
		problems["name"] = "name is required"
	}
	if len(rule.Conditions) == 0 {
		problems["conditions"] = "at least one condition is required"
	}
	if len(rule.Actions) == 0 {
		problems["actions"] = "at least one action is required"
	}
	if rule.Priority < 0 {
		problems["priority"] = "priority must not be negative"
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}
