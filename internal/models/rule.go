// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package models

import "time"

// ConditionType enumerates the supported stream-matching predicates.
type ConditionType string

// Condition types. The zero value is invalid.
const (
	CondNameContains ConditionType = "name_contains"
	CondNameRegex    ConditionType = "name_regex"
	CondGroupEquals  ConditionType = "group_equals"
	CondTagIn        ConditionType = "tag_in"
	CondTvgPresent   ConditionType = "tvg_present"
	CondResolutionGE ConditionType = "resolution_ge"
	CondAlways       ConditionType = "always"
)

// Connector joins a condition to the one before it. An "or" connector starts
// a new AND-group: the rule matches when any AND-group matches fully.
type Connector string

// Connector values.
const (
	ConnectorAnd Connector = "and"
	ConnectorOr  Connector = "or"
)

// Condition is one predicate inside a rule's condition sequence.
type Condition struct {
	Type      ConditionType `json:"type"`
	Value     string        `json:"value"`
	Connector Connector     `json:"connector"`
	Negate    bool          `json:"negate,omitempty"`
}

// ActionType enumerates the supported rule actions.
type ActionType string

// Action types executed by the action executor, in the order they may
// usefully appear inside a rule.
const (
	ActionCreateChannel    ActionType = "create_channel"
	ActionCreateGroup      ActionType = "create_group"
	ActionMergeStreams     ActionType = "merge_streams"
	ActionAssignLogo       ActionType = "assign_logo"
	ActionAssignTvgID      ActionType = "assign_tvg_id"
	ActionAssignEpg        ActionType = "assign_epg"
	ActionAssignProfile    ActionType = "assign_profile"
	ActionSetChannelNumber ActionType = "set_channel_number"
	ActionSetVariable      ActionType = "set_variable"
	ActionSkip             ActionType = "skip"
	ActionStopProcessing   ActionType = "stop_processing"
	ActionLogMatch         ActionType = "log_match"
)

// Action is one step of a rule's action chain. Params are action-specific
// and documented on the executor.
type Action struct {
	Type   ActionType        `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}

// OrphanAction controls what reconciliation does with channels a rule
// previously managed but no longer matches.
type OrphanAction string

// Orphan actions.
const (
	OrphanDelete            OrphanAction = "delete"
	OrphanMoveUncategorized OrphanAction = "move_uncategorized"
	OrphanDeleteCleanup     OrphanAction = "delete_and_cleanup_groups"
	OrphanNone              OrphanAction = "none"
)

// SortOrder for rule output ordering.
type SortOrder string

// Sort orders.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Rule is one auto-creation rule: a prioritized (conditions, actions) pair
// with orphan-reconciliation policy. Rules with lower Priority run first.
//
// ManagedChannelIDs is the durable reconciliation anchor: after each
// non-dry-run execution it holds exactly the channel IDs that execution
// created or merged into. A nil slice means the rule has never completed a
// run under reconciliation (first run populates without deleting).
type Rule struct {
	ID               int          `json:"id"`
	Name             string       `json:"name"`
	Enabled          bool         `json:"enabled"`
	Priority         int          `json:"priority"`
	GroupID          *int         `json:"group_id,omitempty"`
	ProviderID       *int         `json:"provider_id,omitempty"`
	TargetGroupID    *int         `json:"target_group_id,omitempty"`
	Conditions       []Condition  `json:"conditions"`
	Actions          []Action     `json:"actions"`
	StopOnFirstMatch bool         `json:"stop_on_first_match"`
	SortField        string       `json:"sort_field,omitempty"`
	SortOrder        SortOrder    `json:"sort_order,omitempty"`
	ProbeOnSort      bool         `json:"probe_on_sort,omitempty"`
	NormalizeNames   bool         `json:"normalize_names,omitempty"`
	StartingNumber   int          `json:"starting_number,omitempty"`
	OrphanAction     OrphanAction `json:"orphan_action"`

	// ManagedChannelIDs is nil until the first reconciled run completes.
	ManagedChannelIDs []int `json:"managed_channel_ids,omitempty"`

	MatchCount int        `json:"match_count"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RuleGroup is an optional folder for organizing rules.
type RuleGroup struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TagGroup names a set of tags used by tag_in conditions and by core-name
// stripping during channel matching.
type TagGroup struct {
	ID   int      `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// NormalizationRule is one name-rewrite applied by the normalizer before
// matching, in ascending Order.
type NormalizationRule struct {
	ID          int    `json:"id"`
	GroupID     *int   `json:"group_id,omitempty"`
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	IsRegex     bool   `json:"is_regex"`
	Order       int    `json:"order"`
	Enabled     bool   `json:"enabled"`
}
