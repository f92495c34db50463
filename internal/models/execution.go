// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package models

import "time"

// ExecutionMode distinguishes simulated runs from real ones.
type ExecutionMode string

// Execution modes.
const (
	ModeDryRun  ExecutionMode = "dry_run"
	ModeExecute ExecutionMode = "execute"
)

// ExecutionStatus is the lifecycle state of a pipeline execution.
type ExecutionStatus string

// Execution statuses.
const (
	ExecRunning    ExecutionStatus = "running"
	ExecCompleted  ExecutionStatus = "completed"
	ExecRolledBack ExecutionStatus = "rolled_back"
	ExecFailed     ExecutionStatus = "failed"
)

// EntityRef identifies one upstream entity touched by an execution.
// For modified entities PreviousState carries the minimal JSON needed to
// restore the pre-mutation state on rollback.
type EntityRef struct {
	EntityType    string `json:"entity_type"` // "channel" or "group"
	EntityID      int    `json:"entity_id"`
	EntityName    string `json:"entity_name,omitempty"`
	RuleID        int    `json:"rule_id,omitempty"`
	PreviousState []byte `json:"previous_state,omitempty"`
}

// ActionResult is the outcome of one action applied to one stream.
type ActionResult struct {
	Success       bool              `json:"success"`
	ActionType    ActionType        `json:"action_type"`
	Description   string            `json:"description,omitempty"`
	EntityType    string            `json:"entity_type,omitempty"`
	EntityID      int               `json:"entity_id,omitempty"`
	EntityName    string            `json:"entity_name,omitempty"`
	Created       bool              `json:"created,omitempty"`
	Modified      bool              `json:"modified,omitempty"`
	Skipped       bool              `json:"skipped,omitempty"`
	PreviousState []byte            `json:"previous_state,omitempty"`
	Error         string            `json:"error,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// ConditionTrace is one evaluated condition in a rule's evaluation log.
// Evaluation never short-circuits, so the trace always covers every
// condition of the rule.
type ConditionTrace struct {
	Type      ConditionType `json:"type"`
	Value     string        `json:"value"`
	Matched   bool          `json:"matched"`
	Details   string        `json:"details,omitempty"`
	Connector Connector     `json:"connector"`
}

// EvalResult is the evaluator's verdict for one (stream, rule) pair.
type EvalResult struct {
	Matched       bool             `json:"matched"`
	ConditionsLog []ConditionTrace `json:"conditions_log"`
}

// StreamLogEntry records everything the pipeline did for one stream.
// ConditionsLog carries the winning rule's full condition trace so the
// persisted log shows why the rule matched.
type StreamLogEntry struct {
	StreamID      int              `json:"stream_id"`
	StreamName    string           `json:"stream_name"`
	RuleID        int              `json:"rule_id,omitempty"`
	RuleName      string           `json:"rule_name,omitempty"`
	Matched       bool             `json:"matched"`
	ConditionsLog []ConditionTrace `json:"conditions_log,omitempty"`
	Actions       []ActionResult   `json:"actions,omitempty"`
}

// Execution records one pipeline run for audit and rollback.
type Execution struct {
	ID               int             `json:"id"`
	Mode             ExecutionMode   `json:"mode"`
	TriggeredBy      string          `json:"triggered_by"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	Status           ExecutionStatus `json:"status"`
	StreamsEvaluated int             `json:"streams_evaluated"`
	StreamsMatched   int             `json:"streams_matched"`
	ChannelsCreated  int             `json:"channels_created"`
	ChannelsUpdated  int             `json:"channels_updated"`
	GroupsCreated    int             `json:"groups_created"`
	StreamsMerged    int             `json:"streams_merged"`
	StreamsSkipped   int             `json:"streams_skipped"`
	CreatedEntities  []EntityRef     `json:"created_entities,omitempty"`
	ModifiedEntities []EntityRef     `json:"modified_entities,omitempty"`

	// ExecutionLog is populated for execute runs, DryRunResults for dry
	// runs; never both.
	ExecutionLog  []StreamLogEntry `json:"execution_log,omitempty"`
	DryRunResults []StreamLogEntry `json:"dry_run_results,omitempty"`

	RolledBackAt *time.Time `json:"rolled_back_at,omitempty"`
	RolledBackBy string     `json:"rolled_back_by,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Conflict records that more than one rule matched the same stream in one
// execution. First match by priority wins; conflicts are recorded, never
// resolved.
type Conflict struct {
	ID           int       `json:"id"`
	ExecutionID  int       `json:"execution_id"`
	StreamID     int       `json:"stream_id"`
	StreamName   string    `json:"stream_name"`
	WinningRule  int       `json:"winning_rule_id"`
	LosingRules  []int     `json:"losing_rule_ids"`
	ConflictType string    `json:"conflict_type"`
	Resolution   string    `json:"resolution"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
