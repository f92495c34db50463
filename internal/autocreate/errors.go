// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package autocreate

import (
	"errors"
	"fmt"
)

// Rollback preconditions.
var (
	ErrRollbackMode      = errors.New("only execute-mode runs can be rolled back")
	ErrRollbackStatus    = errors.New("only completed runs can be rolled back")
	ErrAlreadyRolledBack = errors.New("execution already rolled back")
	ErrRunInProgress     = errors.New("a pipeline run is already in progress")
)

// ActionError wraps an upstream failure with the action and entity it hit.
type ActionError struct {
	Action     string
	EntityType string
	EntityName string
	Err        error
}

func (e *ActionError) Error() string {
	if e.EntityName != "" {
		return fmt.Sprintf("%s on %s %q: %v", e.Action, e.EntityType, e.EntityName, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

func actionErr(action, entityType, entityName string, err error) *ActionError {
	return &ActionError{Action: action, EntityType: entityType, EntityName: entityName, Err: err}
}
