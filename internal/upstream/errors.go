// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package upstream

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a 404 from the upstream. Deletes treat it as success.
var ErrNotFound = errors.New("upstream: not found")

// StatusError carries a non-2xx upstream response.
type StatusError struct {
	Operation string
	Code      int
	Body      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d: %s", e.Operation, e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 from the upstream.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code == 404
}

// IsDuplicate reports whether err looks like a duplicate-entity rejection
// (4xx on create). Callers recover by finding the existing entity.
func IsDuplicate(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == 400 || se.Code == 409
}

// StatusCode extracts the HTTP status from err, or zero.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
