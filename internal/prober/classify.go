// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package prober

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/tomtom215/streamweaver/internal/models"
)

var httpStatusRe = regexp.MustCompile(`\b(4\d\d|5\d\d)\b`)

// isOverload reports whether a probe error indicates upstream overload:
// HTTP 429 or any 5xx. Overload failures ramp the provider down and hold
// it; all other failures only reset the success counter.
func isOverload(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "429") || strings.Contains(lower, "server returned 5") {
		return true
	}
	for _, m := range httpStatusRe.FindAllString(lower, -1) {
		if m[0] == '5' {
			return true
		}
	}
	return false
}

// transientMarkers are ffprobe error fragments worth retrying. A 404 is a
// dead stream and a connection timeout is indistinguishable from one, so
// neither retries.
var transientMarkers = []string{
	"input/output error",
	"connection reset",
	"broken pipe",
	"ends prematurely",
	"end of file",
	"server returned 5",
}

// isTransient reports whether a probe error is worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "404") || strings.Contains(msg, "connection timed out") {
		return false
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	if isOverload(msg) {
		return true
	}
	return false
}

// classifyStatus maps a terminal probe error to its stats status.
func classifyStatus(err error) models.ProbeStatus {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timed out") {
		return models.ProbeTimeout
	}
	return models.ProbeFailed
}
