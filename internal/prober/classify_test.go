// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package prober

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/streamweaver/internal/models"
)

func TestIsOverload(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"HTTP error 429 Too Many Requests", true},
		{"Server returned 5XX Server Error reply", true},
		{"HTTP error 503 Service Unavailable", true},
		{"HTTP error 404 Not Found", false},
		{"Connection refused", false},
		{"Input/output error", false},
	}
	for _, tt := range tests {
		if got := isOverload(tt.msg); got != tt.want {
			t.Errorf("isOverload(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"ffprobe: Input/output error", true},
		{"read tcp: connection reset by peer", true},
		{"write: broken pipe", true},
		{"stream ends prematurely at 1024", true},
		{"HTTP error 503 Service Unavailable", true},
		{"HTTP error 404 Not Found", false},
		{"connect: connection timed out", false},
		{"no such file or directory", false},
	}
	for _, tt := range tests {
		if got := isTransient(errors.New(tt.msg)); got != tt.want {
			t.Errorf("isTransient(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
	if isTransient(nil) {
		t.Error("isTransient(nil) = true")
	}
}

func TestClassifyStatus(t *testing.T) {
	if got := classifyStatus(context.DeadlineExceeded); got != models.ProbeTimeout {
		t.Errorf("deadline exceeded = %q, want timeout", got)
	}
	if got := classifyStatus(errors.New("operation timed out")); got != models.ProbeTimeout {
		t.Errorf("timed out message = %q, want timeout", got)
	}
	if got := classifyStatus(errors.New("HTTP error 404 Not Found")); got != models.ProbeFailed {
		t.Errorf("404 = %q, want failed", got)
	}
}
