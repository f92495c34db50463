// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package prober

import (
	"testing"
	"time"

	"github.com/tomtom215/streamweaver/internal/models"
)

func TestRampTrajectory(t *testing.T) {
	r := newRampController([]models.Provider{{ID: 1, Name: "provider-a", MaxStreams: 5}})
	now := time.Unix(1000, 0)

	// Limit observed at each successive dispatch: +1 after every window of
	// three consecutive successes.
	want := []int{1, 1, 1, 2, 2, 2, 3}
	for i, w := range want {
		if got := r.limitFor(1); got != w {
			t.Errorf("before probe %d: limit = %d, want %d", i+1, got, w)
		}
		if !r.tryAcquire(1, now) {
			t.Fatalf("probe %d: acquire refused", i+1)
		}
		r.onResult(1, models.ProbeSuccess, "", now)
	}

	// Overload drops the limit and holds the account.
	if !r.tryAcquire(1, now) {
		t.Fatal("acquire refused before overload")
	}
	r.onResult(1, models.ProbeFailed, "HTTP error 429 Too Many Requests", now)
	if got := r.limitFor(1); got != 2 {
		t.Errorf("limit after 429 = %d, want 2", got)
	}
	if r.tryAcquire(1, now.Add(5*time.Second)) {
		t.Error("acquire succeeded during hold")
	}
	if !r.tryAcquire(1, now.Add(rampFailureHold+time.Second)) {
		t.Error("acquire refused after hold expired")
	}
}

func TestRampNonOverloadFailure(t *testing.T) {
	r := newRampController([]models.Provider{{ID: 1, Name: "provider-a", MaxStreams: 5}})
	now := time.Unix(1000, 0)

	// Two successes, then a dead stream.
	for i := 0; i < 2; i++ {
		r.tryAcquire(1, now)
		r.onResult(1, models.ProbeSuccess, "", now)
	}
	r.tryAcquire(1, now)
	r.onResult(1, models.ProbeFailed, "HTTP error 404 Not Found", now)

	if got := r.limitFor(1); got != 1 {
		t.Errorf("limit after 404 = %d, want 1 (unchanged)", got)
	}
	if !r.heldUntil(1).IsZero() {
		t.Error("404 applied a hold")
	}

	// Success counter was reset: three more successes needed to ramp.
	for i := 0; i < 2; i++ {
		r.tryAcquire(1, now)
		r.onResult(1, models.ProbeSuccess, "", now)
	}
	if got := r.limitFor(1); got != 1 {
		t.Errorf("limit after 2 post-failure successes = %d, want 1", got)
	}
	r.tryAcquire(1, now)
	r.onResult(1, models.ProbeSuccess, "", now)
	if got := r.limitFor(1); got != 2 {
		t.Errorf("limit after window completed = %d, want 2", got)
	}
}

func TestRampUnlimitedCap(t *testing.T) {
	r := newRampController([]models.Provider{{ID: 1, Name: "provider-a", MaxStreams: 0}})
	now := time.Unix(1000, 0)
	for i := 0; i < 40; i++ {
		r.tryAcquire(1, now)
		r.onResult(1, models.ProbeSuccess, "", now)
	}
	if got := r.limitFor(1); got != rampUnlimitedCap {
		t.Errorf("limit = %d, want capped at %d", got, rampUnlimitedCap)
	}
}

func TestRampInflightNeverExceedsLimit(t *testing.T) {
	r := newRampController([]models.Provider{{ID: 1, Name: "provider-a", MaxStreams: 5}})
	now := time.Unix(1000, 0)
	if !r.tryAcquire(1, now) {
		t.Fatal("first acquire refused")
	}
	if r.tryAcquire(1, now) {
		t.Error("second acquire exceeded limit 1")
	}
	r.release(1)
	if !r.tryAcquire(1, now) {
		t.Error("acquire refused after release")
	}
}

func TestRampFloorIsOne(t *testing.T) {
	r := newRampController([]models.Provider{{ID: 1, Name: "provider-a", MaxStreams: 5}})
	now := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		r.tryAcquire(1, now)
		r.onResult(1, models.ProbeFailed, "HTTP 503 Service Unavailable", now)
		now = now.Add(rampFailureHold + time.Second)
	}
	if got := r.limitFor(1); got != 1 {
		t.Errorf("limit = %d, want floor 1", got)
	}
}
