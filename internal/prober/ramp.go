// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package prober

import (
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/streamweaver/internal/metrics"
	"github.com/tomtom215/streamweaver/internal/models"
)

const (
	// rampSuccessWindow consecutive successes raise the limit by one.
	rampSuccessWindow = 3

	// rampUnlimitedCap bounds accounts reporting zero/unlimited max_streams.
	rampUnlimitedCap = 4

	// rampFailureHold is how long an account sits out after an overload.
	rampFailureHold = 10 * time.Second
)

// accountState is the ramp-up state of one provider account within a run.
type accountState struct {
	name      string
	limit     int
	cap       int
	successes int
	inflight  int
	holdUntil time.Time
}

// rampController grows per-provider probe concurrency on success and
// shrinks it on overload. State is reset per probe run.
type rampController struct {
	mu       sync.Mutex
	accounts map[int]*accountState
}

func newRampController(providers []models.Provider) *rampController {
	accounts := make(map[int]*accountState, len(providers))
	for _, p := range providers {
		limit := p.MaxStreams
		if limit <= 0 {
			limit = rampUnlimitedCap
		}
		accounts[p.ID] = &accountState{name: p.Name, limit: 1, cap: limit}
		metrics.ProbeRampLimit.WithLabelValues(p.Name).Set(1)
	}
	return &rampController{accounts: accounts}
}

// tryAcquire reserves one probe slot on the account. It fails while the
// account is held or at its current limit. An unknown provider gets a
// single implicit slot.
func (r *rampController) tryAcquire(providerID int, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[providerID]
	if !ok {
		a = &accountState{name: strconv.Itoa(providerID), limit: 1, cap: 1}
		r.accounts[providerID] = a
	}
	if now.Before(a.holdUntil) || a.inflight >= a.limit {
		return false
	}
	a.inflight++
	return true
}

// release frees a slot without a ramp transition, for probes that never
// dispatched (no profile room).
func (r *rampController) release(providerID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[providerID]; ok && a.inflight > 0 {
		a.inflight--
	}
}

// onResult releases the slot and applies the ramp transition for one
// finished probe.
func (r *rampController) onResult(providerID int, status models.ProbeStatus, errMsg string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[providerID]
	if !ok {
		return
	}
	if a.inflight > 0 {
		a.inflight--
	}

	switch {
	case status == models.ProbeSuccess:
		a.successes++
		if a.successes >= rampSuccessWindow {
			a.successes = 0
			if a.limit < a.cap {
				a.limit++
			}
		}
	case isOverload(errMsg):
		a.successes = 0
		if a.limit > 1 {
			a.limit--
		}
		a.holdUntil = now.Add(rampFailureHold)
		metrics.ProbeHolds.WithLabelValues(a.name).Inc()
	default:
		// Dead stream or local failure: no ramp-down, no hold.
		a.successes = 0
	}
	metrics.ProbeRampLimit.WithLabelValues(a.name).Set(float64(a.limit))
}

// limitFor reports the current ramp limit, for status endpoints and tests.
func (r *rampController) limitFor(providerID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[providerID]; ok {
		return a.limit
	}
	return 0
}

// heldUntil reports the hold deadline of an account, zero when not held.
func (r *rampController) heldUntil(providerID int) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[providerID]; ok {
		return a.holdUntil
	}
	return time.Time{}
}

// maxHoldRemaining reports the longest remaining hold across accounts and
// the names of the held ones.
func (r *rampController) maxHoldRemaining(now time.Time) (time.Duration, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var longest time.Duration
	var held []string
	for _, a := range r.accounts {
		if rem := a.holdUntil.Sub(now); rem > 0 {
			held = append(held, a.name)
			if rem > longest {
				longest = rem
			}
		}
	}
	return longest, held
}
