// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/streamweaver/internal/database"
	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/prober"
)

// ProbeStart launches a background probe run over every stream.
func (h *Handler) ProbeStart(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := h.probe.Start(); err != nil {
		if errors.Is(err, prober.ErrProbeRunning) {
			rw.Conflict(err.Error())
			return
		}
		rw.InternalError(err.Error())
		return
	}
	rw.Accepted(h.probe.Status())
}

// ProbeCancel aborts the current run.
func (h *Handler) ProbeCancel(w http.ResponseWriter, r *http.Request) {
	h.probeTransition(w, r, h.probe.Cancel)
}

// ProbePause holds dispatching; in-flight probes finish.
func (h *Handler) ProbePause(w http.ResponseWriter, r *http.Request) {
	h.probeTransition(w, r, h.probe.Pause)
}

// ProbeResume continues a paused run.
func (h *Handler) ProbeResume(w http.ResponseWriter, r *http.Request) {
	h.probeTransition(w, r, h.probe.Resume)
}

func (h *Handler) probeTransition(w http.ResponseWriter, r *http.Request, op func() error) {
	rw := NewResponseWriter(w, r)

	if err := op(); err != nil {
		if errors.Is(err, prober.ErrProbeNotRunning) || errors.Is(err, prober.ErrProbeRunning) {
			rw.Conflict(err.Error())
			return
		}
		rw.InternalError(err.Error())
		return
	}
	rw.Success(h.probe.Status())
}

// ProbeStatus returns the live run counters.
func (h *Handler) ProbeStatus(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.probe.Status())
}

// ProbeHistory returns past run summaries, newest first.
func (h *Handler) ProbeHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	records, err := h.probe.History()
	if err != nil {
		rw.InternalError(err.Error())
		return
	}
	rw.Success(records)
}

// ListStreamStats returns per-stream probe results. ?status= filters by
// probe outcome.
func (h *Handler) ListStreamStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := models.ProbeStatus(r.URL.Query().Get("status"))
	stats, err := h.db.ListStreamStats(r.Context(), status)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(stats)
}

// DismissStreamStats excludes a stream from future probe runs.
func (h *Handler) DismissStreamStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := urlParamInt(r, "id")
	if !ok {
		rw.BadRequest("Invalid stream ID")
		return
	}

	if err := h.db.DismissStreamStats(r.Context(), id, time.Now()); err != nil {
		if errors.Is(err, database.ErrStreamStatsNotFound) {
			rw.NotFound("No probe results for that stream")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.NoContent()
}
