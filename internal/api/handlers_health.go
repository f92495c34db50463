// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package api

import (
	"net/http"
	"time"
)

var startedAt = time.Now()

// HealthLive reports process liveness. Always 200 while the server is
// accepting connections.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]any{
		"status": "ok",
		"uptime": time.Since(startedAt).Round(time.Second).String(),
	})
}

// HealthReady reports readiness: the database must answer a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := h.db.Ping(r.Context()); err != nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Database not ready")
		return
	}
	rw.Success(map[string]any{"status": "ready"})
}
