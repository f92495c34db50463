// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package api

import (
	"net/http"
	"time"
)

const dateLayout = "2006-01-02"

// queryDate parses an optional YYYY-MM-DD query parameter, defaulting
// to today.
func queryDate(r *http.Request, name string) (string, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Now().Format(dateLayout), true
	}
	if _, err := time.Parse(dateLayout, raw); err != nil {
		return "", false
	}
	return raw, true
}

// BandwidthDaily returns daily totals. ?from= and ?to= bound the range;
// both default to today.
func (h *Handler) BandwidthDaily(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	from, ok := queryDate(r, "from")
	if !ok {
		rw.BadRequest("from must be YYYY-MM-DD")
		return
	}
	to, ok := queryDate(r, "to")
	if !ok {
		rw.BadRequest("to must be YYYY-MM-DD")
		return
	}
	if from > to {
		rw.BadRequest("from must not be after to")
		return
	}

	rows, err := h.db.ListDaily(r.Context(), from, to)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(rows)
}

// BandwidthChannels returns per-channel bandwidth for one day.
func (h *Handler) BandwidthChannels(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	date, ok := queryDate(r, "date")
	if !ok {
		rw.BadRequest("date must be YYYY-MM-DD")
		return
	}

	rows, err := h.db.ListChannelBandwidth(r.Context(), date)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(rows)
}

// BandwidthConnections returns per-client connection rows for one day
// together with the unique client count.
func (h *Handler) BandwidthConnections(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	date, ok := queryDate(r, "date")
	if !ok {
		rw.BadRequest("date must be YYYY-MM-DD")
		return
	}

	rows, err := h.db.ListConnections(r.Context(), date)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	unique, err := h.db.CountUniqueClients(r.Context(), date)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.Success(map[string]any{
		"date":           date,
		"unique_clients": unique,
		"connections":    rows,
	})
}
