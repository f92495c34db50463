// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package api

import (
	"net/http"
)

// ListJournal returns persisted journal events, newest first. ?event=
// filters by event name (e.g. watch:start).
func (h *Handler) ListJournal(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	event := r.URL.Query().Get("event")
	limit := queryInt(r, "limit", 100)

	entries, err := h.journal.List(r.Context(), event, limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.SuccessWithPagination(entries, &PaginationMeta{
		Count:   len(entries),
		Limit:   limit,
		HasMore: len(entries) == limit,
	})
}

// ListNotifications returns recent notifications. ?unread=true filters
// to unread.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit := queryInt(r, "limit", 50)

	items, err := h.db.ListNotifications(r.Context(), unreadOnly, limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(items)
}

// MarkNotificationRead flags a notification as read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := urlParamInt(r, "id")
	if !ok {
		rw.BadRequest("Invalid notification ID")
		return
	}

	if err := h.db.MarkNotificationRead(r.Context(), id); err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.NoContent()
}
