// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/streamweaver/internal/autocreate"
	"github.com/tomtom215/streamweaver/internal/database"
	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/websocket"
)

// PipelineRunner drives auto-creation pipeline runs.
type PipelineRunner interface {
	Run(ctx context.Context, opts autocreate.RunOptions) (*models.Execution, error)
	Rollback(ctx context.Context, executionID int, actor string) error
}

// ProbeController drives the stream prober.
type ProbeController interface {
	Start() error
	Pause() error
	Resume() error
	Cancel() error
	Status() models.ProbeProgress
	History() ([]models.ProbeRunRecord, error)
}

// JournalReader lists persisted journal events.
type JournalReader interface {
	List(ctx context.Context, event string, limit int) ([]models.JournalEntry, error)
}

// Handler holds the dependencies shared by all endpoint handlers.
type Handler struct {
	db       *database.DB
	pipeline PipelineRunner
	probe    ProbeController
	journal  JournalReader
	hub      *websocket.Hub
}

// NewHandler wires a handler. hub may be nil when the websocket feed is
// disabled; the /ws endpoint then returns 503.
func NewHandler(db *database.DB, pipeline PipelineRunner, probe ProbeController, journal JournalReader, hub *websocket.Hub) *Handler {
	return &Handler{
		db:       db,
		pipeline: pipeline,
		probe:    probe,
		journal:  journal,
		hub:      hub,
	}
}

// WebSocket upgrades the connection and attaches it to the event hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		NewResponseWriter(w, r).Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Event feed is not enabled")
		return
	}
	websocket.ServeWS(h.hub, w, r)
}

// urlParamInt parses a chi URL parameter as a positive integer.
func urlParamInt(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter, falling back to
// def when absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// decodeBody decodes a JSON request body into dst. Unknown fields are
// rejected so typos surface instead of being silently dropped.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
