// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package api exposes the admin HTTP API.
//
// All endpoints live under /api/v1 and return the APIResponse envelope.
// Routing uses chi with per-group rate limits: health endpoints get a
// permissive limit for monitoring, everything else shares the configured
// per-IP budget. Prometheus metrics are served on /metrics and the
// websocket feed on /api/v1/ws.
//
// Surface:
//
//	POST /api/v1/pipeline/run        trigger a pipeline run (dry_run or execute)
//	GET  /api/v1/executions          list past runs
//	GET  /api/v1/executions/{id}     one run with its log and conflicts
//	POST /api/v1/executions/{id}/rollback
//	CRUD /api/v1/rules               creation rule management
//	POST /api/v1/probe/start|cancel|pause|resume
//	GET  /api/v1/probe/status|history
//	GET  /api/v1/streams/stats       probe results per stream
//	POST /api/v1/streams/{id}/dismiss
//	GET  /api/v1/bandwidth/daily|channels|connections
//	GET  /api/v1/journal             append-only event feed
//	GET  /api/v1/notifications, POST /api/v1/notifications/{id}/read
package api
