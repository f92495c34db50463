// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package middleware provides HTTP middleware shared by the API server:
// request ID propagation and Prometheus request instrumentation.
//
// Each middleware is a standard func(http.Handler) http.Handler and can
// be mounted with chi's Use.
package middleware
