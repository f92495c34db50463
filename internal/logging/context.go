// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	correlationIDKey
)

// ContextWithRequestID stores a request ID for later retrieval by
// FromContext.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithNewCorrelationID attaches a fresh correlation ID so log
// lines across a request chain can be joined.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return context.WithValue(ctx, correlationIDKey, uuid.NewString())
}

// RequestIDFromContext returns the stored request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// CorrelationIDFromContext returns the stored correlation ID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// FromContext returns a logger carrying any request and correlation IDs
// found in ctx.
func FromContext(ctx context.Context) zerolog.Logger {
	l := Logger()
	c := l.With()
	changed := false
	if id := RequestIDFromContext(ctx); id != "" {
		c = c.Str("request_id", id)
		changed = true
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		c = c.Str("correlation_id", id)
		changed = true
	}
	if !changed {
		return l
	}
	return c.Logger()
}
