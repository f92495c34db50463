// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package notify persists operator notifications with rate limiting.
//
// Producers that emit high-frequency progress updates (the prober, the
// bandwidth tracker) go through a Sink so that message edits are throttled
// while creations, finalizations and deletions always land.
package notify

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/tomtom215/streamweaver/internal/database"
	"github.com/tomtom215/streamweaver/internal/models"
)

// Sink writes notifications to the database. Update calls are rate limited
// and silently dropped when over the limit; Create, Finalize and
// DeleteBySource are never dropped.
type Sink struct {
	db      *database.DB
	limiter *rate.Limiter
}

// New returns a Sink allowing one update per second with a small burst.
func New(db *database.DB) *Sink {
	return &Sink{db: db, limiter: rate.NewLimiter(rate.Limit(1), 3)}
}

// Create inserts a notification and returns its ID.
func (s *Sink) Create(ctx context.Context, n *models.Notification) (int, error) {
	return s.db.CreateNotification(ctx, n)
}

// Update edits a notification in place, subject to the rate limit. A
// throttled update returns nil; the next permitted update carries the
// newest state anyway.
func (s *Sink) Update(ctx context.Context, n *models.Notification) error {
	if !s.limiter.Allow() {
		return nil
	}
	return s.db.UpdateNotification(ctx, n)
}

// Finalize edits a notification bypassing the rate limit, used for the
// terminal state of a long-running operation.
func (s *Sink) Finalize(ctx context.Context, n *models.Notification) error {
	return s.db.UpdateNotification(ctx, n)
}

// DeleteBySource removes every notification tied to one source entity.
func (s *Sink) DeleteBySource(ctx context.Context, source, sourceID string) error {
	return s.db.DeleteNotificationsBySource(ctx, source, sourceID)
}
