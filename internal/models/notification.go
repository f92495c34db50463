// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package models

import "time"

// NotificationType is the severity class of a notification.
type NotificationType string

// Notification types.
const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

// Notification is one progress or completion message surfaced to the
// operator. Delivery channels (email, Discord, Telegram) are external; this
// record covers only the dispatch contract.
type Notification struct {
	ID        int               `json:"id"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Source    string            `json:"source"`
	SourceID  string            `json:"source_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Read      bool              `json:"read"`
}

// JournalEntry is one audit event (watch start/stop, execution lifecycle,
// rollback) persisted to the journal and published on the event bus.
type JournalEntry struct {
	ID        string            `json:"id"` // uuid
	Event     string            `json:"event"`
	Subject   string            `json:"subject,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
