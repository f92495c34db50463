// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package journal persists audit events and fans them out on an event bus.
//
// Every event (execution lifecycle, watch start/stop, rollback) is written
// to the journal_entries table and published on an in-process gochannel
// topic that live consumers such as the websocket feed subscribe to. When
// NATS is enabled, events are mirrored to a JetStream subject as well.
package journal

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/streamweaver/internal/config"
	"github.com/tomtom215/streamweaver/internal/database"
	"github.com/tomtom215/streamweaver/internal/logging"
	"github.com/tomtom215/streamweaver/internal/models"
)

// Topic carries every journal event on the in-process bus.
const Topic = "journal.events"

// metadata keys on published messages.
const (
	MetaEvent   = "event"
	MetaSubject = "subject"
)

// Bus is the journal: database persistence plus event fan-out.
type Bus struct {
	db     *database.DB
	local  *gochannel.GoChannel
	mirror message.Publisher // nil unless NATS is enabled
}

// New builds the journal bus. NATS connection problems are not fatal; the
// mirror is skipped and local fan-out still works.
func New(db *database.DB, cfg config.NATSConfig) *Bus {
	b := &Bus{
		db: db,
		local: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, watermill.NopLogger{}),
	}
	if cfg.Enabled {
		pub, err := wnats.NewPublisher(wnats.PublisherConfig{
			URL: cfg.URL,
			NatsOptions: []natsgo.Option{
				natsgo.RetryOnFailedConnect(true),
				natsgo.Name("streamweaver"),
			},
			JetStream: wnats.JetStreamConfig{AutoProvision: true},
		}, watermill.NopLogger{})
		if err != nil {
			logging.Err(err).Str("url", cfg.URL).Msg("NATS mirror unavailable, journal stays local")
		} else {
			b.mirror = pub
		}
	}
	return b
}

// Publish persists one journal entry and fans it out. Persistence failures
// are logged, not returned: an audit hiccup must never fail the operation
// that emitted it.
func (b *Bus) Publish(ctx context.Context, event, subject string, details map[string]string) {
	entry := &models.JournalEntry{
		ID:        uuid.NewString(),
		Event:     event,
		Subject:   subject,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.db.AppendJournal(ctx, entry); err != nil {
		logging.Err(err).Str("event", event).Msg("Journal write failed")
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		logging.Err(err).Str("event", event).Msg("Journal encode failed")
		return
	}
	msg := message.NewMessage(entry.ID, payload)
	msg.Metadata.Set(MetaEvent, event)
	msg.Metadata.Set(MetaSubject, subject)

	if err := b.local.Publish(Topic, msg); err != nil {
		logging.Err(err).Str("event", event).Msg("Journal fan-out failed")
	}
	if b.mirror != nil {
		if err := b.mirror.Publish(Topic, msg); err != nil {
			logging.Err(err).Str("event", event).Msg("NATS mirror publish failed")
		}
	}
}

// Subscribe returns a channel of journal events for live consumers. The
// subscription ends when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.local.Subscribe(ctx, Topic)
}

// List reads persisted entries, optionally filtered by event name.
func (b *Bus) List(ctx context.Context, event string, limit int) ([]models.JournalEntry, error) {
	return b.db.ListJournal(ctx, event, limit)
}

// Close shuts the bus down.
func (b *Bus) Close() error {
	if b.mirror != nil {
		if err := b.mirror.Close(); err != nil {
			logging.Err(err).Msg("NATS mirror close failed")
		}
	}
	return b.local.Close()
}
