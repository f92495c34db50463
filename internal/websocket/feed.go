// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package websocket

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/streamweaver/internal/logging"
	"github.com/tomtom215/streamweaver/internal/models"
)

// progressPollInterval is how often the feed snapshots probe counters.
const progressPollInterval = time.Second

// JournalSource delivers journal messages to the feed.
type JournalSource interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

// ProgressSource reports live probe run counters.
type ProgressSource interface {
	Status() models.ProbeProgress
}

// Feed bridges the journal bus and the prober's counters onto the hub.
type Feed struct {
	hub      *Hub
	journal  JournalSource
	progress ProgressSource
}

// NewFeed wires a feed to its sources. Either source may be nil; the
// corresponding stream is simply not published.
func NewFeed(hub *Hub, journal JournalSource, progress ProgressSource) *Feed {
	return &Feed{hub: hub, journal: journal, progress: progress}
}

// Serve pumps both sources until ctx is cancelled. It satisfies the
// suture service contract.
func (f *Feed) Serve(ctx context.Context) error {
	var journalCh <-chan *message.Message
	if f.journal != nil {
		ch, err := f.journal.Subscribe(ctx)
		if err != nil {
			return err
		}
		journalCh = ch
	}

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	// Only push progress while a run is live, plus one final frame so
	// clients see the terminal state.
	var lastStatus models.ProbeRunStatus = models.ProbeRunIdle

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "websocket-feed").Msg("Websocket feed stopped")
			return ctx.Err()
		case msg, ok := <-journalCh:
			if !ok {
				journalCh = nil
				continue
			}
			f.forwardJournal(msg)
		case <-ticker.C:
			if f.progress == nil {
				continue
			}
			snap := f.progress.Status()
			if snap.Status == models.ProbeRunIdle && lastStatus == models.ProbeRunIdle {
				continue
			}
			lastStatus = snap.Status
			f.hub.Broadcast(Message{Type: MessageTypeProbeProgress, Data: snap})
			if snap.Status != models.ProbeRunRunning && snap.Status != models.ProbeRunPaused {
				lastStatus = models.ProbeRunIdle
			}
		}
	}
}

func (f *Feed) forwardJournal(msg *message.Message) {
	defer msg.Ack()

	var entry models.JournalEntry
	if err := json.Unmarshal(msg.Payload, &entry); err != nil {
		logging.Err(err).Str("message_id", msg.UUID).Msg("Failed to decode journal message")
		return
	}
	f.hub.Broadcast(Message{Type: MessageTypeJournalEvent, Data: entry})
}
