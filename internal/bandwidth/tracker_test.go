// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package bandwidth

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/streamweaver/internal/config"
	"github.com/tomtom215/streamweaver/internal/database"
	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/upstream/upstreamtest"
)

type journalEvent struct {
	event   string
	subject string
	ips     []string
}

type stubJournal struct {
	events []journalEvent
}

func (j *stubJournal) Publish(_ context.Context, event, subject string, details map[string]string) {
	var ips []string
	if raw := details["ips"]; raw != "" {
		ips = strings.Split(raw, ",")
		sort.Strings(ips)
	}
	j.events = append(j.events, journalEvent{event: event, subject: subject, ips: ips})
}

func testTracker(t *testing.T) (*Tracker, *upstreamtest.Fake, *database.DB, *stubJournal) {
	t.Helper()
	db, err := database.New(database.Options{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fake := upstreamtest.New()
	cfg := &config.Config{}
	cfg.Upstream.PageSize = 100
	cfg.Bandwidth.PollInterval = 10 * time.Second
	cfg.Bandwidth.Timezone = "UTC"
	cfg.Bandwidth.RetentionDays = 30

	journal := &stubJournal{}
	tracker, err := New(fake, db, cfg, journal)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	return tracker, fake, db, journal
}

func sample(total int64, ips ...string) *models.StatsSnapshot {
	ch := models.ChannelStats{
		ChannelID:   "c1",
		ChannelName: "ESPN",
		TotalBytes:  total,
		ClientCount: len(ips),
	}
	for _, ip := range ips {
		ch.Clients = append(ch.Clients, models.ClientStats{IPAddress: ip})
	}
	return &models.StatsSnapshot{Channels: []models.ChannelStats{ch}}
}

func TestWatchCycle(t *testing.T) {
	tracker, fake, db, journal := testTracker(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	now := base
	tracker.now = func() time.Time { return now }
	date := "2026-08-26"

	fake.StatsQueue = []*models.StatsSnapshot{
		sample(1000, "10.0.0.1"),
		sample(3000, "10.0.0.1", "10.0.0.2"),
		{}, // channel gone
	}

	// Sample 1: channel appears with client A.
	if err := tracker.Sample(ctx); err != nil {
		t.Fatalf("sample 1: %v", err)
	}
	if len(journal.events) != 1 || journal.events[0].event != "watch:start" || journal.events[0].subject != "c1" {
		t.Fatalf("after S1 events = %+v, want one watch:start for c1", journal.events)
	}
	if got := journal.events[0].ips; len(got) != 1 || got[0] != "10.0.0.1" {
		t.Errorf("watch:start ips = %v, want [10.0.0.1]", got)
	}
	conns, err := db.ListConnections(ctx, date)
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 1 || conns[0].DisconnectedAt != nil {
		t.Fatalf("after S1 connections = %+v, want one open row", conns)
	}

	// Sample 2: 2000 more bytes, client B joins, A accrues watch time.
	now = now.Add(10 * time.Second)
	if err := tracker.Sample(ctx); err != nil {
		t.Fatalf("sample 2: %v", err)
	}
	conns, err = db.ListConnections(ctx, date)
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 2 {
		t.Fatalf("after S2 got %d connections, want 2", len(conns))
	}
	byIP := make(map[string]models.UniqueClientConnection)
	for _, c := range conns {
		byIP[c.IPAddress] = c
	}
	if byIP["10.0.0.1"].WatchSeconds != 10 {
		t.Errorf("A watch_seconds = %d, want 10", byIP["10.0.0.1"].WatchSeconds)
	}
	if byIP["10.0.0.2"].WatchSeconds != 0 {
		t.Errorf("B watch_seconds = %d, want 0", byIP["10.0.0.2"].WatchSeconds)
	}

	daily, err := db.GetDaily(ctx, date)
	if err != nil {
		t.Fatal(err)
	}
	if daily == nil {
		t.Fatal("no daily row")
	}
	// S1: delta 1000, one client. S2: delta 2000 split over two clients.
	if daily.BytesOut != 3000 {
		t.Errorf("bytes_out = %d, want 3000", daily.BytesOut)
	}
	if daily.BytesIn != 2000 {
		t.Errorf("bytes_in = %d, want 2000", daily.BytesIn)
	}
	if daily.BytesTransferred != daily.BytesIn+daily.BytesOut {
		t.Errorf("bytes_transferred = %d, want in+out = %d", daily.BytesTransferred, daily.BytesIn+daily.BytesOut)
	}
	if daily.PeakClients != 2 {
		t.Errorf("peak_clients = %d, want 2", daily.PeakClients)
	}

	// Sample 3: channel gone, everyone disconnects.
	now = now.Add(10 * time.Second)
	if err := tracker.Sample(ctx); err != nil {
		t.Fatalf("sample 3: %v", err)
	}
	last := journal.events[len(journal.events)-1]
	if last.event != "watch:stop" || last.subject != "c1" {
		t.Errorf("after S3 last event = %+v, want watch:stop for c1", last)
	}
	conns, err = db.ListConnections(ctx, date)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range conns {
		if c.DisconnectedAt == nil {
			t.Errorf("connection %s still open after channel vanished", c.IPAddress)
		}
		if c.DisconnectedAt != nil && c.DisconnectedAt.Before(c.ConnectedAt) {
			t.Errorf("connection %s disconnected before it connected", c.IPAddress)
		}
	}

	unique, err := db.CountUniqueClients(ctx, date)
	if err != nil {
		t.Fatal(err)
	}
	if unique != 2 {
		t.Errorf("unique clients = %d, want 2", unique)
	}

	channels, err := db.ListChannelBandwidth(ctx, date)
	if err != nil {
		t.Fatal(err)
	}
	if len(channels) != 1 {
		t.Fatalf("got %d channel rows, want 1", len(channels))
	}
	cb := channels[0]
	if cb.ChannelName != "ESPN" || cb.BytesTransferred != 3000 || cb.PeakClients != 2 {
		t.Errorf("channel row = %+v, want ESPN/3000 bytes/peak 2", cb)
	}
	// 10s with one client plus 10s with two clients.
	if cb.TotalWatchSeconds != 30 {
		t.Errorf("total_watch_seconds = %d, want 30", cb.TotalWatchSeconds)
	}
}

func TestCounterResetClampsDelta(t *testing.T) {
	tracker, fake, db, _ := testTracker(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }

	fake.StatsQueue = []*models.StatsSnapshot{
		sample(5000, "10.0.0.1"),
		sample(100, "10.0.0.1"), // upstream restarted, counter reset
	}
	if err := tracker.Sample(ctx); err != nil {
		t.Fatal(err)
	}
	now = now.Add(10 * time.Second)
	if err := tracker.Sample(ctx); err != nil {
		t.Fatal(err)
	}

	daily, err := db.GetDaily(ctx, "2026-08-26")
	if err != nil {
		t.Fatal(err)
	}
	// The reset sample contributes zero, not a negative delta.
	if daily.BytesOut != 5000 {
		t.Errorf("bytes_out = %d, want 5000", daily.BytesOut)
	}
}

func TestTrackerSeedsOpenConnections(t *testing.T) {
	db, err := database.New(database.Options{Path: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	if _, err := db.OpenConnection(ctx, &models.UniqueClientConnection{
		IPAddress: "10.0.0.9", ChannelID: "c7", ChannelName: "News",
		Date: "2026-08-26", ConnectedAt: now,
	}); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Upstream.PageSize = 100
	cfg.Bandwidth.PollInterval = 10 * time.Second
	cfg.Bandwidth.Timezone = "UTC"

	journal := &stubJournal{}
	tracker, err := New(upstreamtest.New(), db, cfg, journal)
	if err != nil {
		t.Fatal(err)
	}
	tracker.now = func() time.Time { return now }

	// The seeded channel is absent from the first sample: a watch:stop is
	// emitted instead of a duplicate watch:start.
	if err := tracker.Sample(ctx); err != nil {
		t.Fatal(err)
	}
	if len(journal.events) != 1 || journal.events[0].event != "watch:stop" || journal.events[0].subject != "c7" {
		t.Errorf("events = %+v, want one watch:stop for c7", journal.events)
	}
}
