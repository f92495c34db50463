// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/streamweaver/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Options{Path: ":memory:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSchemaIdempotent(t *testing.T) {
	// Opening the same file twice must replay table creation and column
	// migrations without error.
	path := filepath.Join(t.TempDir(), "journal.db")
	db1, err := New(Options{Path: path})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := db1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	db2, err := New(Options{Path: path})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer func() { _ = db2.Close() }()

	for _, m := range columnMigrations() {
		ok, err := db2.columnExists(context.Background(), m.Table, m.Column)
		if err != nil {
			t.Fatalf("columnExists(%s.%s): %v", m.Table, m.Column, err)
		}
		if !ok {
			t.Errorf("column %s.%s missing after reopen", m.Table, m.Column)
		}
	}
}

func TestRuleRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	groupID := 7
	in := &models.Rule{
		Name:     "news channels",
		Enabled:  true,
		Priority: 10,
		GroupID:  &groupID,
		Conditions: []models.Condition{
			{Type: models.CondNameContains, Value: "news", Connector: models.ConnectorAnd},
			{Type: models.CondGroupEquals, Value: "UK", Connector: models.ConnectorAnd, Negate: true},
		},
		Actions: []models.Action{
			{Type: models.ActionCreateChannel, Params: map[string]string{"if_exists": "merge"}},
		},
		SortField:    "name",
		SortOrder:    models.SortAsc,
		OrphanAction: models.OrphanDelete,
	}

	created, err := db.CreateRule(ctx, in)
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("CreateRule did not assign an ID")
	}

	got, err := db.GetRule(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.Name != in.Name || got.Priority != in.Priority || !got.Enabled {
		t.Errorf("round-trip mismatch: got %+v", got)
	}
	if len(got.Conditions) != 2 || !got.Conditions[1].Negate {
		t.Errorf("conditions not preserved: %+v", got.Conditions)
	}
	if len(got.Actions) != 1 || got.Actions[0].Params["if_exists"] != "merge" {
		t.Errorf("actions not preserved: %+v", got.Actions)
	}
	if got.GroupID == nil || *got.GroupID != groupID {
		t.Errorf("group id not preserved: %v", got.GroupID)
	}
	if got.OrphanAction != models.OrphanDelete {
		t.Errorf("orphan action = %q, want delete", got.OrphanAction)
	}

	got.Name = "renamed"
	got.Enabled = false
	if err := db.UpdateRule(ctx, got); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	got2, err := db.GetRule(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRule after update: %v", err)
	}
	if got2.Name != "renamed" || got2.Enabled {
		t.Errorf("update not persisted: %+v", got2)
	}

	if err := db.DeleteRule(ctx, created.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if _, err := db.GetRule(ctx, created.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("GetRule after delete: err = %v, want ErrRuleNotFound", err)
	}
	if err := db.DeleteRule(ctx, created.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("second delete: err = %v, want ErrRuleNotFound", err)
	}
}

func TestManagedChannelIDsTriState(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	created, err := db.CreateRule(ctx, &models.Rule{
		Name:         "anchored",
		Enabled:      true,
		Conditions:   []models.Condition{{Type: models.CondAlways, Connector: models.ConnectorAnd}},
		Actions:      []models.Action{{Type: models.ActionLogMatch}},
		OrphanAction: models.OrphanNone,
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	// Never-run rules carry nil, not an empty set.
	got, err := db.GetRule(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.ManagedChannelIDs != nil {
		t.Errorf("fresh rule managed ids = %v, want nil", got.ManagedChannelIDs)
	}

	if err := db.SetManagedChannelIDs(ctx, created.ID, []int{}); err != nil {
		t.Fatalf("SetManagedChannelIDs(empty): %v", err)
	}
	got, err = db.GetRule(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.ManagedChannelIDs == nil || len(got.ManagedChannelIDs) != 0 {
		t.Errorf("empty anchor = %v, want non-nil empty", got.ManagedChannelIDs)
	}

	if err := db.SetManagedChannelIDs(ctx, created.ID, []int{12, 34}); err != nil {
		t.Fatalf("SetManagedChannelIDs: %v", err)
	}
	got, err = db.GetRule(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if len(got.ManagedChannelIDs) != 2 || got.ManagedChannelIDs[0] != 12 || got.ManagedChannelIDs[1] != 34 {
		t.Errorf("anchor = %v, want [12 34]", got.ManagedChannelIDs)
	}

	// nil clears back to never-run.
	if err := db.SetManagedChannelIDs(ctx, created.ID, nil); err != nil {
		t.Fatalf("SetManagedChannelIDs(nil): %v", err)
	}
	got, err = db.GetRule(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.ManagedChannelIDs != nil {
		t.Errorf("cleared anchor = %v, want nil", got.ManagedChannelIDs)
	}
}

func TestListRulesOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, r := range []struct {
		name     string
		priority int
		enabled  bool
	}{
		{"third", 30, true},
		{"first", 10, true},
		{"disabled", 5, false},
		{"second", 20, true},
	} {
		_, err := db.CreateRule(ctx, &models.Rule{
			Name:         r.name,
			Enabled:      r.enabled,
			Priority:     r.priority,
			Conditions:   []models.Condition{{Type: models.CondAlways, Connector: models.ConnectorAnd}},
			Actions:      []models.Action{{Type: models.ActionLogMatch}},
			OrphanAction: models.OrphanNone,
		})
		if err != nil {
			t.Fatalf("CreateRule(%s): %v", r.name, err)
		}
	}

	all, err := db.ListRules(ctx, false)
	if err != nil {
		t.Fatalf("ListRules(all): %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("ListRules(all) returned %d rules, want 4", len(all))
	}

	enabled, err := db.ListRules(ctx, true)
	if err != nil {
		t.Fatalf("ListRules(enabled): %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(enabled) != len(want) {
		t.Fatalf("ListRules(enabled) returned %d rules, want %d", len(enabled), len(want))
	}
	for i, name := range want {
		if enabled[i].Name != name {
			t.Errorf("enabled[%d] = %q, want %q", i, enabled[i].Name, name)
		}
	}
}

func TestExecutionLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	exec := &models.Execution{
		Mode:        models.ModeExecute,
		TriggeredBy: "api",
		StartedAt:   time.Now().UTC(),
		Status:      models.ExecRunning,
	}
	id, err := db.CreateExecution(ctx, exec)
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	exec.ID = id

	done := time.Now().UTC()
	exec.CompletedAt = &done
	exec.Status = models.ExecCompleted
	exec.StreamsEvaluated = 120
	exec.StreamsMatched = 40
	exec.ChannelsCreated = 3
	exec.CreatedEntities = []models.EntityRef{
		{EntityType: "channel", EntityID: 1001, EntityName: "BBC One", RuleID: 1},
	}
	exec.ModifiedEntities = []models.EntityRef{
		{EntityType: "channel", EntityID: 55, RuleID: 1, PreviousState: []byte(`{"streams":[9]}`)},
	}
	exec.ExecutionLog = []models.StreamLogEntry{
		{StreamID: 9, StreamName: "BBC One HD", RuleID: 1, Matched: true},
	}
	if err := db.FinishExecution(ctx, exec); err != nil {
		t.Fatalf("FinishExecution: %v", err)
	}

	got, err := db.GetExecution(ctx, id)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != models.ExecCompleted || got.StreamsEvaluated != 120 || got.ChannelsCreated != 3 {
		t.Errorf("finished execution mismatch: %+v", got)
	}
	if len(got.CreatedEntities) != 1 || got.CreatedEntities[0].EntityID != 1001 {
		t.Errorf("created entities not preserved: %+v", got.CreatedEntities)
	}
	if len(got.ModifiedEntities) != 1 || string(got.ModifiedEntities[0].PreviousState) != `{"streams":[9]}` {
		t.Errorf("modified entities not preserved: %+v", got.ModifiedEntities)
	}
	if len(got.ExecutionLog) != 1 || !got.ExecutionLog[0].Matched {
		t.Errorf("execution log not preserved: %+v", got.ExecutionLog)
	}

	if err := db.MarkRolledBack(ctx, id, "operator", time.Now().UTC()); err != nil {
		t.Fatalf("MarkRolledBack: %v", err)
	}
	got, err = db.GetExecution(ctx, id)
	if err != nil {
		t.Fatalf("GetExecution after rollback: %v", err)
	}
	if got.Status != models.ExecRolledBack || got.RolledBackAt == nil || got.RolledBackBy != "operator" {
		t.Errorf("rollback not recorded: status=%q at=%v by=%q", got.Status, got.RolledBackAt, got.RolledBackBy)
	}

	if _, err := db.GetExecution(ctx, id+999); !errors.Is(err, ErrExecutionNotFound) {
		t.Errorf("missing execution: err = %v, want ErrExecutionNotFound", err)
	}
}

func TestConflictRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.CreateExecution(ctx, &models.Execution{
		Mode:        models.ModeDryRun,
		TriggeredBy: "schedule",
		StartedAt:   time.Now().UTC(),
		Status:      models.ExecRunning,
	})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	err = db.RecordConflict(ctx, &models.Conflict{
		ExecutionID:  id,
		StreamID:     42,
		StreamName:   "ESPN FHD",
		WinningRule:  1,
		LosingRules:  []int{3, 5},
		ConflictType: "multiple_match",
		Resolution:   "priority",
	})
	if err != nil {
		t.Fatalf("RecordConflict: %v", err)
	}

	conflicts, err := db.ListConflicts(ctx, id)
	if err != nil {
		t.Fatalf("ListConflicts: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	c := conflicts[0]
	if c.StreamID != 42 || c.WinningRule != 1 || len(c.LosingRules) != 2 || c.LosingRules[1] != 5 {
		t.Errorf("conflict mismatch: %+v", c)
	}
}

func TestStreamStatsConsecutiveFailures(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	upsert := func(status models.ProbeStatus) *models.StreamStats {
		t.Helper()
		err := db.UpsertStreamStats(ctx, &models.StreamStats{
			StreamID:    7,
			StreamName:  "Sky Sports",
			ProbeStatus: status,
			LastProbed:  time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("UpsertStreamStats(%s): %v", status, err)
		}
		got, err := db.GetStreamStats(ctx, 7)
		if err != nil {
			t.Fatalf("GetStreamStats: %v", err)
		}
		return got
	}

	steps := []struct {
		status models.ProbeStatus
		want   int
	}{
		{models.ProbeFailed, 1},
		{models.ProbeTimeout, 2},
		{models.ProbeFailed, 3},
		{models.ProbeSuccess, 0},
		{models.ProbeFailed, 1},
		{models.ProbePending, 1}, // pending leaves the counter untouched
	}
	for i, step := range steps {
		got := upsert(step.status)
		if got.ConsecutiveFailures != step.want {
			t.Errorf("step %d (%s): consecutive_failures = %d, want %d",
				i, step.status, got.ConsecutiveFailures, step.want)
		}
	}

	// A fresh failed stream starts at 1, a fresh success at 0.
	err := db.UpsertStreamStats(ctx, &models.StreamStats{
		StreamID: 8, StreamName: "dead feed", ProbeStatus: models.ProbeFailed,
		LastProbed: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("UpsertStreamStats: %v", err)
	}
	got, err := db.GetStreamStats(ctx, 8)
	if err != nil {
		t.Fatalf("GetStreamStats: %v", err)
	}
	if got.ConsecutiveFailures != 1 {
		t.Errorf("fresh failed stream: consecutive_failures = %d, want 1", got.ConsecutiveFailures)
	}
}

func TestStreamStatsQueries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seed := []models.StreamStats{
		{StreamID: 1, StreamName: "a", ProbeStatus: models.ProbeSuccess, ResolutionHeight: 1080, Bitrate: 8000, LastProbed: time.Now().UTC()},
		{StreamID: 2, StreamName: "b", ProbeStatus: models.ProbeFailed, ErrorMessage: "404", LastProbed: time.Now().UTC()},
		{StreamID: 3, StreamName: "c", ProbeStatus: models.ProbeSuccess, ResolutionHeight: 720, Bitrate: 4000, LastProbed: time.Now().UTC()},
	}
	for i := range seed {
		if err := db.UpsertStreamStats(ctx, &seed[i]); err != nil {
			t.Fatalf("UpsertStreamStats(%d): %v", seed[i].StreamID, err)
		}
	}

	failed, err := db.ListStreamStats(ctx, models.ProbeFailed)
	if err != nil {
		t.Fatalf("ListStreamStats(failed): %v", err)
	}
	if len(failed) != 1 || failed[0].StreamID != 2 {
		t.Errorf("failed list = %+v, want stream 2 only", failed)
	}

	byStream, err := db.SuccessfulStatsByStream(ctx)
	if err != nil {
		t.Fatalf("SuccessfulStatsByStream: %v", err)
	}
	if len(byStream) != 2 {
		t.Fatalf("got %d successful streams, want 2", len(byStream))
	}
	if byStream[1].ResolutionHeight != 1080 || byStream[3].ResolutionHeight != 720 {
		t.Errorf("successful map mismatch: %+v", byStream)
	}

	if err := db.DismissStreamStats(ctx, 2, time.Now().UTC()); err != nil {
		t.Fatalf("DismissStreamStats: %v", err)
	}
	got, err := db.GetStreamStats(ctx, 2)
	if err != nil {
		t.Fatalf("GetStreamStats: %v", err)
	}
	if got.DismissedAt == nil {
		t.Error("dismissed_at not set")
	}
	if err := db.DismissStreamStats(ctx, 999, time.Now().UTC()); !errors.Is(err, ErrStreamStatsNotFound) {
		t.Errorf("dismiss missing stream: err = %v, want ErrStreamStatsNotFound", err)
	}
}

func TestBandwidthDailyAccumulation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	samples := []models.BandwidthDaily{
		{Date: "2026-08-25", BytesTransferred: 1000, BytesIn: 400, BytesOut: 600, PeakChannels: 2, PeakClients: 3, PeakBitrateIn: 8.5, PeakBitrateOut: 12.0},
		{Date: "2026-08-25", BytesTransferred: 500, BytesIn: 200, BytesOut: 300, PeakChannels: 5, PeakClients: 2, PeakBitrateIn: 6.0, PeakBitrateOut: 20.0},
	}
	for i := range samples {
		if err := db.AccumulateDaily(ctx, &samples[i]); err != nil {
			t.Fatalf("AccumulateDaily(%d): %v", i, err)
		}
	}

	got, err := db.GetDaily(ctx, "2026-08-25")
	if err != nil {
		t.Fatalf("GetDaily: %v", err)
	}
	if got == nil {
		t.Fatal("GetDaily returned nil for existing day")
	}
	if got.BytesTransferred != 1500 || got.BytesIn != 600 || got.BytesOut != 900 {
		t.Errorf("totals = %d/%d/%d, want 1500/600/900", got.BytesTransferred, got.BytesIn, got.BytesOut)
	}
	// Peaks take the max across samples, never the latest.
	if got.PeakChannels != 5 || got.PeakClients != 3 {
		t.Errorf("peak channels/clients = %d/%d, want 5/3", got.PeakChannels, got.PeakClients)
	}
	if got.PeakBitrateIn != 8.5 || got.PeakBitrateOut != 20.0 {
		t.Errorf("peak bitrates = %v/%v, want 8.5/20", got.PeakBitrateIn, got.PeakBitrateOut)
	}

	missing, err := db.GetDaily(ctx, "1999-01-01")
	if err != nil {
		t.Fatalf("GetDaily(missing): %v", err)
	}
	if missing != nil {
		t.Errorf("GetDaily(missing) = %+v, want nil", missing)
	}
}

func TestChannelBandwidthAndRetention(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	days := []string{"2026-05-01", "2026-08-20", "2026-08-25"}
	for _, d := range days {
		if err := db.AccumulateDaily(ctx, &models.BandwidthDaily{Date: d, BytesTransferred: 10}); err != nil {
			t.Fatalf("AccumulateDaily(%s): %v", d, err)
		}
		err := db.AccumulateChannelBandwidth(ctx, &models.ChannelBandwidth{
			ChannelID: "101", ChannelName: "BBC One", Date: d,
			BytesTransferred: 100, PeakClients: 1, TotalWatchSeconds: 60, ConnectionCount: 1,
		})
		if err != nil {
			t.Fatalf("AccumulateChannelBandwidth(%s): %v", d, err)
		}
	}
	// Second sample for the same (channel, date) accumulates.
	err := db.AccumulateChannelBandwidth(ctx, &models.ChannelBandwidth{
		ChannelID: "101", ChannelName: "BBC One", Date: "2026-08-25",
		BytesTransferred: 50, PeakClients: 4, TotalWatchSeconds: 30,
	})
	if err != nil {
		t.Fatalf("AccumulateChannelBandwidth: %v", err)
	}

	rows, err := db.ListChannelBandwidth(ctx, "2026-08-25")
	if err != nil {
		t.Fatalf("ListChannelBandwidth: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].BytesTransferred != 150 || rows[0].PeakClients != 4 || rows[0].TotalWatchSeconds != 90 {
		t.Errorf("accumulated row = %+v", rows[0])
	}

	removed, err := db.PurgeBandwidthBefore(ctx, "2026-08-01")
	if err != nil {
		t.Fatalf("PurgeBandwidthBefore: %v", err)
	}
	if removed != 2 { // one daily row and one channel row
		t.Errorf("purged %d rows, want 2", removed)
	}
	if old, _ := db.GetDaily(ctx, "2026-05-01"); old != nil {
		t.Errorf("purged day still present: %+v", old)
	}
	if kept, _ := db.GetDaily(ctx, "2026-08-20"); kept == nil {
		t.Error("retained day was purged")
	}
}

func TestConnectionLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	open := func(ip, channel string) int {
		t.Helper()
		id, err := db.OpenConnection(ctx, &models.UniqueClientConnection{
			IPAddress: ip, ChannelID: channel, ChannelName: "ch " + channel,
			Date: "2026-08-26", ConnectedAt: now,
		})
		if err != nil {
			t.Fatalf("OpenConnection(%s,%s): %v", ip, channel, err)
		}
		return id
	}
	open("10.0.0.1", "101")
	open("10.0.0.2", "101")
	open("10.0.0.1", "202")

	if err := db.AddWatchSeconds(ctx, "101", 10); err != nil {
		t.Fatalf("AddWatchSeconds: %v", err)
	}
	if err := db.AddWatchSeconds(ctx, "101", 10); err != nil {
		t.Fatalf("AddWatchSeconds: %v", err)
	}

	byChannel, err := db.OpenConnectionsByChannel(ctx)
	if err != nil {
		t.Fatalf("OpenConnectionsByChannel: %v", err)
	}
	if len(byChannel["101"]) != 2 || len(byChannel["202"]) != 1 {
		t.Fatalf("open connections = %d/%d, want 2/1", len(byChannel["101"]), len(byChannel["202"]))
	}
	for _, c := range byChannel["101"] {
		if c.WatchSeconds != 20 {
			t.Errorf("watch seconds = %d, want 20 for %s", c.WatchSeconds, c.IPAddress)
		}
	}
	// The other channel's connections are untouched.
	if byChannel["202"][0].WatchSeconds != 0 {
		t.Errorf("channel 202 watch seconds = %d, want 0", byChannel["202"][0].WatchSeconds)
	}

	// Close one specific IP, then the remainder of the channel.
	n, err := db.CloseConnections(ctx, "101", []string{"10.0.0.2"}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CloseConnections(ip): %v", err)
	}
	if n != 1 {
		t.Errorf("closed %d connections, want 1", n)
	}
	n, err = db.CloseConnections(ctx, "101", nil, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("CloseConnections(all): %v", err)
	}
	if n != 1 {
		t.Errorf("closed %d connections, want 1", n)
	}

	byChannel, err = db.OpenConnectionsByChannel(ctx)
	if err != nil {
		t.Fatalf("OpenConnectionsByChannel: %v", err)
	}
	if len(byChannel["101"]) != 0 || len(byChannel["202"]) != 1 {
		t.Errorf("after close: open = %d/%d, want 0/1", len(byChannel["101"]), len(byChannel["202"]))
	}

	all, err := db.ListConnections(ctx, "2026-08-26")
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListConnections returned %d rows, want 3", len(all))
	}

	unique, err := db.CountUniqueClients(ctx, "2026-08-26")
	if err != nil {
		t.Fatalf("CountUniqueClients: %v", err)
	}
	if unique != 2 {
		t.Errorf("unique clients = %d, want 2", unique)
	}
}

func TestJournalRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	entries := []models.JournalEntry{
		{ID: "j1", Event: "watch:start", Subject: "101", Details: map[string]string{"ip": "10.0.0.1"}, CreatedAt: base},
		{ID: "j2", Event: "watch:stop", Subject: "101", Details: map[string]string{"ip": "10.0.0.1", "seconds": "120"}, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "j3", Event: "execution:completed", Subject: "7", CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range entries {
		if err := db.AppendJournal(ctx, &entries[i]); err != nil {
			t.Fatalf("AppendJournal(%s): %v", entries[i].ID, err)
		}
	}

	got, err := db.ListJournal(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListJournal: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].ID != "j3" {
		t.Errorf("newest first: got %s, want j3", got[0].ID)
	}

	stops, err := db.ListJournal(ctx, "watch:stop", 10)
	if err != nil {
		t.Fatalf("ListJournal(watch:stop): %v", err)
	}
	if len(stops) != 1 || stops[0].Details["seconds"] != "120" {
		t.Errorf("filtered journal = %+v", stops)
	}
}

func TestNotificationLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.CreateNotification(ctx, &models.Notification{
		Type: models.NotifyInfo, Title: "Probing streams",
		Message: "0 of 50", Source: "probe", SourceID: "run-1",
		Metadata: map[string]string{"total": "50"},
	})
	if err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}

	err = db.UpdateNotification(ctx, &models.Notification{
		ID: id, Type: models.NotifySuccess, Title: "Probe complete",
		Message: "48 succeeded, 2 failed",
	})
	if err != nil {
		t.Fatalf("UpdateNotification: %v", err)
	}

	list, err := db.ListNotifications(ctx, true, 10)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d notifications, want 1", len(list))
	}
	if list[0].Type != models.NotifySuccess || list[0].Message != "48 succeeded, 2 failed" {
		t.Errorf("updated notification = %+v", list[0])
	}

	if err := db.MarkNotificationRead(ctx, id); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	unread, err := db.ListNotifications(ctx, true, 10)
	if err != nil {
		t.Fatalf("ListNotifications(unread): %v", err)
	}
	if len(unread) != 0 {
		t.Errorf("unread after mark = %d, want 0", len(unread))
	}

	if err := db.DeleteNotificationsBySource(ctx, "probe", "run-1"); err != nil {
		t.Fatalf("DeleteNotificationsBySource: %v", err)
	}
	all, err := db.ListNotifications(ctx, false, 10)
	if err != nil {
		t.Fatalf("ListNotifications(all): %v", err)
	}
	if len(all) != 0 {
		t.Errorf("notifications after delete = %d, want 0", len(all))
	}
}

func TestTagGroupRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	g := &models.TagGroup{Name: "uk-news", Tags: []string{"bbc news", "sky news", "itv news"}}
	if err := db.SaveTagGroup(ctx, g); err != nil {
		t.Fatalf("SaveTagGroup: %v", err)
	}

	// Saving again replaces the tag set instead of appending.
	g.Tags = []string{"bbc news", "gb news"}
	if err := db.SaveTagGroup(ctx, g); err != nil {
		t.Fatalf("SaveTagGroup(update): %v", err)
	}

	groups, err := db.ListTagGroups(ctx)
	if err != nil {
		t.Fatalf("ListTagGroups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if groups[0].Name != "uk-news" || len(groups[0].Tags) != 2 {
		t.Errorf("tag group = %+v", groups[0])
	}
}
