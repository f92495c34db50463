// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package autocreate

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/streamweaver/internal/config"
	"github.com/tomtom215/streamweaver/internal/database"
	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/upstream/upstreamtest"
)

func testEngine(t *testing.T) (*Engine, *upstreamtest.Fake, *database.DB) {
	t.Helper()
	db, err := database.New(database.Options{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fake := upstreamtest.New()
	cfg := &config.Config{}
	cfg.Upstream.PageSize = 100
	cfg.AutoCreation.ProbeOnSortConcurrency = 3
	return NewEngine(fake, db, cfg, nil, nil), fake, db
}

func mustCreateRule(t *testing.T, db *database.DB, r *models.Rule) *models.Rule {
	t.Helper()
	created, err := db.CreateRule(context.Background(), r)
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	return created
}

func espnRule(orphan models.OrphanAction) *models.Rule {
	return &models.Rule{
		Name:     "espn",
		Enabled:  true,
		Priority: 10,
		Conditions: []models.Condition{
			{Type: models.CondNameContains, Value: "ESPN", Connector: models.ConnectorAnd},
		},
		Actions: []models.Action{
			{Type: models.ActionCreateChannel, Params: map[string]string{"name": "{stream_name}", "if_exists": "merge"}},
			{Type: models.ActionAssignLogo},
		},
		OrphanAction: orphan,
	}
}

func TestCreateMergeReconcile(t *testing.T) {
	engine, fake, db := testEngine(t)
	ctx := context.Background()

	fake.Providers = []models.Provider{{ID: 1, Name: "provider-a", MaxStreams: 5}}
	fake.Streams = []models.Stream{
		{ID: 10, Name: "US: ESPN HD", GroupName: "Sports", ProviderID: 1},
		{ID: 11, Name: "US: ESPN 4K", ProviderID: 1},
	}
	rule := mustCreateRule(t, db, espnRule(models.OrphanDelete))

	exec, err := engine.Run(ctx, RunOptions{Mode: models.ModeExecute, TriggeredBy: "test"})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if exec.Status != models.ExecCompleted {
		t.Fatalf("status = %q, want completed", exec.Status)
	}
	if exec.ChannelsCreated != 2 {
		t.Errorf("channels created = %d, want 2", exec.ChannelsCreated)
	}
	ids := fake.ChannelIDs()
	if len(ids) != 2 {
		t.Fatalf("upstream has %d channels, want 2", len(ids))
	}

	stored, err := db.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	if len(stored.ManagedChannelIDs) != 2 {
		t.Fatalf("managed ids = %v, want both channels", stored.ManagedChannelIDs)
	}

	// The persisted log carries the winning rule's full condition trace.
	persisted, err := db.GetExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("reload execution: %v", err)
	}
	for _, entry := range persisted.ExecutionLog {
		if len(entry.ConditionsLog) != 1 {
			t.Fatalf("stream %q trace has %d conditions, want 1", entry.StreamName, len(entry.ConditionsLog))
		}
		trace := entry.ConditionsLog[0]
		if trace.Type != models.CondNameContains || trace.Value != "ESPN" || !trace.Matched {
			t.Errorf("stream %q trace = %+v, want matched name_contains ESPN", entry.StreamName, trace)
		}
	}

	// Stream 11 disappears upstream; its channel becomes an orphan.
	fake.Streams = fake.Streams[:1]
	second := stored.ManagedChannelIDs[1]

	if _, err := engine.Run(ctx, RunOptions{Mode: models.ModeExecute, TriggeredBy: "test"}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if _, gone := fake.Channels[second]; gone {
		t.Errorf("orphan channel %d was not deleted", second)
	}
	ids = fake.ChannelIDs()
	if len(ids) != 1 {
		t.Fatalf("upstream has %d channels after reconcile, want 1", len(ids))
	}
	stored, err = db.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	if len(stored.ManagedChannelIDs) != 1 || stored.ManagedChannelIDs[0] != ids[0] {
		t.Errorf("managed ids after reconcile = %v, want [%d]", stored.ManagedChannelIDs, ids[0])
	}
}

func TestConflictFirstMatchWins(t *testing.T) {
	engine, fake, db := testEngine(t)
	ctx := context.Background()

	fake.Providers = []models.Provider{{ID: 1, Name: "provider-a"}}
	fake.Streams = []models.Stream{{ID: 20, Name: "ESPN HD", ProviderID: 1}}

	r1 := mustCreateRule(t, db, &models.Rule{
		Name: "hd", Enabled: true, Priority: 10,
		Conditions:   []models.Condition{{Type: models.CondNameContains, Value: "HD", Connector: models.ConnectorAnd}},
		Actions:      []models.Action{{Type: models.ActionCreateChannel, Params: map[string]string{"name": "HD {stream_name}"}}},
		OrphanAction: models.OrphanNone,
	})
	r2 := mustCreateRule(t, db, &models.Rule{
		Name: "espn", Enabled: true, Priority: 20,
		Conditions:   []models.Condition{{Type: models.CondNameContains, Value: "ESPN", Connector: models.ConnectorAnd}},
		Actions:      []models.Action{{Type: models.ActionCreateChannel, Params: map[string]string{"name": "ESPN {stream_name}"}}},
		OrphanAction: models.OrphanNone,
	})

	exec, err := engine.Run(ctx, RunOptions{Mode: models.ModeExecute, TriggeredBy: "test"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Only R1's action executed: one channel, named by R1's template.
	if exec.ChannelsCreated != 1 {
		t.Fatalf("channels created = %d, want 1", exec.ChannelsCreated)
	}
	for _, c := range fake.Channels {
		if c.Name != "HD ESPN HD" {
			t.Errorf("channel name = %q, want R1's template output", c.Name)
		}
	}

	conflicts, err := db.ListConflicts(ctx, exec.ID)
	if err != nil {
		t.Fatalf("list conflicts: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	c := conflicts[0]
	if c.WinningRule != r1.ID || len(c.LosingRules) != 1 || c.LosingRules[0] != r2.ID {
		t.Errorf("conflict = winner %d losers %v, want winner %d losers [%d]",
			c.WinningRule, c.LosingRules, r1.ID, r2.ID)
	}
}

func TestMergeAutoPrefersWordPrefixOverCallSign(t *testing.T) {
	engine, fake, db := testEngine(t)
	ctx := context.Background()

	// "ABC 7 WABC" word-prefix-matches channel 300 and call-sign-matches
	// channel 301. Call sign is the loosest fallback, so 300 must win.
	fake.AddChannel(models.Channel{ID: 300, Name: "ABC 7", Streams: []int{90}})
	fake.AddChannel(models.Channel{ID: 301, Name: "Eyewitness News (WABC)", Streams: []int{91}})
	fake.Providers = []models.Provider{{ID: 1, Name: "provider-a"}}
	fake.Streams = []models.Stream{{ID: 30, Name: "ABC 7 WABC", ProviderID: 1}}

	mustCreateRule(t, db, &models.Rule{
		Name: "locals", Enabled: true, Priority: 10,
		Conditions:   []models.Condition{{Type: models.CondNameContains, Value: "ABC", Connector: models.ConnectorAnd}},
		Actions:      []models.Action{{Type: models.ActionMergeStreams}},
		OrphanAction: models.OrphanNone,
	})

	if _, err := engine.Run(ctx, RunOptions{Mode: models.ModeExecute, TriggeredBy: "test"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	target := fake.Channels[300]
	if len(target.Streams) != 2 || target.Streams[1] != 30 {
		t.Errorf("word-prefix target streams = %v, want [90 30]", target.Streams)
	}
	other := fake.Channels[301]
	if len(other.Streams) != 1 {
		t.Errorf("call-sign channel gained streams: %v", other.Streams)
	}
}

func TestDryRunIsolation(t *testing.T) {
	engine, fake, db := testEngine(t)
	ctx := context.Background()

	fake.Providers = []models.Provider{{ID: 1, Name: "provider-a"}}
	fake.Streams = []models.Stream{
		{ID: 10, Name: "US: ESPN HD", ProviderID: 1},
		{ID: 11, Name: "US: ESPN 4K", ProviderID: 1},
	}
	rule := mustCreateRule(t, db, espnRule(models.OrphanDelete))

	exec, err := engine.Run(ctx, RunOptions{Mode: models.ModeDryRun, TriggeredBy: "test"})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if exec.Mode != models.ModeDryRun {
		t.Errorf("mode = %q, want dry_run", exec.Mode)
	}
	if len(exec.DryRunResults) != 2 {
		t.Errorf("dry_run_results has %d entries, want 2", len(exec.DryRunResults))
	}
	if len(exec.ExecutionLog) != 0 {
		t.Errorf("execution_log populated on a dry run")
	}
	if n := fake.MutationCount(); n != 0 {
		t.Errorf("dry run performed %d upstream mutations", n)
	}
	if len(fake.Channels) != 0 {
		t.Errorf("dry run created %d real channels", len(fake.Channels))
	}

	stored, err := db.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	if stored.ManagedChannelIDs != nil {
		t.Errorf("dry run changed managed ids: %v", stored.ManagedChannelIDs)
	}

	// Simulated entities still flow through subsequent actions in-run, and
	// dry-run entries carry the same condition trace as real runs.
	for _, entry := range exec.DryRunResults {
		if !entry.Matched {
			t.Errorf("stream %q not matched in dry run", entry.StreamName)
		}
		if len(entry.ConditionsLog) != 1 || !entry.ConditionsLog[0].Matched {
			t.Errorf("stream %q has no condition trace: %+v", entry.StreamName, entry.ConditionsLog)
		}
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	engine, fake, db := testEngine(t)
	ctx := context.Background()

	fake.Providers = []models.Provider{{ID: 1, Name: "provider-a"}}
	fake.Streams = []models.Stream{
		{ID: 10, Name: "US: ESPN HD", ProviderID: 1, LogoURL: "http://logos/espn.png"},
		{ID: 11, Name: "US: ESPN 4K", ProviderID: 1, LogoURL: "http://logos/espn.png"},
	}
	mustCreateRule(t, db, espnRule(models.OrphanDelete))

	if _, err := engine.Run(ctx, RunOptions{Mode: models.ModeExecute, TriggeredBy: "test"}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := fake.MutationCount()

	exec, err := engine.Run(ctx, RunOptions{Mode: models.ModeExecute, TriggeredBy: "test"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if delta := fake.MutationCount() - before; delta != 0 {
		t.Errorf("second run performed %d mutations, want 0", delta)
	}
	conflicts, err := db.ListConflicts(ctx, exec.ID)
	if err != nil {
		t.Fatalf("list conflicts: %v", err)
	}
	if len(conflicts) != 0 {
		t.Errorf("second run recorded %d conflicts, want 0", len(conflicts))
	}
}

func TestRollback(t *testing.T) {
	engine, fake, db := testEngine(t)
	ctx := context.Background()

	// One pre-existing channel that the rule merges into, so rollback has
	// both a created entity and a modified one.
	fake.AddChannel(models.Channel{ID: 500, Name: "US: ESPN HD", Streams: []int{99}})
	fake.Providers = []models.Provider{{ID: 1, Name: "provider-a"}}
	fake.Streams = []models.Stream{
		{ID: 10, Name: "US: ESPN HD", ProviderID: 1},
		{ID: 11, Name: "US: ESPN 4K", ProviderID: 1},
	}
	mustCreateRule(t, db, espnRule(models.OrphanNone))

	exec, err := engine.Run(ctx, RunOptions{Mode: models.ModeExecute, TriggeredBy: "test"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := len(fake.Channels[500].Streams); got != 2 {
		t.Fatalf("merge target has %d streams, want 2", got)
	}
	if len(fake.Channels) != 2 {
		t.Fatalf("upstream has %d channels, want 2", len(fake.Channels))
	}

	if err := engine.Rollback(ctx, exec.ID, "operator"); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	// Created channel deleted, modified channel restored.
	if len(fake.Channels) != 1 {
		t.Errorf("after rollback upstream has %d channels, want 1", len(fake.Channels))
	}
	restored := fake.Channels[500]
	if restored == nil || len(restored.Streams) != 1 || restored.Streams[0] != 99 {
		t.Errorf("merge target not restored: %+v", restored)
	}

	stored, err := db.GetExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("reload execution: %v", err)
	}
	if stored.Status != models.ExecRolledBack || stored.RolledBackBy != "operator" {
		t.Errorf("execution not marked rolled back: %+v", stored)
	}

	// Second rollback refuses without touching the upstream.
	deletes := fake.CallCount("delete_channel")
	err = engine.Rollback(ctx, exec.ID, "operator")
	if !errors.Is(err, ErrAlreadyRolledBack) {
		t.Errorf("second rollback err = %v, want ErrAlreadyRolledBack", err)
	}
	if fake.CallCount("delete_channel") != deletes {
		t.Error("second rollback made upstream calls")
	}
}

func TestRollbackRejectsDryRun(t *testing.T) {
	engine, fake, db := testEngine(t)
	ctx := context.Background()

	fake.Providers = []models.Provider{{ID: 1, Name: "provider-a"}}
	fake.Streams = []models.Stream{{ID: 10, Name: "ESPN", ProviderID: 1}}
	mustCreateRule(t, db, espnRule(models.OrphanNone))

	exec, err := engine.Run(ctx, RunOptions{Mode: models.ModeDryRun, TriggeredBy: "test"})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if err := engine.Rollback(ctx, exec.ID, "operator"); !errors.Is(err, ErrRollbackMode) {
		t.Errorf("rollback of dry run err = %v, want ErrRollbackMode", err)
	}
}
