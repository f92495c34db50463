// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package autocreate implements the rule-driven auto-creation pipeline:
// evaluation of provider streams against prioritized rules, execution of
// the winning rule's action chain against the upstream, orphan
// reconciliation anchored on each rule's managed channel set, and rollback
// of completed runs.
package autocreate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/streamweaver/internal/config"
	"github.com/tomtom215/streamweaver/internal/database"
	"github.com/tomtom215/streamweaver/internal/logging"
	"github.com/tomtom215/streamweaver/internal/metrics"
	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/rules"
	"github.com/tomtom215/streamweaver/internal/upstream"
)

// SortProber probes streams that lack cached stats before quality sorting.
// The prober package provides the real implementation.
type SortProber interface {
	ProbeForSort(ctx context.Context, streams []models.Stream, concurrency int) map[int]*models.StreamStats
}

// Journal receives audit events for pipeline lifecycle transitions.
type Journal interface {
	Publish(ctx context.Context, event, subject string, details map[string]string)
}

// Engine orchestrates pipeline runs. One run at a time; a second Run call
// while one is in flight returns ErrRunInProgress.
type Engine struct {
	client  upstream.Client
	db      *database.DB
	cfg     *config.Config
	prober  SortProber // optional
	journal Journal    // optional

	mu      sync.Mutex
	running bool
}

// NewEngine wires the pipeline engine. prober and journal may be nil.
func NewEngine(client upstream.Client, db *database.DB, cfg *config.Config, prober SortProber, journal Journal) *Engine {
	return &Engine{client: client, db: db, cfg: cfg, prober: prober, journal: journal}
}

// RunOptions select what a pipeline run covers.
type RunOptions struct {
	RuleID      int // 0 runs every enabled rule
	ProviderID  int // 0 snapshots every provider
	Mode        models.ExecutionMode
	TriggeredBy string
}

// matchEntry is one stream with its winning rule and conflict losers.
type matchEntry struct {
	stream *models.Stream
	winner *models.Rule
	losers []int
	log    models.StreamLogEntry
}

// Run executes one full pipeline pass and returns the stored execution.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*models.Execution, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrRunInProgress
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if opts.Mode == "" {
		opts.Mode = models.ModeDryRun
	}
	started := time.Now()
	exec := &models.Execution{
		Mode:        opts.Mode,
		TriggeredBy: opts.TriggeredBy,
		StartedAt:   started.UTC(),
		Status:      models.ExecRunning,
	}
	id, err := e.db.CreateExecution(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	exec.ID = id
	e.publish(ctx, "execution:started", strconv.Itoa(id), map[string]string{
		"mode": string(opts.Mode), "triggered_by": opts.TriggeredBy,
	})

	err = e.run(ctx, exec, opts)
	done := time.Now().UTC()
	exec.CompletedAt = &done
	if err != nil {
		exec.Status = models.ExecFailed
		exec.Error = err.Error()
	} else {
		exec.Status = models.ExecCompleted
	}
	if ferr := e.db.FinishExecution(ctx, exec); ferr != nil {
		logging.Err(ferr).Int("execution_id", id).Msg("Failed to persist execution result")
	}

	metrics.PipelineRuns.WithLabelValues(string(opts.Mode), string(exec.Status)).Inc()
	metrics.PipelineDuration.Observe(time.Since(started).Seconds())
	metrics.PipelineStreamsEvaluated.Add(float64(exec.StreamsEvaluated))
	e.publish(ctx, "execution:"+string(exec.Status), strconv.Itoa(id), map[string]string{
		"streams_evaluated": strconv.Itoa(exec.StreamsEvaluated),
		"channels_created":  strconv.Itoa(exec.ChannelsCreated),
	})
	if err != nil {
		return exec, err
	}
	return exec, nil
}

func (e *Engine) run(ctx context.Context, exec *models.Execution, opts RunOptions) error {
	// Pass 0: load and snapshot.
	snap, err := e.snapshot(ctx, opts)
	if err != nil {
		return err
	}
	logging.Info().
		Int("execution_id", exec.ID).
		Str("mode", string(opts.Mode)).
		Int("channels", len(snap.channels)).
		Int("streams", len(snap.streams)).
		Int("rules", len(snap.rules)).
		Msg("Pipeline snapshot loaded")

	// Pass 1: evaluate every (stream, rule) pair.
	matches, logs := e.evaluate(snap)
	exec.StreamsEvaluated = len(snap.streams)
	exec.StreamsMatched = len(matches)

	// Pass 1.5: probe-on-sort.
	e.probeOnSort(ctx, snap, matches)

	// Between passes: sort matched entries per winning rule.
	ordered := e.sortMatches(snap, matches)

	// Pass 2: execute winning rules sequentially.
	dryRun := opts.Mode == models.ModeDryRun
	x := NewExecutor(e.client, snap.norm, snap.channels, snap.groups, snap.streams, e.cfg.AutoCreation, dryRun)
	if err := e.execute(ctx, exec, x, ordered, logs); err != nil {
		return err
	}

	// Pass 3: renumber per-rule channel blocks.
	if !dryRun {
		e.renumber(ctx, snap, x)
	}

	// Pass 3.5: reorder streams within merged channels.
	if !dryRun {
		e.reorderMerged(ctx, snap, x)
	}

	// Pass 4: reconcile orphans against each rule's managed set.
	if !dryRun {
		if err := e.reconcile(ctx, snap, x); err != nil {
			return err
		}
		for _, r := range snap.rules {
			count := 0
			for i := range matches {
				if matches[i].winner.ID == r.ID {
					count++
				}
			}
			if err := e.db.RecordRuleRun(ctx, r.ID, count, time.Now()); err != nil {
				logging.Err(err).Int("rule_id", r.ID).Msg("Failed to record rule run")
			}
		}
	}

	exec.CreatedEntities = x.CreatedEntities()
	exec.ModifiedEntities = x.ModifiedEntities()
	if dryRun {
		exec.DryRunResults = logs
	} else {
		exec.ExecutionLog = logs
	}
	return nil
}

// runSnapshot is the immutable input of one pipeline run.
type runSnapshot struct {
	channels  []models.Channel
	groups    []models.Group
	rules     []*models.Rule
	providers map[int]models.Provider
	streams   []models.Stream
	stats     map[int]*models.StreamStats
	eval      *rules.Evaluator
	norm      *rules.Normalizer
}

func (e *Engine) snapshot(ctx context.Context, opts RunOptions) (*runSnapshot, error) {
	pageSize := e.cfg.Upstream.PageSize
	channels, err := upstream.AllChannels(ctx, e.client, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	groups, err := e.client.ListChannelGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	allRules, err := e.db.ListRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	ruleSet := allRules
	if opts.RuleID != 0 {
		ruleSet = ruleSet[:0]
		for _, r := range allRules {
			if r.ID == opts.RuleID {
				ruleSet = append(ruleSet, r)
			}
		}
		if len(ruleSet) == 0 {
			return nil, fmt.Errorf("rule %d: %w", opts.RuleID, database.ErrRuleNotFound)
		}
	}

	providerList, err := e.client.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	providers := make(map[int]models.Provider, len(providerList))
	for _, p := range providerList {
		providers[p.ID] = p
	}

	var streams []models.Stream
	if opts.ProviderID != 0 {
		streams, err = upstream.AllStreams(ctx, e.client, pageSize, opts.ProviderID)
	} else {
		streams, err = upstream.AllStreams(ctx, e.client, pageSize, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}

	stats, err := e.db.SuccessfulStatsByStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stream stats: %w", err)
	}

	tagGroups, err := e.db.ListTagGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tag groups: %w", err)
	}
	normRules, err := e.db.ListNormalizationRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load normalization rules: %w", err)
	}
	registry := rules.NewRegistry(tagGroups)
	norm := rules.NewNormalizer(registry, normRules)

	groupNames := make(map[string]bool, len(groups))
	for _, g := range groups {
		groupNames[g.Name] = true
	}
	for i := range streams {
		s := &streams[i]
		if p, ok := providers[s.ProviderID]; ok && s.ProviderName == "" {
			s.ProviderName = p.Name
		}
		if st, ok := stats[s.ID]; ok && s.ResolutionHeight == 0 {
			s.ResolutionHeight = st.ResolutionHeight
		}
		if s.NormalizedName == "" {
			s.NormalizedName = norm.Normalize(s.Name)
		}
	}

	return &runSnapshot{
		channels:  channels,
		groups:    groups,
		rules:     ruleSet,
		providers: providers,
		streams:   streams,
		stats:     stats,
		eval:      rules.NewEvaluator(registry, norm),
		norm:      norm,
	}, nil
}

// evaluate applies every rule to every stream. The first matching rule by
// priority wins; later matchers are recorded as conflict losers unless the
// winner stops rule processing for the stream.
func (e *Engine) evaluate(snap *runSnapshot) ([]matchEntry, []models.StreamLogEntry) {
	var matches []matchEntry
	logs := make([]models.StreamLogEntry, 0, len(snap.streams))

	for i := range snap.streams {
		stream := &snap.streams[i]
		entry := models.StreamLogEntry{StreamID: stream.ID, StreamName: stream.Name}
		var winner *models.Rule
		var losers []int

		for _, r := range snap.rules {
			if r.ProviderID != nil && *r.ProviderID != stream.ProviderID {
				continue
			}
			verdict := snap.eval.Evaluate(stream, r)
			if !verdict.Matched {
				continue
			}
			if winner == nil {
				winner = r
				entry.RuleID = r.ID
				entry.RuleName = r.Name
				entry.Matched = true
				entry.ConditionsLog = verdict.ConditionsLog
				if r.StopOnFirstMatch {
					break
				}
			} else {
				losers = append(losers, r.ID)
			}
		}

		logs = append(logs, entry)
		if winner != nil {
			matches = append(matches, matchEntry{stream: stream, winner: winner, losers: losers, log: entry})
		}
	}
	return matches, logs
}

// probeOnSort fills missing stats for quality-sorted rules before the sort
// pass, bounded by the configured concurrency.
func (e *Engine) probeOnSort(ctx context.Context, snap *runSnapshot, matches []matchEntry) {
	if e.prober == nil {
		return
	}
	var toProbe []models.Stream
	seen := make(map[int]bool)
	for _, m := range matches {
		if m.winner.SortField != "quality" || !m.winner.ProbeOnSort {
			continue
		}
		if _, ok := snap.stats[m.stream.ID]; ok || seen[m.stream.ID] {
			continue
		}
		seen[m.stream.ID] = true
		toProbe = append(toProbe, *m.stream)
	}
	if len(toProbe) == 0 {
		return
	}

	concurrency := e.cfg.AutoCreation.ProbeOnSortConcurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	results := e.prober.ProbeForSort(ctx, toProbe, concurrency)
	for id, st := range results {
		if st == nil {
			continue
		}
		snap.stats[id] = st
		for i := range snap.streams {
			if snap.streams[i].ID == id {
				snap.streams[i].ResolutionHeight = st.ResolutionHeight
			}
		}
	}
}

// sortMatches groups matched entries by winning rule (rules keep their
// priority order) and sorts each rule's block by its sort field.
func (e *Engine) sortMatches(snap *runSnapshot, matches []matchEntry) []matchEntry {
	byRule := make(map[int][]matchEntry)
	for _, m := range matches {
		byRule[m.winner.ID] = append(byRule[m.winner.ID], m)
	}

	ordered := make([]matchEntry, 0, len(matches))
	for _, r := range snap.rules {
		block := byRule[r.ID]
		if len(block) == 0 {
			continue
		}
		if r.SortField != "" {
			desc := r.SortOrder == models.SortDesc
			sort.SliceStable(block, func(i, j int) bool {
				less := streamLess(block[i].stream, block[j].stream, r.SortField)
				if desc {
					return !less && !streamEqual(block[i].stream, block[j].stream, r.SortField)
				}
				return less
			})
		}
		ordered = append(ordered, block...)
	}
	return ordered
}

func streamLess(a, b *models.Stream, field string) bool {
	switch field {
	case "quality":
		return a.ResolutionHeight < b.ResolutionHeight
	case "tvg_id":
		return a.TvgID < b.TvgID
	case "group":
		return a.GroupName < b.GroupName
	default:
		return a.Name < b.Name
	}
}

func streamEqual(a, b *models.Stream, field string) bool {
	switch field {
	case "quality":
		return a.ResolutionHeight == b.ResolutionHeight
	case "tvg_id":
		return a.TvgID == b.TvgID
	case "group":
		return a.GroupName == b.GroupName
	default:
		return a.Name == b.Name
	}
}

// execute runs Pass 2: winners in order, actions in declaration order.
// Action results are folded back into the in-order stream log.
func (e *Engine) execute(ctx context.Context, exec *models.Execution, x *Executor, ordered []matchEntry, logs []models.StreamLogEntry) error {
	logIndex := make(map[int]*models.StreamLogEntry)
	appendLog := func(entry *matchEntry, results []models.ActionResult) {
		entry.log.Actions = results
		logIndex[entry.stream.ID] = &entry.log
	}

	for i := range ordered {
		m := &ordered[i]
		if len(m.losers) > 0 {
			metrics.PipelineConflicts.Inc()
			err := e.db.RecordConflict(ctx, &models.Conflict{
				ExecutionID:  exec.ID,
				StreamID:     m.stream.ID,
				StreamName:   m.stream.Name,
				WinningRule:  m.winner.ID,
				LosingRules:  m.losers,
				ConflictType: "multiple_match",
				Resolution:   "priority",
				Description:  fmt.Sprintf("rule %d won by priority", m.winner.ID),
			})
			if err != nil {
				logging.Err(err).Int("stream_id", m.stream.ID).Msg("Failed to record conflict")
			}
		}

		sc := newStreamContext(m.stream, m.winner)
		results := make([]models.ActionResult, 0, len(m.winner.Actions))
		for _, action := range m.winner.Actions {
			res := x.Execute(ctx, sc, action)
			results = append(results, res)
			if res.Error != "" {
				logging.Error().
					Str("action", string(action.Type)).
					Int("stream_id", m.stream.ID).
					Str("error", res.Error).
					Msg("Action failed, continuing with remaining actions")
			}
			applyCounts(exec, res)
			if sc.skipped || sc.stop {
				break
			}
		}
		if sc.skipped {
			exec.StreamsSkipped++
		}
		appendLog(m, results)
		if sc.stop {
			logging.Info().Int("stream_id", m.stream.ID).Msg("Pipeline stopped by stop_processing action")
			break
		}
	}

	for i := range logs {
		if full, ok := logIndex[logs[i].StreamID]; ok {
			logs[i] = *full
		}
	}
	return nil
}

func applyCounts(exec *models.Execution, res models.ActionResult) {
	switch {
	case res.Created && res.EntityType == "channel":
		exec.ChannelsCreated++
	case res.Created && res.EntityType == "group":
		exec.GroupsCreated++
	case res.Modified && res.ActionType == models.ActionMergeStreams:
		exec.StreamsMerged++
		exec.ChannelsUpdated++
	case res.Modified && res.EntityType == "channel":
		exec.ChannelsUpdated++
	}
}

// renumber applies Pass 3: one bulk-assign call per sorted rule block.
func (e *Engine) renumber(ctx context.Context, snap *runSnapshot, x *Executor) {
	for _, r := range snap.rules {
		if r.SortField == "" {
			continue
		}
		ids := x.TouchedChannels(r.ID)
		if len(ids) < 2 {
			continue
		}
		starting := r.StartingNumber
		if starting < 1 {
			starting = 1
		}
		if err := e.client.AssignChannelNumbers(ctx, ids, float64(starting)); err != nil {
			logging.Err(err).Int("rule_id", r.ID).Msg("Failed to renumber rule channels")
		}
	}
}

// reorderMerged applies Pass 3.5: quality re-sort of stream lists inside
// channels that received a merge under a quality-sorted rule.
func (e *Engine) reorderMerged(ctx context.Context, snap *runSnapshot, x *Executor) {
	merged := x.MergedChannels()
	for _, r := range snap.rules {
		if r.SortField != "quality" {
			continue
		}
		desc := r.SortOrder != models.SortAsc // quality defaults to best-first
		for _, channelID := range x.TouchedChannels(r.ID) {
			if !merged[channelID] || channelID == simulatedID {
				continue
			}
			channel, err := e.client.GetChannel(ctx, channelID)
			if err != nil {
				logging.Err(err).Int("channel_id", channelID).Msg("Failed to fetch channel for reorder")
				continue
			}
			sorted := append([]int(nil), channel.Streams...)
			sort.SliceStable(sorted, func(i, j int) bool {
				hi, hj := 0, 0
				if st, ok := snap.stats[sorted[i]]; ok {
					hi = st.ResolutionHeight
				}
				if st, ok := snap.stats[sorted[j]]; ok {
					hj = st.ResolutionHeight
				}
				if desc {
					return hi > hj
				}
				return hi < hj
			})
			if equalIntSlices(sorted, channel.Streams) {
				continue
			}
			if _, err := e.client.UpdateChannel(ctx, channelID, map[string]any{"streams": sorted}); err != nil {
				logging.Err(err).Int("channel_id", channelID).Msg("Failed to reorder channel streams")
			}
		}
	}
}

// reconcile applies Pass 4: orphan handling anchored on managed_channel_ids.
func (e *Engine) reconcile(ctx context.Context, snap *runSnapshot, x *Executor) error {
	channelsByID := make(map[int]*models.Channel, len(snap.channels))
	for i := range snap.channels {
		channelsByID[snap.channels[i].ID] = &snap.channels[i]
	}

	for _, r := range snap.rules {
		current := x.TouchedChannels(r.ID)
		if current == nil {
			current = []int{}
		}

		// First run after upgrade: populate the anchor without deleting.
		if r.ManagedChannelIDs == nil {
			if err := e.db.SetManagedChannelIDs(ctx, r.ID, current); err != nil {
				return fmt.Errorf("persist managed ids for rule %d: %w", r.ID, err)
			}
			continue
		}

		currentSet := make(map[int]bool, len(current))
		for _, id := range current {
			currentSet[id] = true
		}
		var orphans []int
		for _, id := range r.ManagedChannelIDs {
			if !currentSet[id] {
				orphans = append(orphans, id)
			}
		}

		if len(orphans) > 0 && r.OrphanAction != models.OrphanNone {
			e.handleOrphans(ctx, r, orphans, channelsByID)
			// Close number gaps left by deleted orphans.
			if len(current) > 1 && (r.OrphanAction == models.OrphanDelete || r.OrphanAction == models.OrphanDeleteCleanup) {
				starting := r.StartingNumber
				if starting < 1 {
					starting = 1
				}
				if err := e.client.AssignChannelNumbers(ctx, current, float64(starting)); err != nil {
					logging.Err(err).Int("rule_id", r.ID).Msg("Failed to renumber after orphan removal")
				}
			}
		}

		if err := e.db.SetManagedChannelIDs(ctx, r.ID, current); err != nil {
			return fmt.Errorf("persist managed ids for rule %d: %w", r.ID, err)
		}
	}
	return nil
}

func (e *Engine) handleOrphans(ctx context.Context, r *models.Rule, orphans []int, channelsByID map[int]*models.Channel) {
	affectedGroups := make(map[int]bool)
	deleted := make(map[int]bool)

	for _, id := range orphans {
		switch r.OrphanAction {
		case models.OrphanDelete, models.OrphanDeleteCleanup:
			if c, ok := channelsByID[id]; ok && c.GroupID != nil {
				affectedGroups[*c.GroupID] = true
			}
			err := e.client.DeleteChannel(ctx, id)
			if err != nil && !upstream.IsNotFound(err) {
				logging.Err(err).Int("channel_id", id).Msg("Failed to delete orphan channel")
				continue
			}
			deleted[id] = true
			logging.Info().Int("channel_id", id).Int("rule_id", r.ID).Msg("Deleted orphan channel")

		case models.OrphanMoveUncategorized:
			_, err := e.client.UpdateChannel(ctx, id, map[string]any{"channel_group_id": nil})
			if err != nil && !upstream.IsNotFound(err) {
				logging.Err(err).Int("channel_id", id).Msg("Failed to uncategorize orphan channel")
			}
		}
	}

	if r.OrphanAction == models.OrphanDeleteCleanup {
		for groupID := range affectedGroups {
			empty := true
			for id, c := range channelsByID {
				if deleted[id] {
					continue
				}
				if c.GroupID != nil && *c.GroupID == groupID {
					empty = false
					break
				}
			}
			if !empty {
				continue
			}
			if err := e.client.DeleteChannelGroup(ctx, groupID); err != nil && !upstream.IsNotFound(err) {
				logging.Err(err).Int("group_id", groupID).Msg("Failed to delete emptied group")
			}
		}
	}
}

func (e *Engine) publish(ctx context.Context, event, subject string, details map[string]string) {
	if e.journal == nil {
		return
	}
	e.journal.Publish(ctx, event, subject, details)
}

func equalIntSlices(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// GetExecution exposes stored executions for the API layer.
func (e *Engine) GetExecution(ctx context.Context, id int) (*models.Execution, error) {
	return e.db.GetExecution(ctx, id)
}
