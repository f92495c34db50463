// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package autocreate

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/streamweaver/internal/config"
	"github.com/tomtom215/streamweaver/internal/logging"
	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/rules"
	"github.com/tomtom215/streamweaver/internal/upstream"
)

// simulatedID marks dry-run entities. They carry distinct identity in the
// index maps through pointer equality; the ID itself is never dereferenced
// against the upstream.
const simulatedID = -1

// Executor applies one rule's action chain to one stream. Dry-run
// executors perform no upstream calls and record simulated entities in the
// indices so later streams in the same run still match against them.
type Executor struct {
	client upstream.Client
	norm   *rules.Normalizer
	idx    *channelIndex
	cfg    config.AutoCreationConfig
	dryRun bool

	createdEntities  []models.EntityRef
	modifiedEntities []models.EntityRef

	// channelCaps[channelID][providerID] counts streams per provider per
	// channel, seeded lazily from the channel's current stream list.
	channelCaps map[int]map[int]int
	streamIndex map[int]*models.Stream // full snapshot, for cap seeding

	epgSources []models.EpgSource
	epgData    map[int][]models.EpgData // by source id
	logosByURL map[string]*models.Logo
	epgLoaded  bool

	// touchedChannels maps rule id to the channel ids its streams created
	// or merged into this run, in first-touch order.
	touchedChannels map[int][]int
	mergedChannels  map[int]bool
}

// NewExecutor builds an executor over a run's channel and group snapshot.
func NewExecutor(client upstream.Client, norm *rules.Normalizer, channels []models.Channel, groups []models.Group, streams []models.Stream, cfg config.AutoCreationConfig, dryRun bool) *Executor {
	streamIndex := make(map[int]*models.Stream, len(streams))
	for i := range streams {
		streamIndex[streams[i].ID] = &streams[i]
	}
	return &Executor{
		client:          client,
		norm:            norm,
		idx:             newChannelIndex(channels, groups, norm),
		cfg:             cfg,
		dryRun:          dryRun,
		channelCaps:     make(map[int]map[int]int),
		streamIndex:     streamIndex,
		logosByURL:      make(map[string]*models.Logo),
		touchedChannels: make(map[int][]int),
		mergedChannels:  make(map[int]bool),
	}
}

// CreatedEntities returns the upstream entities created this run, in
// creation order.
func (x *Executor) CreatedEntities() []models.EntityRef { return x.createdEntities }

// ModifiedEntities returns the entities mutated this run with their
// pre-mutation state.
func (x *Executor) ModifiedEntities() []models.EntityRef { return x.modifiedEntities }

// TouchedChannels returns the channel ids a rule created or merged into,
// in first-touch order.
func (x *Executor) TouchedChannels(ruleID int) []int { return x.touchedChannels[ruleID] }

// MergedChannels returns the set of channels that received a stream merge.
func (x *Executor) MergedChannels() map[int]bool { return x.mergedChannels }

// Execute runs one action against the stream context. Errors are folded
// into the returned ActionResult; the caller decides whether to continue.
func (x *Executor) Execute(ctx context.Context, sc *streamContext, action models.Action) models.ActionResult {
	switch action.Type {
	case models.ActionCreateChannel:
		return x.createChannel(ctx, sc, action.Params)
	case models.ActionCreateGroup:
		return x.createGroup(ctx, sc, action.Params)
	case models.ActionMergeStreams:
		return x.mergeStreams(ctx, sc, action.Params)
	case models.ActionAssignLogo:
		return x.assignLogo(ctx, sc, action.Params)
	case models.ActionAssignTvgID:
		return x.assignTvgID(ctx, sc, action.Params)
	case models.ActionAssignEpg:
		return x.assignEpg(ctx, sc, action.Params)
	case models.ActionAssignProfile:
		return x.assignProfile(ctx, sc, action.Params)
	case models.ActionSetChannelNumber:
		return x.setChannelNumber(ctx, sc, action.Params)
	case models.ActionSetVariable:
		return x.setVariable(sc, action.Params)
	case models.ActionSkip:
		sc.skipped = true
		return models.ActionResult{Success: true, ActionType: models.ActionSkip, Skipped: true, Description: "stream skipped"}
	case models.ActionStopProcessing:
		sc.stop = true
		return models.ActionResult{Success: true, ActionType: models.ActionStopProcessing, Description: "pipeline stopped"}
	case models.ActionLogMatch:
		logging.Info().
			Int("stream_id", sc.stream.ID).
			Str("stream", sc.stream.Name).
			Int("rule_id", sc.rule.ID).
			Str("rule", sc.rule.Name).
			Msg("Rule matched stream")
		return models.ActionResult{Success: true, ActionType: models.ActionLogMatch, Description: "match logged"}
	default:
		return failure(models.ActionType(action.Type), fmt.Errorf("unknown action type %q", action.Type))
	}
}

func failure(t models.ActionType, err error) models.ActionResult {
	return models.ActionResult{ActionType: t, Error: err.Error()}
}

// channelName resolves the target channel name for create_channel: the
// template expansion followed by the optional regex transform.
func (x *Executor) channelName(sc *streamContext, params map[string]string) (string, error) {
	name := params["name"]
	if name == "" {
		name = "{stream_name}"
	}
	name = sc.expand(name, x.norm)
	if pattern := params["name_transform_pattern"]; pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return "", fmt.Errorf("name_transform_pattern: %w", err)
		}
		name = re.ReplaceAllString(name, params["name_transform_replacement"])
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty channel name after template expansion")
	}
	return name, nil
}

func (x *Executor) createChannel(ctx context.Context, sc *streamContext, params map[string]string) models.ActionResult {
	name, err := x.channelName(sc, params)
	if err != nil {
		return failure(models.ActionCreateChannel, err)
	}

	ifExists := params["if_exists"]
	if ifExists == "" {
		ifExists = "skip"
	}

	if existing := x.idx.findByName(name); existing != nil {
		switch ifExists {
		case "skip":
			sc.channel = existing
			x.touch(sc.rule.ID, existing.ID)
			return models.ActionResult{
				Success: true, ActionType: models.ActionCreateChannel, Skipped: true,
				EntityType: "channel", EntityID: existing.ID, EntityName: existing.Name,
				Description: fmt.Sprintf("channel %q already exists", existing.Name),
			}
		case "merge", "merge_only":
			return x.mergeInto(ctx, sc, existing, params)
		case "update":
			return x.updateExisting(ctx, sc, existing, name, params)
		default:
			return failure(models.ActionCreateChannel, fmt.Errorf("unknown if_exists policy %q", ifExists))
		}
	}
	if ifExists == "merge_only" {
		sc.skipped = true
		return models.ActionResult{
			Success: true, ActionType: models.ActionCreateChannel, Skipped: true,
			Description: fmt.Sprintf("no existing channel for %q and policy is merge_only", name),
		}
	}

	number, err := x.allocateNumber(params["channel_number"], sc.rule.StartingNumber)
	if err != nil {
		return failure(models.ActionCreateChannel, err)
	}
	if x.cfg.PrefixChannelNumber && number > 0 {
		name = fmt.Sprintf("%d | %s", number, name)
	}

	data := map[string]any{
		"name":            name,
		"streams":         []int{sc.stream.ID},
		"auto_created":    true,
		"auto_created_by": sc.rule.ID,
	}
	if number > 0 {
		data["channel_number"] = float64(number)
	}
	if gid := x.targetGroupID(ctx, sc, params); gid != nil {
		data["channel_group_id"] = *gid
	}
	if sc.stream.TvgID != "" {
		data["tvg_id"] = sc.stream.TvgID
	}
	if len(x.cfg.DefaultProfileIDs) > 0 {
		data["channel_profile_ids"] = x.cfg.DefaultProfileIDs
	}

	var created *models.Channel
	if x.dryRun {
		gid, _ := data["channel_group_id"].(int)
		created = &models.Channel{
			ID: simulatedID, Name: name, ChannelNumber: float64(number),
			Streams: []int{sc.stream.ID}, TvgID: sc.stream.TvgID,
			AutoCreated: true, AutoCreatedBy: &sc.rule.ID,
		}
		if gid != 0 {
			created.GroupID = &gid
		}
	} else {
		created, err = x.client.CreateChannel(ctx, data)
		if err != nil {
			return failure(models.ActionCreateChannel, actionErr("create_channel", "channel", name, err))
		}
	}

	x.idx.add(created)
	x.createdEntities = append(x.createdEntities, models.EntityRef{
		EntityType: "channel", EntityID: created.ID, EntityName: created.Name, RuleID: sc.rule.ID,
	})
	x.touch(sc.rule.ID, created.ID)
	x.seedCap(created, sc.stream)
	sc.channel = created
	return models.ActionResult{
		Success: true, ActionType: models.ActionCreateChannel, Created: true,
		EntityType: "channel", EntityID: created.ID, EntityName: created.Name,
		Description: fmt.Sprintf("created channel %q", created.Name),
	}
}

// mergeInto appends the context stream to an existing channel, honoring
// the per-provider stream cap.
func (x *Executor) mergeInto(ctx context.Context, sc *streamContext, target *models.Channel, params map[string]string) models.ActionResult {
	sc.channel = target
	for _, id := range target.Streams {
		if id == sc.stream.ID {
			// Still managed by the rule even though nothing changed.
			x.touch(sc.rule.ID, target.ID)
			return models.ActionResult{
				Success: true, ActionType: models.ActionMergeStreams, Skipped: true,
				EntityType: "channel", EntityID: target.ID, EntityName: target.Name,
				Description: "stream already assigned",
			}
		}
	}

	if maxPer := paramInt(params, "max_streams_per_channel", 0); maxPer > 0 {
		if x.providerCount(target, sc.stream.ProviderID) >= maxPer {
			return models.ActionResult{
				Success: true, ActionType: models.ActionMergeStreams, Skipped: true,
				EntityType: "channel", EntityID: target.ID, EntityName: target.Name,
				Description: fmt.Sprintf("provider %d at cap %d on channel %q", sc.stream.ProviderID, maxPer, target.Name),
			}
		}
	}

	previous, err := json.Marshal(map[string]any{"streams": target.Streams})
	if err != nil {
		return failure(models.ActionMergeStreams, err)
	}
	newStreams := append(append([]int(nil), target.Streams...), sc.stream.ID)

	if !x.dryRun {
		if _, err := x.client.UpdateChannel(ctx, target.ID, map[string]any{"streams": newStreams}); err != nil {
			return failure(models.ActionMergeStreams, actionErr("merge_streams", "channel", target.Name, err))
		}
	}
	target.Streams = newStreams
	x.bumpCap(target.ID, sc.stream.ProviderID)
	x.recordModified(target, sc.rule.ID, previous)
	x.touch(sc.rule.ID, target.ID)
	x.mergedChannels[target.ID] = true
	return models.ActionResult{
		Success: true, ActionType: models.ActionMergeStreams, Modified: true,
		EntityType: "channel", EntityID: target.ID, EntityName: target.Name,
		PreviousState: previous,
		Description:   fmt.Sprintf("merged stream into channel %q", target.Name),
	}
}

func (x *Executor) updateExisting(ctx context.Context, sc *streamContext, target *models.Channel, name string, params map[string]string) models.ActionResult {
	previous, err := json.Marshal(map[string]any{"name": target.Name, "tvg_id": target.TvgID})
	if err != nil {
		return failure(models.ActionCreateChannel, err)
	}
	data := map[string]any{"name": name}
	if sc.stream.TvgID != "" {
		data["tvg_id"] = sc.stream.TvgID
	}
	if !x.dryRun {
		if _, err := x.client.UpdateChannel(ctx, target.ID, data); err != nil {
			return failure(models.ActionCreateChannel, actionErr("update_channel", "channel", target.Name, err))
		}
	}
	target.Name = name
	if sc.stream.TvgID != "" {
		target.TvgID = sc.stream.TvgID
	}
	x.recordModified(target, sc.rule.ID, previous)
	x.touch(sc.rule.ID, target.ID)
	sc.channel = target
	return models.ActionResult{
		Success: true, ActionType: models.ActionCreateChannel, Modified: true,
		EntityType: "channel", EntityID: target.ID, EntityName: target.Name,
		PreviousState: previous,
		Description:   fmt.Sprintf("updated channel %q", name),
	}
}

func (x *Executor) createGroup(ctx context.Context, sc *streamContext, params map[string]string) models.ActionResult {
	name := params["name"]
	if name == "" {
		name = "{stream_group}"
	}
	name = sc.expand(name, x.norm)
	if name == "" {
		return failure(models.ActionCreateGroup, fmt.Errorf("empty group name after template expansion"))
	}
	if existing := x.idx.groupsByName[strings.ToLower(name)]; existing != nil {
		return models.ActionResult{
			Success: true, ActionType: models.ActionCreateGroup, Skipped: true,
			EntityType: "group", EntityID: existing.ID, EntityName: existing.Name,
			Description: fmt.Sprintf("group %q already exists", existing.Name),
		}
	}

	var group *models.Group
	if x.dryRun {
		group = &models.Group{ID: simulatedID, Name: name}
	} else {
		g, err := x.client.CreateChannelGroup(ctx, name)
		if err != nil {
			return failure(models.ActionCreateGroup, actionErr("create_group", "group", name, err))
		}
		group = g
	}
	x.idx.addGroup(group)
	x.createdEntities = append(x.createdEntities, models.EntityRef{
		EntityType: "group", EntityID: group.ID, EntityName: group.Name, RuleID: sc.rule.ID,
	})
	return models.ActionResult{
		Success: true, ActionType: models.ActionCreateGroup, Created: true,
		EntityType: "group", EntityID: group.ID, EntityName: group.Name,
		Description: fmt.Sprintf("created group %q", group.Name),
	}
}

func (x *Executor) mergeStreams(ctx context.Context, sc *streamContext, params map[string]string) models.ActionResult {
	target := x.findMergeTarget(sc, params)
	if target == nil {
		return models.ActionResult{
			Success: true, ActionType: models.ActionMergeStreams, Skipped: true,
			Description: fmt.Sprintf("no channel matches stream %q", sc.stream.Name),
		}
	}
	return x.mergeInto(ctx, sc, target, params)
}

// findMergeTarget resolves the merge destination. Explicit find_channel_by
// modes take precedence; target=auto falls through the name cascade, then
// deparenthesized, word-prefix containment, and finally call sign.
func (x *Executor) findMergeTarget(sc *streamContext, params map[string]string) *models.Channel {
	value := params["find_channel_value"]
	if value == "" {
		value = sc.stream.Name
	} else {
		value = sc.expand(value, x.norm)
	}

	switch params["find_channel_by"] {
	case "name_exact":
		return x.idx.byName[strings.ToLower(value)]
	case "name_regex":
		re, err := regexp.Compile("(?i)" + value)
		if err != nil {
			return nil
		}
		// Deterministic scan order.
		names := make([]string, 0, len(x.idx.byName))
		for name := range x.idx.byName {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if re.MatchString(name) {
				return x.idx.byName[name]
			}
		}
		return nil
	case "tvg_id":
		if sc.stream.TvgID == "" {
			return nil
		}
		return x.idx.byTvgID[strings.ToLower(sc.stream.TvgID)]
	}

	// target=auto (the default): strict-to-loose cascade.
	if c := x.idx.findByName(value); c != nil {
		return c
	}
	if c := x.idx.byName[strings.ToLower(rules.Deparenthesize(value))]; c != nil {
		return c
	}
	if c := x.idx.findByWordPrefix(value); c != nil {
		return c
	}
	return x.idx.findByCallSign(value)
}

func (x *Executor) assignLogo(ctx context.Context, sc *streamContext, params map[string]string) models.ActionResult {
	channel := sc.channel
	if channel == nil {
		return failure(models.ActionAssignLogo, fmt.Errorf("no channel selected by a prior action"))
	}
	url := params["url"]
	if url == "" {
		url = sc.stream.LogoURL
	}
	if url == "" {
		return models.ActionResult{
			Success: true, ActionType: models.ActionAssignLogo, Skipped: true,
			Description: "stream has no logo url",
		}
	}

	logo, err := x.resolveLogo(ctx, sc, url)
	if err != nil {
		return failure(models.ActionAssignLogo, actionErr("assign_logo", "logo", url, err))
	}
	if channel.LogoID != nil && *channel.LogoID == logo.ID {
		return models.ActionResult{
			Success: true, ActionType: models.ActionAssignLogo, Skipped: true,
			EntityType: "channel", EntityID: channel.ID, EntityName: channel.Name,
			Description: "logo already assigned",
		}
	}

	previous, err := json.Marshal(map[string]any{"logo_id": channel.LogoID})
	if err != nil {
		return failure(models.ActionAssignLogo, err)
	}
	if !x.dryRun {
		if _, err := x.client.UpdateChannel(ctx, channel.ID, map[string]any{"logo_id": logo.ID}); err != nil {
			return failure(models.ActionAssignLogo, actionErr("assign_logo", "channel", channel.Name, err))
		}
	}
	id := logo.ID
	channel.LogoID = &id
	x.recordModified(channel, sc.rule.ID, previous)
	return models.ActionResult{
		Success: true, ActionType: models.ActionAssignLogo, Modified: true,
		EntityType: "channel", EntityID: channel.ID, EntityName: channel.Name,
		PreviousState: previous,
		Description:   fmt.Sprintf("assigned logo %d to %q", logo.ID, channel.Name),
	}
}

// resolveLogo finds or creates the logo for a URL. A duplicate-create 4xx
// is recovered by looking the existing logo up.
func (x *Executor) resolveLogo(ctx context.Context, sc *streamContext, url string) (*models.Logo, error) {
	if logo, ok := x.logosByURL[url]; ok {
		return logo, nil
	}
	if x.dryRun {
		logo := &models.Logo{ID: simulatedID, Name: sc.stream.Name, URL: url}
		x.logosByURL[url] = logo
		return logo, nil
	}
	logo, err := x.client.FindLogoByURL(ctx, url)
	if err != nil {
		if !upstream.IsNotFound(err) {
			return nil, err
		}
		created, cerr := x.client.CreateLogo(ctx, sc.stream.Name, url)
		switch {
		case upstream.IsDuplicate(cerr):
			// Lost a create race; the logo exists now.
			logo, err = x.client.FindLogoByURL(ctx, url)
			if err != nil {
				return nil, err
			}
		case cerr != nil:
			return nil, cerr
		default:
			logo = created
			x.createdEntities = append(x.createdEntities, models.EntityRef{
				EntityType: "logo", EntityID: logo.ID, EntityName: logo.Name, RuleID: sc.rule.ID,
			})
		}
	}
	x.logosByURL[url] = logo
	return logo, nil
}

func (x *Executor) assignTvgID(ctx context.Context, sc *streamContext, params map[string]string) models.ActionResult {
	channel := sc.channel
	if channel == nil {
		return failure(models.ActionAssignTvgID, fmt.Errorf("no channel selected by a prior action"))
	}
	tvg := params["value"]
	if tvg == "" {
		tvg = sc.stream.TvgID
	} else {
		tvg = sc.expand(tvg, x.norm)
	}
	if tvg == "" || channel.TvgID == tvg {
		return models.ActionResult{
			Success: true, ActionType: models.ActionAssignTvgID, Skipped: true,
			EntityType: "channel", EntityID: channel.ID, EntityName: channel.Name,
			Description: "tvg_id unchanged",
		}
	}

	previous, err := json.Marshal(map[string]any{"tvg_id": channel.TvgID})
	if err != nil {
		return failure(models.ActionAssignTvgID, err)
	}
	if !x.dryRun {
		if _, err := x.client.UpdateChannel(ctx, channel.ID, map[string]any{"tvg_id": tvg}); err != nil {
			return failure(models.ActionAssignTvgID, actionErr("assign_tvg_id", "channel", channel.Name, err))
		}
	}
	channel.TvgID = tvg
	x.recordModified(channel, sc.rule.ID, previous)
	return models.ActionResult{
		Success: true, ActionType: models.ActionAssignTvgID, Modified: true,
		EntityType: "channel", EntityID: channel.ID, EntityName: channel.Name,
		PreviousState: previous,
		Description:   fmt.Sprintf("assigned tvg_id %q", tvg),
	}
}

func (x *Executor) assignEpg(ctx context.Context, sc *streamContext, params map[string]string) models.ActionResult {
	channel := sc.channel
	if channel == nil {
		return failure(models.ActionAssignEpg, fmt.Errorf("no channel selected by a prior action"))
	}
	sourceID := paramInt(params, "epg_source_id", 0)
	if sourceID == 0 {
		return failure(models.ActionAssignEpg, fmt.Errorf("epg_source_id is required"))
	}
	if err := x.loadEpg(ctx); err != nil {
		return failure(models.ActionAssignEpg, actionErr("assign_epg", "epg_source", strconv.Itoa(sourceID), err))
	}

	entry := x.matchEpg(sourceID, channel, sc.stream)
	if entry == nil {
		return models.ActionResult{
			Success: true, ActionType: models.ActionAssignEpg, Skipped: true,
			EntityType: "channel", EntityID: channel.ID, EntityName: channel.Name,
			Description: fmt.Sprintf("no EPG entry in source %d matches %q", sourceID, channel.Name),
		}
	}
	if channel.EpgDataID != nil && *channel.EpgDataID == entry.ID {
		return models.ActionResult{
			Success: true, ActionType: models.ActionAssignEpg, Skipped: true,
			EntityType: "channel", EntityID: channel.ID, EntityName: channel.Name,
			Description: "epg entry unchanged",
		}
	}

	previous, err := json.Marshal(map[string]any{"epg_data_id": channel.EpgDataID})
	if err != nil {
		return failure(models.ActionAssignEpg, err)
	}
	if !x.dryRun {
		if _, err := x.client.UpdateChannel(ctx, channel.ID, map[string]any{"epg_data_id": entry.ID}); err != nil {
			return failure(models.ActionAssignEpg, actionErr("assign_epg", "channel", channel.Name, err))
		}
	}
	id := entry.ID
	channel.EpgDataID = &id
	x.recordModified(channel, sc.rule.ID, previous)
	return models.ActionResult{
		Success: true, ActionType: models.ActionAssignEpg, Modified: true,
		EntityType: "channel", EntityID: channel.ID, EntityName: channel.Name,
		PreviousState: previous,
		Description:   fmt.Sprintf("assigned EPG entry %q (%d)", entry.Name, entry.ID),
	}
}

// matchEpg walks the deterministic matching cascade: exact tvg_id, exact
// normalized name, call sign, then prefix with length tie-break, and
// finally a single-entry fallback for dummy sources.
func (x *Executor) matchEpg(sourceID int, channel *models.Channel, stream *models.Stream) *models.EpgData {
	entries := x.epgData[sourceID]
	if len(entries) == 0 {
		return nil
	}

	tvg := channel.TvgID
	if tvg == "" {
		tvg = stream.TvgID
	}
	if tvg != "" {
		for i := range entries {
			if strings.EqualFold(entries[i].TvgID, tvg) {
				return &entries[i]
			}
		}
	}

	want := x.norm.Normalize(channel.Name)
	for i := range entries {
		if x.norm.Normalize(entries[i].Name) == want {
			return &entries[i]
		}
	}

	if cs := rules.CallSign(channel.Name); cs != "" {
		for i := range entries {
			if rules.CallSign(entries[i].Name) == cs || strings.EqualFold(entries[i].TvgID, cs) {
				return &entries[i]
			}
		}
	}

	if len(want) >= 4 {
		var best *models.EpgData
		bestDelta := -1
		for i := range entries {
			got := x.norm.Normalize(entries[i].Name)
			if len(got) < 4 {
				continue
			}
			if strings.HasPrefix(got, want) || strings.HasPrefix(want, got) {
				delta := len(got) - len(want)
				if delta < 0 {
					delta = -delta
				}
				if best == nil || delta < bestDelta {
					best = &entries[i]
					bestDelta = delta
				}
			}
		}
		if best != nil {
			return best
		}
	}

	if len(entries) == 1 {
		for i := range x.epgSources {
			if x.epgSources[i].ID == sourceID && x.epgSources[i].IsDummy {
				return &entries[0]
			}
		}
	}
	return nil
}

func (x *Executor) loadEpg(ctx context.Context) error {
	if x.epgLoaded {
		return nil
	}
	sources, err := x.client.ListEpgSources(ctx)
	if err != nil {
		return err
	}
	x.epgSources = sources
	x.epgData = make(map[int][]models.EpgData, len(sources))
	for _, s := range sources {
		data, err := x.client.GetEpgData(ctx, s.ID)
		if err != nil {
			return err
		}
		x.epgData[s.ID] = data
	}
	x.epgLoaded = true
	return nil
}

func (x *Executor) assignProfile(ctx context.Context, sc *streamContext, params map[string]string) models.ActionResult {
	channel := sc.channel
	if channel == nil {
		return failure(models.ActionAssignProfile, fmt.Errorf("no channel selected by a prior action"))
	}
	var ids []int
	for _, part := range strings.Split(params["profile_ids"], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return failure(models.ActionAssignProfile, fmt.Errorf("invalid profile id %q", part))
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		ids = x.cfg.DefaultProfileIDs
	}
	if len(ids) == 0 {
		return models.ActionResult{
			Success: true, ActionType: models.ActionAssignProfile, Skipped: true,
			Description: "no profile ids configured",
		}
	}
	if !x.dryRun {
		if _, err := x.client.UpdateChannel(ctx, channel.ID, map[string]any{"channel_profile_ids": ids}); err != nil {
			return failure(models.ActionAssignProfile, actionErr("assign_profile", "channel", channel.Name, err))
		}
	}
	return models.ActionResult{
		Success: true, ActionType: models.ActionAssignProfile, Modified: true,
		EntityType: "channel", EntityID: channel.ID, EntityName: channel.Name,
		Description: fmt.Sprintf("assigned profiles %v", ids),
	}
}

func (x *Executor) setChannelNumber(ctx context.Context, sc *streamContext, params map[string]string) models.ActionResult {
	channel := sc.channel
	if channel == nil {
		return failure(models.ActionSetChannelNumber, fmt.Errorf("no channel selected by a prior action"))
	}
	number, err := x.allocateNumber(params["number"], sc.rule.StartingNumber)
	if err != nil {
		return failure(models.ActionSetChannelNumber, err)
	}
	if number <= 0 || channel.ChannelNumber == float64(number) {
		return models.ActionResult{
			Success: true, ActionType: models.ActionSetChannelNumber, Skipped: true,
			EntityType: "channel", EntityID: channel.ID, EntityName: channel.Name,
			Description: "channel number unchanged",
		}
	}

	previous, err := json.Marshal(map[string]any{"channel_number": channel.ChannelNumber})
	if err != nil {
		return failure(models.ActionSetChannelNumber, err)
	}
	if !x.dryRun {
		if _, err := x.client.UpdateChannel(ctx, channel.ID, map[string]any{"channel_number": float64(number)}); err != nil {
			return failure(models.ActionSetChannelNumber, actionErr("set_channel_number", "channel", channel.Name, err))
		}
	}
	channel.ChannelNumber = float64(number)
	x.recordModified(channel, sc.rule.ID, previous)
	return models.ActionResult{
		Success: true, ActionType: models.ActionSetChannelNumber, Modified: true,
		EntityType: "channel", EntityID: channel.ID, EntityName: channel.Name,
		PreviousState: previous,
		Description:   fmt.Sprintf("set channel number to %d", number),
	}
}

func (x *Executor) setVariable(sc *streamContext, params map[string]string) models.ActionResult {
	name := params["var_name"]
	if name == "" {
		return failure(models.ActionSetVariable, fmt.Errorf("var_name is required"))
	}
	source := params["source_field"]
	if source == "" {
		source = "stream_name"
	}
	input := sc.expand("{"+source+"}", x.norm)

	var value string
	switch params["mode"] {
	case "", "literal":
		value = sc.expand(params["template"], x.norm)
	case "regex_extract":
		re, err := regexp.Compile(params["pattern"])
		if err != nil {
			return failure(models.ActionSetVariable, fmt.Errorf("pattern: %w", err))
		}
		m := re.FindStringSubmatch(input)
		switch {
		case m == nil:
			value = ""
		case len(m) > 1:
			value = m[1]
		default:
			value = m[0]
		}
	case "regex_replace":
		re, err := regexp.Compile(params["pattern"])
		if err != nil {
			return failure(models.ActionSetVariable, fmt.Errorf("pattern: %w", err))
		}
		value = re.ReplaceAllString(input, params["replacement"])
	default:
		return failure(models.ActionSetVariable, fmt.Errorf("unknown mode %q", params["mode"]))
	}

	sc.vars[name] = value
	return models.ActionResult{
		Success: true, ActionType: models.ActionSetVariable,
		Description: fmt.Sprintf("set %s=%q", name, value),
		Details:     map[string]string{name: value},
	}
}

// allocateNumber interprets a channel_number param: "auto" or empty picks
// the lowest unused starting at the rule's starting number, "N-M" picks
// the lowest unused in range, an integer is taken as-is.
func (x *Executor) allocateNumber(spec string, startingNumber int) (int, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "" || spec == "auto":
		return x.idx.nextNumber(startingNumber), nil
	case strings.Contains(spec, "-"):
		parts := strings.SplitN(spec, "-", 2)
		lo, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		hi, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil || lo > hi {
			return 0, fmt.Errorf("invalid channel number range %q", spec)
		}
		n := x.idx.nextNumberInRange(lo, hi)
		if n == 0 {
			return 0, fmt.Errorf("channel number range %q exhausted", spec)
		}
		return n, nil
	default:
		n, err := strconv.Atoi(spec)
		if err != nil {
			return 0, fmt.Errorf("invalid channel number %q", spec)
		}
		x.idx.usedNumbers[n] = true
		return n, nil
	}
}

// targetGroupID resolves the group for a new channel: an explicit group
// param wins, then the rule's target group.
func (x *Executor) targetGroupID(ctx context.Context, sc *streamContext, params map[string]string) *int {
	if name := params["group"]; name != "" {
		name = sc.expand(name, x.norm)
		if g := x.idx.groupsByName[strings.ToLower(name)]; g != nil {
			return &g.ID
		}
		var group *models.Group
		if x.dryRun {
			group = &models.Group{ID: simulatedID, Name: name}
		} else {
			g, err := x.client.CreateChannelGroup(ctx, name)
			if err != nil {
				logging.Err(err).Str("group", name).Msg("Failed to create target group")
				return nil
			}
			group = g
		}
		x.idx.addGroup(group)
		x.createdEntities = append(x.createdEntities, models.EntityRef{
			EntityType: "group", EntityID: group.ID, EntityName: group.Name, RuleID: sc.rule.ID,
		})
		return &group.ID
	}
	return sc.rule.TargetGroupID
}

// recordModified stores the first previous_state seen for an entity this
// run; later mutations of the same entity keep the earliest snapshot so
// rollback restores the true pre-run state.
func (x *Executor) recordModified(c *models.Channel, ruleID int, previous []byte) {
	if c.ID == simulatedID {
		return
	}
	for _, ref := range x.createdEntities {
		if ref.EntityType == "channel" && ref.EntityID == c.ID {
			return // created this run; rollback deletes it instead
		}
	}
	for _, ref := range x.modifiedEntities {
		if ref.EntityType == "channel" && ref.EntityID == c.ID {
			return
		}
	}
	x.modifiedEntities = append(x.modifiedEntities, models.EntityRef{
		EntityType: "channel", EntityID: c.ID, EntityName: c.Name,
		RuleID: ruleID, PreviousState: previous,
	})
}

func (x *Executor) touch(ruleID, channelID int) {
	for _, id := range x.touchedChannels[ruleID] {
		if id == channelID {
			return
		}
	}
	x.touchedChannels[ruleID] = append(x.touchedChannels[ruleID], channelID)
}

// providerCount lazily seeds the per-provider stream count of a channel
// from its current stream list.
func (x *Executor) providerCount(c *models.Channel, providerID int) int {
	caps, ok := x.channelCaps[c.ID]
	if !ok {
		caps = make(map[int]int)
		for _, streamID := range c.Streams {
			if s := x.streamIndex[streamID]; s != nil {
				caps[s.ProviderID]++
			}
		}
		x.channelCaps[c.ID] = caps
	}
	return caps[providerID]
}

func (x *Executor) seedCap(c *models.Channel, s *models.Stream) {
	x.channelCaps[c.ID] = map[int]int{s.ProviderID: 1}
}

func (x *Executor) bumpCap(channelID, providerID int) {
	if caps, ok := x.channelCaps[channelID]; ok {
		caps[providerID]++
	}
}

func paramInt(params map[string]string, key string, def int) int {
	v, ok := params[key]
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
