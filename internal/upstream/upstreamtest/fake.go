// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package upstreamtest provides an in-memory fake upstream for tests.
//
// The fake implements upstream.Client with real entity state: channels and
// groups get sequential IDs, deletes are idempotent via ErrNotFound, and
// every call is counted so tests can assert zero-mutation idempotence.
package upstreamtest

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/upstream"
)

// Fake is an in-memory upstream backend.
type Fake struct {
	mu sync.Mutex

	Channels  map[int]*models.Channel
	Groups    map[int]*models.Group
	Streams   []models.Stream
	Providers []models.Provider
	Logos     map[int]*models.Logo
	Sources   []models.EpgSource
	EpgData   map[int][]models.EpgData

	// StatsQueue is drained one snapshot per GetChannelStats call; the
	// last element repeats once the queue is exhausted.
	StatsQueue []*models.StatsSnapshot

	// Calls counts invocations by operation name.
	Calls map[string]int

	// Errs forces an error for the named operation.
	Errs map[string]error

	nextChannelID int
	nextGroupID   int
	nextLogoID    int
}

var _ upstream.Client = (*Fake)(nil)

// New creates an empty fake upstream.
func New() *Fake {
	return &Fake{
		Channels:      make(map[int]*models.Channel),
		Groups:        make(map[int]*models.Group),
		Logos:         make(map[int]*models.Logo),
		EpgData:       make(map[int][]models.EpgData),
		Calls:         make(map[string]int),
		Errs:          make(map[string]error),
		nextChannelID: 1000,
		nextGroupID:   100,
		nextLogoID:    1,
	}
}

func (f *Fake) record(op string) error {
	f.Calls[op]++
	return f.Errs[op]
}

// CallCount returns how many times op was invoked.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

// MutationCount sums all mutating calls.
func (f *Fake) MutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, op := range []string{
		"create_channel", "update_channel", "delete_channel", "assign_channel_numbers",
		"create_channel_group", "update_channel_group", "delete_channel_group",
		"create_logo", "upload_logo_file",
	} {
		total += f.Calls[op]
	}
	return total
}

// ChannelIDs returns the sorted IDs of all channels.
func (f *Fake) ChannelIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int, 0, len(f.Channels))
	for id := range f.Channels {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// AddChannel seeds a channel with an explicit ID.
func (f *Fake) AddChannel(ch models.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := ch
	f.Channels[ch.ID] = &c
	if ch.ID >= f.nextChannelID {
		f.nextChannelID = ch.ID + 1
	}
}

// AddGroup seeds a group with an explicit ID.
func (f *Fake) AddGroup(g models.Group) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gc := g
	f.Groups[g.ID] = &gc
	if g.ID >= f.nextGroupID {
		f.nextGroupID = g.ID + 1
	}
}

func (f *Fake) ListChannels(_ context.Context, page, pageSize int, _, _ string) (*upstream.ChannelPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list_channels"); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(f.Channels))
	for id := range f.Channels {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(ids) {
		start = len(ids)
	}
	if end > len(ids) {
		end = len(ids)
	}
	out := &upstream.ChannelPage{Count: len(ids)}
	for _, id := range ids[start:end] {
		out.Results = append(out.Results, *f.Channels[id])
	}
	if end < len(ids) {
		out.Next = "next"
	}
	return out, nil
}

func (f *Fake) GetChannel(_ context.Context, id int) (*models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get_channel"); err != nil {
		return nil, err
	}
	ch, ok := f.Channels[id]
	if !ok {
		return nil, upstream.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (f *Fake) CreateChannel(_ context.Context, data map[string]any) (*models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create_channel"); err != nil {
		return nil, err
	}
	ch := &models.Channel{ID: f.nextChannelID}
	f.nextChannelID++
	applyChannelData(ch, data)
	f.Channels[ch.ID] = ch
	cp := *ch
	return &cp, nil
}

func (f *Fake) UpdateChannel(_ context.Context, id int, data map[string]any) (*models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update_channel"); err != nil {
		return nil, err
	}
	ch, ok := f.Channels[id]
	if !ok {
		return nil, upstream.ErrNotFound
	}
	applyChannelData(ch, data)
	cp := *ch
	return &cp, nil
}

// asInt accepts both native ints and the float64 form produced by a JSON
// round trip, mirroring how the real server reads request bodies.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asIntSlice(v any) ([]int, bool) {
	switch s := v.(type) {
	case []int:
		return append([]int(nil), s...), true
	case []any:
		out := make([]int, 0, len(s))
		for _, e := range s {
			n, ok := asInt(e)
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	}
	return nil, false
}

func applyChannelData(ch *models.Channel, data map[string]any) {
	if v, ok := data["name"].(string); ok {
		ch.Name = v
	}
	if v, ok := data["channel_number"].(float64); ok {
		ch.ChannelNumber = v
	}
	if v, ok := data["channel_group_id"]; ok {
		if v == nil {
			ch.GroupID = nil
		} else if g, ok := asInt(v); ok {
			ch.GroupID = &g
		}
	}
	if v, ok := data["tvg_id"].(string); ok {
		ch.TvgID = v
	}
	if v, ok := data["logo_id"]; ok {
		if v == nil {
			ch.LogoID = nil
		} else if lid, ok := asInt(v); ok {
			ch.LogoID = &lid
		}
	}
	if v, ok := asInt(data["epg_data_id"]); ok {
		eid := v
		ch.EpgDataID = &eid
	}
	if v, ok := asIntSlice(data["streams"]); ok {
		ch.Streams = v
	}
	if v, ok := data["auto_created"].(bool); ok {
		ch.AutoCreated = v
	}
	if v, ok := asInt(data["auto_created_by"]); ok {
		rid := v
		ch.AutoCreatedBy = &rid
	}
}

func (f *Fake) DeleteChannel(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete_channel"); err != nil {
		return err
	}
	if _, ok := f.Channels[id]; !ok {
		return upstream.ErrNotFound
	}
	delete(f.Channels, id)
	return nil
}

func (f *Fake) AssignChannelNumbers(_ context.Context, ids []int, starting float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("assign_channel_numbers"); err != nil {
		return err
	}
	n := starting
	for _, id := range ids {
		if ch, ok := f.Channels[id]; ok {
			ch.ChannelNumber = n
		}
		n++
	}
	return nil
}

func (f *Fake) ListChannelGroups(_ context.Context) ([]models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list_channel_groups"); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(f.Groups))
	for id := range f.Groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]models.Group, 0, len(ids))
	for _, id := range ids {
		out = append(out, *f.Groups[id])
	}
	return out, nil
}

func (f *Fake) CreateChannelGroup(_ context.Context, name string) (*models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create_channel_group"); err != nil {
		return nil, err
	}
	g := &models.Group{ID: f.nextGroupID, Name: name}
	f.nextGroupID++
	f.Groups[g.ID] = g
	cp := *g
	return &cp, nil
}

func (f *Fake) UpdateChannelGroup(_ context.Context, id int, data map[string]any) (*models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update_channel_group"); err != nil {
		return nil, err
	}
	g, ok := f.Groups[id]
	if !ok {
		return nil, upstream.ErrNotFound
	}
	if v, ok := data["name"].(string); ok {
		g.Name = v
	}
	cp := *g
	return &cp, nil
}

func (f *Fake) DeleteChannelGroup(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete_channel_group"); err != nil {
		return err
	}
	if _, ok := f.Groups[id]; !ok {
		return upstream.ErrNotFound
	}
	delete(f.Groups, id)
	return nil
}

func (f *Fake) ListStreams(_ context.Context, page, pageSize, providerID int) (*upstream.StreamPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list_streams"); err != nil {
		return nil, err
	}
	var filtered []models.Stream
	for _, s := range f.Streams {
		if providerID == 0 || s.ProviderID == providerID {
			filtered = append(filtered, s)
		}
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}
	out := &upstream.StreamPage{Count: len(filtered), Results: filtered[start:end]}
	if end < len(filtered) {
		out.Next = "next"
	}
	return out, nil
}

func (f *Fake) ListProviders(_ context.Context) ([]models.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list_providers"); err != nil {
		return nil, err
	}
	return append([]models.Provider(nil), f.Providers...), nil
}

func (f *Fake) GetProvider(_ context.Context, id int) (*models.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get_provider"); err != nil {
		return nil, err
	}
	for i := range f.Providers {
		if f.Providers[i].ID == id {
			cp := f.Providers[i]
			return &cp, nil
		}
	}
	return nil, upstream.ErrNotFound
}

func (f *Fake) RefreshProvider(_ context.Context, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("refresh_provider")
}

func (f *Fake) RefreshAllProviders(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("refresh_all_providers")
}

func (f *Fake) CreateLogo(_ context.Context, name, url string) (*models.Logo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create_logo"); err != nil {
		return nil, err
	}
	for _, l := range f.Logos {
		if l.URL == url {
			// Upstream rejects duplicate URLs with a 400.
			return nil, &upstream.StatusError{Operation: "create_logo", Code: 400, Body: "logo with this url already exists"}
		}
	}
	l := &models.Logo{ID: f.nextLogoID, Name: name, URL: url}
	f.nextLogoID++
	f.Logos[l.ID] = l
	cp := *l
	return &cp, nil
}

func (f *Fake) FindLogoByURL(_ context.Context, url string) (*models.Logo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("find_logo_by_url"); err != nil {
		return nil, err
	}
	for _, l := range f.Logos {
		if l.URL == url {
			cp := *l
			return &cp, nil
		}
	}
	return nil, upstream.ErrNotFound
}

func (f *Fake) UploadLogoFile(_ context.Context, name, _ string, _ []byte, _ string) (*models.Logo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("upload_logo_file"); err != nil {
		return nil, err
	}
	l := &models.Logo{ID: f.nextLogoID, Name: name}
	f.nextLogoID++
	f.Logos[l.ID] = l
	cp := *l
	return &cp, nil
}

func (f *Fake) ListEpgSources(_ context.Context) ([]models.EpgSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list_epg_sources"); err != nil {
		return nil, err
	}
	return append([]models.EpgSource(nil), f.Sources...), nil
}

func (f *Fake) GetEpgData(_ context.Context, sourceID int) ([]models.EpgData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get_epg_data"); err != nil {
		return nil, err
	}
	return append([]models.EpgData(nil), f.EpgData[sourceID]...), nil
}

func (f *Fake) RefreshEpgSource(_ context.Context, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("refresh_epg_source")
}

func (f *Fake) GetChannelStats(_ context.Context) (*models.StatsSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get_channel_stats"); err != nil {
		return nil, err
	}
	if len(f.StatsQueue) == 0 {
		return &models.StatsSnapshot{}, nil
	}
	snap := f.StatsQueue[0]
	if len(f.StatsQueue) > 1 {
		f.StatsQueue = f.StatsQueue[1:]
	}
	return snap, nil
}
