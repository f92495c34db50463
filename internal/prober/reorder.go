// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package prober

import (
	"context"
	"sort"

	"github.com/tomtom215/streamweaver/internal/logging"
	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/upstream"
)

// streamRank is the per-stream sort input assembled before reordering.
type streamRank struct {
	stats       *models.StreamStats
	m3uPriority int
}

// failed reports whether the stream should sink when failure
// deprioritization is on. Unknown streams count as pending.
func (r streamRank) failed() bool {
	if r.stats == nil {
		return true
	}
	switch r.stats.ProbeStatus {
	case models.ProbeSuccess:
		return false
	default:
		return true
	}
}

// keyValue extracts one comparator key. All keys sort descending.
func (r streamRank) keyValue(key string) float64 {
	if r.stats == nil {
		if key == "m3u_priority" {
			return float64(r.m3uPriority)
		}
		return 0
	}
	switch key {
	case "resolution":
		return float64(r.stats.ResolutionHeight)
	case "bitrate":
		return float64(r.stats.Bitrate)
	case "fps":
		return r.stats.FPS
	case "m3u_priority":
		return float64(r.m3uPriority)
	case "audio_channels":
		return float64(r.stats.AudioChannels)
	}
	return 0
}

// sortStreamIDs stably reorders stream ids by the configured keys, best
// first. Streams missing from ranks keep their relative order at the
// bottom of their failure class.
func sortStreamIDs(ids []int, ranks map[int]streamRank, keys []string, deprioritizeFailed bool) []int {
	out := append([]int(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := ranks[out[i]], ranks[out[j]]
		if deprioritizeFailed && a.failed() != b.failed() {
			return !a.failed()
		}
		for _, key := range keys {
			av, bv := a.keyValue(key), b.keyValue(key)
			if av != bv {
				return av > bv
			}
		}
		return false
	})
	return out
}

// reorderChannels re-sorts the stream order of every channel using the
// latest probe results. It returns the names of the channels whose order
// actually changed.
func (p *Prober) reorderChannels(ctx context.Context, stats map[int]*models.StreamStats, providerPriority map[int]int, streamProvider map[int]int) ([]string, error) {
	channels, err := upstream.AllChannels(ctx, p.client, p.cfg.Upstream.PageSize)
	if err != nil {
		return nil, err
	}

	ranks := make(map[int]streamRank, len(stats))
	for id, st := range stats {
		ranks[id] = streamRank{stats: st, m3uPriority: providerPriority[streamProvider[id]]}
	}

	keys := p.cfg.Probe.SortKeys
	if len(keys) == 0 {
		keys = []string{"resolution", "bitrate"}
	}

	var reordered []string
	for _, ch := range channels {
		if len(ch.Streams) < 2 {
			continue
		}
		detail, err := p.client.GetChannel(ctx, ch.ID)
		if err != nil {
			logging.Err(err).Int("channel_id", ch.ID).Msg("Reorder skipped channel")
			continue
		}
		sorted := sortStreamIDs(detail.Streams, ranks, keys, p.cfg.Probe.DeprioritizeFailed)
		if equalOrder(sorted, detail.Streams) {
			continue
		}
		if _, err := p.client.UpdateChannel(ctx, ch.ID, map[string]any{"streams": sorted}); err != nil {
			logging.Err(err).Int("channel_id", ch.ID).Msg("Reorder update failed")
			continue
		}
		reordered = append(reordered, detail.Name)
	}
	return reordered, nil
}

func equalOrder(a, b []int) bool {
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
