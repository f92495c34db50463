// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package prober

import (
	"reflect"
	"testing"

	"github.com/tomtom215/streamweaver/internal/models"
)

func TestSortStreamIDs(t *testing.T) {
	ranks := map[int]streamRank{
		1: {stats: &models.StreamStats{ProbeStatus: models.ProbeSuccess, ResolutionHeight: 720, Bitrate: 4000}},
		2: {stats: &models.StreamStats{ProbeStatus: models.ProbeSuccess, ResolutionHeight: 1080, Bitrate: 3000}},
		3: {stats: &models.StreamStats{ProbeStatus: models.ProbeFailed, ResolutionHeight: 2160}},
		4: {stats: &models.StreamStats{ProbeStatus: models.ProbeSuccess, ResolutionHeight: 1080, Bitrate: 6000}},
	}

	tests := []struct {
		name      string
		ids       []int
		keys      []string
		depFailed bool
		want      []int
	}{
		{
			name: "resolution then bitrate, failed last",
			ids:  []int{1, 2, 3, 4}, keys: []string{"resolution", "bitrate"}, depFailed: true,
			want: []int{4, 2, 1, 3},
		},
		{
			name: "failed kept in place without deprioritization",
			ids:  []int{1, 2, 3, 4}, keys: []string{"resolution", "bitrate"},
			want: []int{3, 4, 2, 1},
		},
		{
			name: "bitrate only",
			ids:  []int{1, 2, 3, 4}, keys: []string{"bitrate"}, depFailed: true,
			want: []int{4, 1, 2, 3},
		},
		{
			name: "equal keys keep original order",
			ids:  []int{2, 4}, keys: []string{"resolution"},
			want: []int{2, 4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sortStreamIDs(tt.ids, ranks, tt.keys, tt.depFailed)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortStreamIDsMissingStats(t *testing.T) {
	ranks := map[int]streamRank{
		1: {stats: &models.StreamStats{ProbeStatus: models.ProbeSuccess, ResolutionHeight: 480}},
	}
	got := sortStreamIDs([]int{9, 1}, ranks, []string{"resolution"}, true)
	if !reflect.DeepEqual(got, []int{1, 9}) {
		t.Errorf("unknown stream not sunk: %v", got)
	}
}

func TestSortStreamIDsM3UPriority(t *testing.T) {
	ranks := map[int]streamRank{
		1: {stats: &models.StreamStats{ProbeStatus: models.ProbeSuccess, ResolutionHeight: 1080}, m3uPriority: 1},
		2: {stats: &models.StreamStats{ProbeStatus: models.ProbeSuccess, ResolutionHeight: 1080}, m3uPriority: 5},
	}
	got := sortStreamIDs([]int{1, 2}, ranks, []string{"resolution", "m3u_priority"}, false)
	if !reflect.DeepEqual(got, []int{2, 1}) {
		t.Errorf("priority tiebreak failed: %v", got)
	}
}
