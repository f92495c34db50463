// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package prober

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/upstream/upstreamtest"
)

func twoProfileProvider() models.Provider {
	return models.Provider{
		ID:   1,
		Name: "provider-a",
		Profiles: []models.ProviderProfile{
			{ID: 11, Name: "p1", IsActive: true, MaxStreams: 2},
			{ID: 12, Name: "p2", IsActive: true, MaxStreams: 3},
		},
	}
}

func TestReserveFillFirst(t *testing.T) {
	s := newProfileSelector(upstreamtest.New(), "fill_first")
	prov := twoProfileProvider()
	url := "http://host/live/1"

	want := []int{11, 11, 12, 12, 12}
	for i, w := range want {
		id, _, ok := s.reserve(prov, url)
		if !ok {
			t.Fatalf("reserve %d refused", i+1)
		}
		if id != w {
			t.Errorf("reserve %d picked profile %d, want %d", i+1, id, w)
		}
	}
	if _, _, ok := s.reserve(prov, url); ok {
		t.Error("reserve succeeded with every profile at capacity")
	}
}

func TestReserveRoundRobin(t *testing.T) {
	s := newProfileSelector(upstreamtest.New(), "round_robin")
	prov := twoProfileProvider()
	url := "http://host/live/1"

	// Starts after index 0, so the first pick is p2, then alternates.
	want := []int{12, 11, 12, 11}
	for i, w := range want {
		id, _, ok := s.reserve(prov, url)
		if !ok {
			t.Fatalf("reserve %d refused", i+1)
		}
		if id != w {
			t.Errorf("reserve %d picked profile %d, want %d", i+1, id, w)
		}
	}
}

func TestReserveLeastLoaded(t *testing.T) {
	s := newProfileSelector(upstreamtest.New(), "least_loaded")
	prov := twoProfileProvider()
	url := "http://host/live/1"

	// p2 has the larger headroom (3 vs 2).
	id, _, ok := s.reserve(prov, url)
	if !ok || id != 12 {
		t.Fatalf("first pick = %d ok=%v, want profile 12", id, ok)
	}

	// Unlimited profile wins immediately.
	prov.Profiles = append(prov.Profiles, models.ProviderProfile{ID: 13, Name: "p3", IsActive: true, MaxStreams: 0})
	id, _, ok = s.reserve(prov, url)
	if !ok || id != 13 {
		t.Errorf("pick with unlimited present = %d ok=%v, want profile 13", id, ok)
	}
}

func TestReserveCountsUpstreamActive(t *testing.T) {
	fake := upstreamtest.New()
	pid := 11
	fake.StatsQueue = []*models.StatsSnapshot{{Channels: []models.ChannelStats{
		{ChannelID: "c1", ClientCount: 2, M3UProfileID: &pid},
	}}}
	s := newProfileSelector(fake, "fill_first")
	s.refreshActive(context.Background(), time.Now())

	prov := twoProfileProvider()
	url := "http://host/live/1"

	// p1's two slots are occupied upstream, so p2 is picked directly.
	id, _, ok := s.reserve(prov, url)
	if !ok || id != 12 {
		t.Errorf("pick = %d ok=%v, want profile 12", id, ok)
	}
}

func TestReserveHDHomeRunCap(t *testing.T) {
	s := newProfileSelector(upstreamtest.New(), "fill_first")
	prov := models.Provider{ID: 1, Name: "hdhr", Profiles: []models.ProviderProfile{
		{ID: 21, Name: "tuner", IsActive: true, MaxStreams: 10},
	}}
	url := "http://192.168.1.5:5004/auto/v2"

	for i := 0; i < hdHomeRunCap; i++ {
		if _, _, ok := s.reserve(prov, url); !ok {
			t.Fatalf("reserve %d refused", i+1)
		}
	}
	if _, _, ok := s.reserve(prov, url); ok {
		t.Error("third concurrent probe allowed on HDHomeRun endpoint")
	}
}

func TestReserveNoProfiles(t *testing.T) {
	s := newProfileSelector(upstreamtest.New(), "fill_first")
	prov := models.Provider{ID: 1, Name: "plain"}
	id, url, ok := s.reserve(prov, "http://host/live/1")
	if !ok || id != 0 || url != "http://host/live/1" {
		t.Errorf("got (%d, %q, %v), want raw URL with zero profile", id, url, ok)
	}
}

func TestReserveSkipsInactive(t *testing.T) {
	s := newProfileSelector(upstreamtest.New(), "fill_first")
	prov := models.Provider{ID: 1, Name: "provider-a", Profiles: []models.ProviderProfile{
		{ID: 11, Name: "off", IsActive: false, MaxStreams: 5},
		{ID: 12, Name: "on", IsActive: true, MaxStreams: 5},
	}}
	id, _, ok := s.reserve(prov, "http://host/live/1")
	if !ok || id != 12 {
		t.Errorf("pick = %d ok=%v, want active profile 12", id, ok)
	}
}

func TestRewriteURL(t *testing.T) {
	p := models.ProviderProfile{SearchPattern: `/live/`, ReplacePattern: `/timeshift/`}
	got := rewriteURL(p, "http://host/live/123.ts")
	if got != "http://host/timeshift/123.ts" {
		t.Errorf("rewriteURL = %q", got)
	}

	// Bad pattern leaves URL untouched.
	p = models.ProviderProfile{SearchPattern: `[`, ReplacePattern: `x`}
	if got := rewriteURL(p, "http://host/live/123.ts"); got != "http://host/live/123.ts" {
		t.Errorf("bad pattern rewrote URL to %q", got)
	}
}

func TestIsHDHomeRun(t *testing.T) {
	if !isHDHomeRun("http://10.0.0.2:5004/auto/v3") {
		t.Error(":5004/ URL not detected")
	}
	if !isHDHomeRun("http://HDHomeRun.local/stream") {
		t.Error("hdhomerun host not detected")
	}
	if isHDHomeRun("http://provider.example/live/1.ts") {
		t.Error("plain URL misdetected")
	}
}
