// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package prober

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/streamweaver/internal/logging"
	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/upstream"
)

// activeCacheTTL bounds how stale the upstream connection map may be when
// checking profile capacity.
const activeCacheTTL = 5 * time.Second

// hdHomeRunCap limits concurrent probes against HDHomeRun-style endpoints
// regardless of the profile's max_streams, to avoid tuner lock contention.
const hdHomeRunCap = 2

// isHDHomeRun detects HDHomeRun-style stream URLs.
func isHDHomeRun(url string) bool {
	lower := strings.ToLower(url)
	return strings.Contains(lower, ":5004/") || strings.Contains(lower, "hdhomerun")
}

// profileSelector picks a stream profile for each probe, combining the
// upstream's live connection counts with our own in-flight reservations so
// a profile is never oversubscribed.
type profileSelector struct {
	client   upstream.Client
	strategy string

	mu        sync.Mutex
	reserved  map[int]int // profile id -> in-flight probes through it
	lastIndex map[int]int // provider id -> last profile index (round_robin)
	active    map[int]int // profile id -> upstream client count
	activeAt  time.Time
}

func newProfileSelector(client upstream.Client, strategy string) *profileSelector {
	return &profileSelector{
		client:    client,
		strategy:  strategy,
		reserved:  make(map[int]int),
		lastIndex: make(map[int]int),
	}
}

// refreshActive reloads the upstream connection map when the cache is
// stale. Errors leave the previous map in place; capacity checks then rely
// on reservations alone.
func (s *profileSelector) refreshActive(ctx context.Context, now time.Time) {
	s.mu.Lock()
	stale := now.Sub(s.activeAt) >= activeCacheTTL
	s.mu.Unlock()
	if !stale {
		return
	}
	snap, err := s.client.GetChannelStats(ctx)
	if err != nil {
		logging.Err(err).Msg("Stats refresh failed, using reservations only")
		return
	}
	active := make(map[int]int)
	for _, ch := range snap.Channels {
		if ch.M3UProfileID != nil {
			active[*ch.M3UProfileID] += ch.ClientCount
		}
	}
	s.mu.Lock()
	s.active = active
	s.activeAt = now
	s.mu.Unlock()
}

// capacityFor returns the effective concurrent-probe cap of a profile for a
// given stream URL. Zero max_streams means unlimited, reported as -1.
func capacityFor(p models.ProviderProfile, url string) int {
	if isHDHomeRun(url) {
		return hdHomeRunCap
	}
	if p.MaxStreams <= 0 {
		return -1
	}
	return p.MaxStreams
}

// load is the combined live plus reserved count of one profile. Callers
// hold s.mu.
func (s *profileSelector) load(profileID int) int {
	return s.active[profileID] + s.reserved[profileID]
}

// hasRoom reports whether one more probe fits on the profile. Callers hold
// s.mu.
func (s *profileSelector) hasRoom(p models.ProviderProfile, url string) bool {
	c := capacityFor(p, url)
	return c < 0 || s.load(p.ID) < c
}

// reserve picks a profile for the provider by the configured strategy and
// reserves one slot on it. The returned URL has the profile's rewrite
// applied. Providers without profiles probe the raw URL; reserve then
// returns ok with a zero profile ID. ok is false when every profile is at
// capacity.
func (s *profileSelector) reserve(provider models.Provider, url string) (profileID int, probeURL string, ok bool) {
	var candidates []models.ProviderProfile
	for _, p := range provider.Profiles {
		if p.IsActive {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return 0, url, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pick := -1
	switch s.strategy {
	case "round_robin":
		start := (s.lastIndex[provider.ID] + 1) % len(candidates)
		for i := 0; i < len(candidates); i++ {
			idx := (start + i) % len(candidates)
			if s.hasRoom(candidates[idx], url) {
				pick = idx
				break
			}
		}
		if pick >= 0 {
			s.lastIndex[provider.ID] = pick
		}
	case "least_loaded":
		best := -1
		for i, p := range candidates {
			if !s.hasRoom(p, url) {
				continue
			}
			c := capacityFor(p, url)
			if c < 0 {
				// Unlimited wins immediately.
				pick = i
				break
			}
			if headroom := c - s.load(p.ID); headroom > best {
				best = headroom
				pick = i
			}
		}
	default: // fill_first
		for i, p := range candidates {
			if s.hasRoom(p, url) {
				pick = i
				break
			}
		}
	}
	if pick < 0 {
		return 0, "", false
	}

	chosen := candidates[pick]
	s.reserved[chosen.ID]++
	return chosen.ID, rewriteURL(chosen, url), true
}

// release frees a reservation taken by reserve.
func (s *profileSelector) release(profileID int) {
	if profileID == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserved[profileID] > 0 {
		s.reserved[profileID]--
	}
}

// rewriteURL applies the profile's search/replace pattern to a stream URL.
// A bad pattern leaves the URL untouched.
func rewriteURL(p models.ProviderProfile, url string) string {
	if p.SearchPattern == "" {
		return url
	}
	re, err := regexp.Compile(p.SearchPattern)
	if err != nil {
		logging.Err(err).Str("pattern", p.SearchPattern).Msg("Invalid profile search pattern")
		return url
	}
	return re.ReplaceAllString(url, p.ReplacePattern)
}
