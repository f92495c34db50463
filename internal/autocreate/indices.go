// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package autocreate

import (
	"math"
	"strings"

	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/rules"
)

// channelIndex holds the lookup maps the executor matches incoming streams
// against. It is built once per pipeline run from the channel snapshot and
// updated in place as channels are created, so later streams in the same
// run see earlier creations (real or simulated).
type channelIndex struct {
	byID         map[int]*models.Channel
	byName       map[string]*models.Channel // lowercased full name
	byBase       map[string]*models.Channel // "NUMBER | " prefix stripped
	byNormalized map[string]*models.Channel
	byCore       map[string]*models.Channel // deparenthesized, tag-stripped
	byCallSign   map[string]*models.Channel
	byTvgID      map[string]*models.Channel

	groupsByID   map[int]*models.Group
	groupsByName map[string]*models.Group

	usedNumbers map[int]bool
	norm        *rules.Normalizer
}

func newChannelIndex(channels []models.Channel, groups []models.Group, norm *rules.Normalizer) *channelIndex {
	idx := &channelIndex{
		byID:         make(map[int]*models.Channel, len(channels)),
		byName:       make(map[string]*models.Channel, len(channels)),
		byBase:       make(map[string]*models.Channel, len(channels)),
		byNormalized: make(map[string]*models.Channel, len(channels)),
		byCore:       make(map[string]*models.Channel, len(channels)),
		byCallSign:   make(map[string]*models.Channel),
		byTvgID:      make(map[string]*models.Channel),
		groupsByID:   make(map[int]*models.Group, len(groups)),
		groupsByName: make(map[string]*models.Group, len(groups)),
		usedNumbers:  make(map[int]bool, len(channels)),
		norm:         norm,
	}
	for i := range channels {
		idx.add(&channels[i])
	}
	for i := range groups {
		g := &groups[i]
		idx.groupsByID[g.ID] = g
		idx.groupsByName[strings.ToLower(g.Name)] = g
	}
	return idx
}

// add indexes one channel under every lookup key. First writer wins on key
// collisions so matching stays deterministic across runs.
func (idx *channelIndex) add(c *models.Channel) {
	if c.ID != 0 {
		idx.byID[c.ID] = c
	}
	put := func(m map[string]*models.Channel, key string) {
		if key == "" {
			return
		}
		if _, ok := m[key]; !ok {
			m[key] = c
		}
	}
	put(idx.byName, strings.ToLower(c.Name))
	put(idx.byBase, strings.ToLower(rules.BaseName(c.Name)))
	put(idx.byNormalized, idx.norm.Normalize(c.Name))
	put(idx.byCore, idx.norm.CoreName(c.Name))
	put(idx.byCallSign, rules.CallSign(c.Name))
	put(idx.byTvgID, strings.ToLower(c.TvgID))
	if n := int(c.ChannelNumber); n > 0 && c.ChannelNumber == math.Trunc(c.ChannelNumber) {
		idx.usedNumbers[n] = true
	}
}

func (idx *channelIndex) addGroup(g *models.Group) {
	idx.groupsByID[g.ID] = g
	idx.groupsByName[strings.ToLower(g.Name)] = g
}

func (idx *channelIndex) removeGroup(id int) {
	if g, ok := idx.groupsByID[id]; ok {
		delete(idx.groupsByName, strings.ToLower(g.Name))
		delete(idx.groupsByID, id)
	}
}

// findByName walks the lookup cascade from strictest to loosest: exact
// name, base name, normalized, then core. Call-sign matching is looser
// than deparenthesized and word-prefix matching, so the merge cascade
// applies it last via findByCallSign rather than here.
func (idx *channelIndex) findByName(name string) *models.Channel {
	if c := idx.byName[strings.ToLower(name)]; c != nil {
		return c
	}
	if c := idx.byBase[strings.ToLower(rules.BaseName(name))]; c != nil {
		return c
	}
	if key := idx.norm.Normalize(name); key != "" {
		if c := idx.byNormalized[key]; c != nil {
			return c
		}
	}
	if key := idx.norm.CoreName(name); key != "" {
		if c := idx.byCore[key]; c != nil {
			return c
		}
	}
	return nil
}

func (idx *channelIndex) findByCallSign(name string) *models.Channel {
	if cs := rules.CallSign(name); cs != "" {
		return idx.byCallSign[cs]
	}
	return nil
}

// findByWordPrefix matches when exactly one channel's normalized name
// starts with the stream's normalized name (or vice versa) on a word
// boundary. Ambiguity disables the match.
func (idx *channelIndex) findByWordPrefix(name string) *models.Channel {
	key := idx.norm.Normalize(name)
	if key == "" {
		return nil
	}
	var found *models.Channel
	for candidate, c := range idx.byNormalized {
		if candidate == key {
			continue
		}
		if strings.HasPrefix(candidate, key+" ") || strings.HasPrefix(key, candidate+" ") {
			if found != nil && found != c {
				return nil
			}
			found = c
		}
	}
	return found
}

// nextNumber returns the lowest unused integer channel number >= from and
// marks it used. from values below 1 start at 1.
func (idx *channelIndex) nextNumber(from int) int {
	if from < 1 {
		from = 1
	}
	for n := from; ; n++ {
		if !idx.usedNumbers[n] {
			idx.usedNumbers[n] = true
			return n
		}
	}
}

// nextNumberInRange returns the lowest unused number in [lo, hi], or 0
// when the range is exhausted.
func (idx *channelIndex) nextNumberInRange(lo, hi int) int {
	if lo < 1 {
		lo = 1
	}
	for n := lo; n <= hi; n++ {
		if !idx.usedNumbers[n] {
			idx.usedNumbers[n] = true
			return n
		}
	}
	return 0
}
