// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package rules

import (
	"sort"
	"strings"

	"github.com/tomtom215/streamweaver/internal/models"
)

// Registry is an immutable snapshot of the tag groups loaded at the start
// of a pipeline run. Lookups are case-insensitive on the group name.
type Registry struct {
	groups map[string][]string
}

// NewRegistry builds a registry from stored tag groups.
func NewRegistry(groups []models.TagGroup) *Registry {
	r := &Registry{groups: make(map[string][]string, len(groups))}
	for _, g := range groups {
		r.groups[strings.ToLower(g.Name)] = g.Tags
	}
	return r
}

// Lookup returns the tags of a group, or nil when the group is unknown.
func (r *Registry) Lookup(name string) []string {
	if r == nil {
		return nil
	}
	return r.groups[strings.ToLower(name)]
}

// AllTags returns every tag across all groups, longest first so greedy
// name stripping removes "sky sports main event" before "sky sports".
func (r *Registry) AllTags() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, tags := range r.groups {
		out = append(out, tags...)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}
