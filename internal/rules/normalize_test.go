// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package rules

import (
	"testing"

	"github.com/tomtom215/streamweaver/internal/models"
)

func TestBaseName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"101 | BBC One", "BBC One"},
		{"4.1 | ABC 7", "ABC 7"},
		{"BBC One", "BBC One"},
		{"  12 |ESPN", "ESPN"},
	}
	for _, tt := range tests {
		if got := BaseName(tt.in); got != tt.want {
			t.Errorf("BaseName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripQuality(t *testing.T) {
	tests := []struct {
		in       string
		stripped string
		quality  string
		raw      string
	}{
		{"BBC One FHD", "BBC One", "1080p", "FHD"},
		{"BBC One HD", "BBC One", "720p", "HD"},
		{"ESPN 1080p", "ESPN", "1080p", "1080p"},
		{"Discovery [4K]", "Discovery", "2160p", "4K"},
		{"Sky Sports - UHD", "Sky Sports", "2160p", "UHD"},
		{"BBC One", "BBC One", "", ""},
		{"HD Movies", "HD Movies", "", ""}, // leading token is part of the name
	}
	for _, tt := range tests {
		stripped, quality, raw := StripQuality(tt.in)
		if stripped != tt.stripped || quality != tt.quality || raw != tt.raw {
			t.Errorf("StripQuality(%q) = (%q, %q, %q), want (%q, %q, %q)",
				tt.in, stripped, quality, raw, tt.stripped, tt.quality, tt.raw)
		}
	}
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer(nil, nil)
	tests := []struct {
		in, want string
	}{
		{"UK: BBC One FHD", "bbc one"},
		{"101 | US| ESPN HD", "espn"},
		{"Sky Sports  F1", "sky sports f1"},
		{"TNT-Sports.1", "tnt sports 1"},
	}
	for _, tt := range tests {
		if got := n.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeCustomRules(t *testing.T) {
	n := NewNormalizer(nil, []models.NormalizationRule{
		{Pattern: "VIP ", Replacement: "", Enabled: true},
		{Pattern: `(?i)\bbackup\b`, Replacement: "", IsRegex: true, Enabled: true},
		{Pattern: "NEVER", Replacement: "applied", Enabled: false},
	})
	got := n.Normalize("VIP BBC One Backup HD")
	if got != "bbc one" {
		t.Errorf("Normalize = %q, want %q", got, "bbc one")
	}
}

func TestCallSign(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ABC 7 New York (WABC-TV)", "WABC"},
		{"CBS 2 (KCBS)", "KCBS"},
		{"NBC 4 Los Angeles KNBC", "KNBC"},
		{"BBC One (East)", ""},
		{"Sky Sports F1", ""},
		{"(TOOLONGCALL)", ""},
	}
	for _, tt := range tests {
		if got := CallSign(tt.in); got != tt.want {
			t.Errorf("CallSign(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCoreName(t *testing.T) {
	registry := NewRegistry([]models.TagGroup{
		{Name: "networks", Tags: []string{"abc", "nbc"}},
	})
	n := NewNormalizer(registry, nil)
	tests := []struct {
		in, want string
	}{
		{"ABC 7 New York (WABC-TV)", "7 new york"},
		{"NBC Nightly (East) HD", "nightly"},
		{"Discovery Channel", "discovery channel"},
	}
	for _, tt := range tests {
		if got := n.CoreName(tt.in); got != tt.want {
			t.Errorf("CoreName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
