// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package rules

import (
	"testing"

	"github.com/tomtom215/streamweaver/internal/models"
)

func testEvaluator() *Evaluator {
	registry := NewRegistry([]models.TagGroup{
		{Name: "us-networks", Tags: []string{"abc", "nbc", "cbs", "wabc"}},
		{Name: "uk-sports", Tags: []string{"sky sports", "tnt sports"}},
	})
	return NewEvaluator(registry, NewNormalizer(registry, nil))
}

func TestEvaluateSingleConditions(t *testing.T) {
	e := testEvaluator()

	tests := []struct {
		name   string
		stream models.Stream
		cond   models.Condition
		want   bool
	}{
		{
			name:   "name_contains case insensitive",
			stream: models.Stream{Name: "BBC One FHD"},
			cond:   models.Condition{Type: models.CondNameContains, Value: "bbc one"},
			want:   true,
		},
		{
			name:   "name_contains miss",
			stream: models.Stream{Name: "BBC One FHD"},
			cond:   models.Condition{Type: models.CondNameContains, Value: "itv"},
			want:   false,
		},
		{
			name:   "name_regex",
			stream: models.Stream{Name: "UK: Sky Sports F1 HD"},
			cond:   models.Condition{Type: models.CondNameRegex, Value: `sky sports (f1|main event)`},
			want:   true,
		},
		{
			name:   "name_regex invalid pattern never matches",
			stream: models.Stream{Name: "anything"},
			cond:   models.Condition{Type: models.CondNameRegex, Value: `([`},
			want:   false,
		},
		{
			name:   "group_equals case insensitive",
			stream: models.Stream{Name: "x", GroupName: "UK | SPORTS"},
			cond:   models.Condition{Type: models.CondGroupEquals, Value: "uk | sports"},
			want:   true,
		},
		{
			name:   "tag_in plain containment",
			stream: models.Stream{Name: "Sky Sports Main Event UHD"},
			cond:   models.Condition{Type: models.CondTagIn, Value: "uk-sports"},
			want:   true,
		},
		{
			name:   "tag_in call sign",
			stream: models.Stream{Name: "Channel 7 New York (WABC-TV)"},
			cond:   models.Condition{Type: models.CondTagIn, Value: "us-networks"},
			want:   true,
		},
		{
			name:   "tag_in unknown group",
			stream: models.Stream{Name: "abc"},
			cond:   models.Condition{Type: models.CondTagIn, Value: "nonexistent"},
			want:   false,
		},
		{
			name:   "tvg_present",
			stream: models.Stream{Name: "x", TvgID: "bbc1.uk"},
			cond:   models.Condition{Type: models.CondTvgPresent},
			want:   true,
		},
		{
			name:   "tvg_present missing",
			stream: models.Stream{Name: "x"},
			cond:   models.Condition{Type: models.CondTvgPresent},
			want:   false,
		},
		{
			name:   "resolution_ge met",
			stream: models.Stream{Name: "x", ResolutionHeight: 1080},
			cond:   models.Condition{Type: models.CondResolutionGE, Value: "720p"},
			want:   true,
		},
		{
			name:   "resolution_ge unknown height never matches",
			stream: models.Stream{Name: "x"},
			cond:   models.Condition{Type: models.CondResolutionGE, Value: "720"},
			want:   false,
		},
		{
			name:   "always",
			stream: models.Stream{Name: ""},
			cond:   models.Condition{Type: models.CondAlways},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &models.Rule{Conditions: []models.Condition{tt.cond}}
			got := e.Evaluate(&tt.stream, rule)
			if got.Matched != tt.want {
				t.Errorf("Matched = %t, want %t (trace: %+v)", got.Matched, tt.want, got.ConditionsLog)
			}
			if len(got.ConditionsLog) != 1 {
				t.Errorf("trace has %d entries, want 1", len(got.ConditionsLog))
			}
		})
	}
}

func TestEvaluateNegate(t *testing.T) {
	e := testEvaluator()
	stream := models.Stream{Name: "BBC One", GroupName: "UK"}
	rule := &models.Rule{Conditions: []models.Condition{
		{Type: models.CondNameContains, Value: "bbc", Connector: models.ConnectorAnd},
		{Type: models.CondGroupEquals, Value: "US", Connector: models.ConnectorAnd, Negate: true},
	}}
	got := e.Evaluate(&stream, rule)
	if !got.Matched {
		t.Errorf("negated non-match should count as matched: %+v", got.ConditionsLog)
	}
}

func TestEvaluateOrGroups(t *testing.T) {
	e := testEvaluator()

	// (contains "espn" AND group "US") OR (contains "sky sports").
	rule := &models.Rule{Conditions: []models.Condition{
		{Type: models.CondNameContains, Value: "espn", Connector: models.ConnectorAnd},
		{Type: models.CondGroupEquals, Value: "US", Connector: models.ConnectorAnd},
		{Type: models.CondNameContains, Value: "sky sports", Connector: models.ConnectorOr},
	}}

	tests := []struct {
		name   string
		stream models.Stream
		want   bool
	}{
		{"first group full match", models.Stream{Name: "ESPN 2", GroupName: "US"}, true},
		{"first group partial", models.Stream{Name: "ESPN 2", GroupName: "UK"}, false},
		{"second group match", models.Stream{Name: "Sky Sports F1", GroupName: "UK"}, true},
		{"no group matches", models.Stream{Name: "BBC One", GroupName: "UK"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate(&tt.stream, rule)
			if got.Matched != tt.want {
				t.Errorf("Matched = %t, want %t", got.Matched, tt.want)
			}
			// No short-circuit: the trace always covers every condition.
			if len(got.ConditionsLog) != len(rule.Conditions) {
				t.Errorf("trace has %d entries, want %d", len(got.ConditionsLog), len(rule.Conditions))
			}
		})
	}
}

func TestEvaluateEmptyConditions(t *testing.T) {
	e := testEvaluator()
	got := e.Evaluate(&models.Stream{Name: "anything"}, &models.Rule{})
	if got.Matched {
		t.Error("rule with no conditions must never match")
	}
}
