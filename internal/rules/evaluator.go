// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package rules implements the pure condition evaluator of the
// auto-creation pipeline together with its supporting name normalizer and
// tag registry. The evaluator has no side effects and no upstream or
// database access; everything it needs is injected at construction.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/tomtom215/streamweaver/internal/models"
)

// Evaluator matches stream snapshots against rule condition sequences.
// Safe for concurrent use; the regex cache is the only mutable state.
type Evaluator struct {
	registry *Registry
	norm     *Normalizer

	mu      sync.Mutex
	regexes map[string]*regexp.Regexp
}

// NewEvaluator builds an evaluator over a tag registry and normalizer.
// Both may be nil, which disables tag_in matching and custom rewrites.
func NewEvaluator(registry *Registry, norm *Normalizer) *Evaluator {
	return &Evaluator{
		registry: registry,
		norm:     norm,
		regexes:  make(map[string]*regexp.Regexp),
	}
}

// Evaluate returns the match verdict for one (stream, rule) pair.
//
// Every condition is evaluated so the trace is always complete. An "or"
// connector starts a new AND-group; the rule matches when at least one
// group matches all of its conditions. A rule with no conditions never
// matches.
func (e *Evaluator) Evaluate(stream *models.Stream, rule *models.Rule) models.EvalResult {
	result := models.EvalResult{
		ConditionsLog: make([]models.ConditionTrace, 0, len(rule.Conditions)),
	}
	if len(rule.Conditions) == 0 {
		return result
	}

	groupMatched := true
	anyGroup := false
	for i, cond := range rule.Conditions {
		if i > 0 && cond.Connector == models.ConnectorOr {
			if groupMatched {
				anyGroup = true
			}
			groupMatched = true
		}

		matched, details := e.evalCondition(stream, cond)
		if cond.Negate {
			matched = !matched
			details = "negated: " + details
		}
		result.ConditionsLog = append(result.ConditionsLog, models.ConditionTrace{
			Type:      cond.Type,
			Value:     cond.Value,
			Matched:   matched,
			Details:   details,
			Connector: cond.Connector,
		})
		if !matched {
			groupMatched = false
		}
	}
	if groupMatched {
		anyGroup = true
	}
	result.Matched = anyGroup
	return result
}

func (e *Evaluator) evalCondition(stream *models.Stream, cond models.Condition) (bool, string) {
	switch cond.Type {
	case models.CondAlways:
		return true, "always matches"

	case models.CondNameContains:
		ok := strings.Contains(strings.ToLower(stream.Name), strings.ToLower(cond.Value))
		return ok, fmt.Sprintf("name %q contains %q: %t", stream.Name, cond.Value, ok)

	case models.CondNameRegex:
		re, err := e.compile(cond.Value)
		if err != nil {
			return false, fmt.Sprintf("invalid regex %q: %v", cond.Value, err)
		}
		ok := re.MatchString(stream.Name)
		return ok, fmt.Sprintf("name %q matches /%s/: %t", stream.Name, cond.Value, ok)

	case models.CondGroupEquals:
		ok := strings.EqualFold(stream.GroupName, cond.Value)
		return ok, fmt.Sprintf("group %q equals %q: %t", stream.GroupName, cond.Value, ok)

	case models.CondTagIn:
		tags := e.registry.Lookup(cond.Value)
		if tags == nil {
			return false, fmt.Sprintf("tag group %q not found", cond.Value)
		}
		for _, tag := range tags {
			if matchesTag(stream.Name, tag) {
				return true, fmt.Sprintf("name %q matches tag %q", stream.Name, tag)
			}
		}
		return false, fmt.Sprintf("no tag of group %q matches %q", cond.Value, stream.Name)

	case models.CondTvgPresent:
		ok := stream.TvgID != ""
		return ok, fmt.Sprintf("tvg_id present: %t", ok)

	case models.CondResolutionGE:
		want, err := parseHeight(cond.Value)
		if err != nil {
			return false, fmt.Sprintf("invalid resolution %q: %v", cond.Value, err)
		}
		if stream.ResolutionHeight <= 0 {
			return false, "resolution unknown"
		}
		ok := stream.ResolutionHeight >= want
		return ok, fmt.Sprintf("height %d >= %d: %t", stream.ResolutionHeight, want, ok)

	default:
		return false, fmt.Sprintf("unknown condition type %q", cond.Type)
	}
}

func (e *Evaluator) compile(pattern string) (*regexp.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if re, ok := e.regexes[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	e.regexes[pattern] = re
	return re, nil
}

// parseHeight accepts "720", "720p" and "720i".
func parseHeight(v string) (int, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	v = strings.TrimSuffix(strings.TrimSuffix(v, "p"), "i")
	return strconv.Atoi(v)
}

// matchesTag reports whether a stream name carries a tag. Beyond plain
// substring containment it understands parenthesized variants ("ABC
// (East)" matches "abc") and FCC call signs ("(WABC-TV)" matches "wabc").
func matchesTag(name, tag string) bool {
	tag = strings.TrimSpace(strings.ToLower(tag))
	if tag == "" {
		return false
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, tag) {
		return true
	}
	if depar := strings.ToLower(Deparenthesize(name)); depar != lower && strings.Contains(depar, tag) {
		return true
	}
	if cs := CallSign(name); cs != "" && strings.EqualFold(cs, tag) {
		return true
	}
	return false
}
