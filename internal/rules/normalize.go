// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package rules

import (
	"regexp"
	"strings"

	"github.com/tomtom215/streamweaver/internal/models"
)

var (
	// "101 | BBC One" and "4.1 | BBC One" number prefixes.
	numberPrefixRe = regexp.MustCompile(`^\s*\d+(?:\.\d+)?\s*\|\s*`)

	// "UK: BBC One", "USA | ESPN", "DE - RTL" country prefixes.
	countryPrefixRe = regexp.MustCompile(`^[A-Za-z]{2,3}\s*[:|]\s*`)

	// Trailing quality markers, optionally bracketed.
	qualitySuffixRe = regexp.MustCompile(`(?i)[\s\-]*[\(\[]?\b(uhd|fhd|hd|sd|4k|8k|\d{3,4}[pi])\b[\)\]]?\s*$`)

	// Parenthesized segments, e.g. "(WABC)" or "(East)".
	parenSegmentRe = regexp.MustCompile(`\s*\(([^)]*)\)`)

	// FCC call signs: 3 to 5 capitals starting with K or W, with an
	// optional service suffix like -TV or -DT.
	callSignRe = regexp.MustCompile(`^([KW][A-Z]{2,4})(?:-(?:TV|DT|HD|CD|LD))?$`)

	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9]+`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	qualityCanon = map[string]string{"fhd": "1080p", "hd": "720p", "sd": "480p", "uhd": "2160p", "4k": "2160p", "8k": "4320p"}
)

// Normalizer rewrites stream and channel names into a canonical matching
// form. Custom rewrite rules run first, in ascending order, then the
// built-in prefix and quality stripping.
type Normalizer struct {
	registry *Registry
	custom   []compiledRule
}

type compiledRule struct {
	re          *regexp.Regexp // nil for plain substring rules
	pattern     string
	replacement string
}

// NewNormalizer compiles the stored normalization rules. Rules whose regex
// fails to compile are skipped; the caller is expected to have validated
// patterns on write.
func NewNormalizer(registry *Registry, custom []models.NormalizationRule) *Normalizer {
	n := &Normalizer{registry: registry}
	for _, r := range custom {
		if !r.Enabled {
			continue
		}
		cr := compiledRule{pattern: r.Pattern, replacement: r.Replacement}
		if r.IsRegex {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				continue
			}
			cr.re = re
		}
		n.custom = append(n.custom, cr)
	}
	return n
}

// Normalize produces the canonical lowercase form of a name: custom
// rewrites, then number prefix, country prefix and quality suffix
// stripping, then punctuation collapse.
func (n *Normalizer) Normalize(name string) string {
	s := name
	if n != nil {
		for _, r := range n.custom {
			if r.re != nil {
				s = r.re.ReplaceAllString(s, r.replacement)
			} else {
				s = strings.ReplaceAll(s, r.pattern, r.replacement)
			}
		}
	}
	s = BaseName(s)
	s = countryPrefixRe.ReplaceAllString(s, "")
	s, _, _ = StripQuality(s)
	s = strings.ToLower(s)
	s = nonAlnumRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CoreName is the normalized form with parenthesized segments and known
// tag words removed, used as the loosest channel-matching key.
func (n *Normalizer) CoreName(name string) string {
	s := parenSegmentRe.ReplaceAllString(name, "")
	s = n.Normalize(s)
	if n != nil && n.registry != nil {
		for _, tag := range n.registry.AllTags() {
			t := strings.TrimSpace(strings.ToLower(tag))
			if t == "" {
				continue
			}
			s = strings.TrimSpace(strings.TrimPrefix(s, t))
			s = strings.TrimSpace(strings.TrimSuffix(s, t))
		}
	}
	return multiSpaceRe.ReplaceAllString(s, " ")
}

// BaseName strips a leading "NUMBER | " prefix.
func BaseName(name string) string {
	return strings.TrimSpace(numberPrefixRe.ReplaceAllString(name, ""))
}

// StripQuality removes a trailing quality marker and reports both the
// canonical quality ("1080p") and the raw token as it appeared ("FHD").
func StripQuality(name string) (stripped, quality, raw string) {
	m := qualitySuffixRe.FindStringSubmatchIndex(name)
	if m == nil {
		return strings.TrimSpace(name), "", ""
	}
	raw = name[m[2]:m[3]]
	stripped = strings.TrimSpace(name[:m[0]])
	lower := strings.ToLower(raw)
	if canon, ok := qualityCanon[lower]; ok {
		quality = canon
	} else {
		quality = lower
	}
	return stripped, quality, raw
}

// Deparenthesize removes parenthesized segments from a name.
func Deparenthesize(name string) string {
	s := parenSegmentRe.ReplaceAllString(name, "")
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}

// CallSign extracts an FCC call sign from a name's parenthesized form,
// e.g. "ABC 7 New York (WABC-TV)" yields "WABC". Empty when absent.
func CallSign(name string) string {
	for _, m := range parenSegmentRe.FindAllStringSubmatch(name, -1) {
		inner := strings.TrimSpace(strings.ToUpper(m[1]))
		if cs := callSignRe.FindStringSubmatch(inner); cs != nil {
			return cs[1]
		}
	}
	// A bare trailing call sign without parentheses also counts.
	fields := strings.Fields(strings.ToUpper(name))
	if len(fields) > 1 {
		if cs := callSignRe.FindStringSubmatch(fields[len(fields)-1]); cs != nil {
			return cs[1]
		}
	}
	return ""
}
