// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package autocreate

import (
	"strconv"
	"strings"

	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/rules"
)

// streamContext carries one stream through its winning rule's action
// chain: the snapshot, variables set by set_variable, and the channel the
// chain has created or selected so far.
type streamContext struct {
	stream  *models.Stream
	rule    *models.Rule
	vars    map[string]string
	channel *models.Channel

	skipped bool
	stop    bool
}

func newStreamContext(stream *models.Stream, rule *models.Rule) *streamContext {
	return &streamContext{stream: stream, rule: rule, vars: make(map[string]string)}
}

// expand substitutes the template variable set into a name template.
// Unknown variables expand to the empty string.
func (sc *streamContext) expand(tmpl string, norm *rules.Normalizer) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	_, quality, qualityRaw := rules.StripQuality(sc.stream.Name)
	replacer := func(key string) string {
		switch key {
		case "stream_name":
			return sc.stream.Name
		case "stream_group":
			return sc.stream.GroupName
		case "tvg_id":
			return sc.stream.TvgID
		case "tvg_name":
			return sc.stream.TvgName
		case "quality":
			return quality
		case "quality_raw":
			return qualityRaw
		case "provider":
			return sc.stream.ProviderName
		case "provider_id":
			return strconv.Itoa(sc.stream.ProviderID)
		case "normalized_name":
			if sc.stream.NormalizedName != "" {
				return sc.stream.NormalizedName
			}
			return norm.Normalize(sc.stream.Name)
		default:
			if name, ok := strings.CutPrefix(key, "var:"); ok {
				return sc.vars[name]
			}
			return ""
		}
	}

	var b strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		b.WriteString(replacer(rest[open+1 : open+end]))
		rest = rest[open+end+1:]
	}
	return strings.TrimSpace(b.String())
}
