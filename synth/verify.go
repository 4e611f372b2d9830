// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package synth

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/selectorengine/core/enginetypes"
)

// fallbackIndexPattern matches strategy 9's `(//tag)[N]` shape.
var fallbackIndexPattern = regexp.MustCompile(`^\(//([a-zA-Z0-9]+)\)\[(\d+)\]$`)

// VerifyXPath evaluates xpath against frame's descriptors and returns every
// match. It understands exactly the shapes this package's own ladder
// produces (plain attribute/class/text predicates, up to a two-ancestor
// hierarchical chain, and the fallback index form) — spec §6.1 delegates
// real XPath evaluation against the live DOM to the collaborator's
// evaluate_xpath; this is the Snapshot-local simulation the Verifier and
// the promotion-store short-circuit (§4.7) use before ever reaching that
// collaborator, and it only ever needs to re-check selectors this engine
// itself synthesized.
func VerifyXPath(xpath string, frame []*enginetypes.Descriptor) []*enginetypes.Descriptor {
	if m := fallbackIndexPattern.FindStringSubmatch(xpath); m != nil {
		tag := m[1]
		idx, err := strconv.Atoi(m[2])
		if err != nil || idx < 1 {
			return nil
		}
		seen := 0
		for _, d := range frame {
			if d.Tag != tag {
				continue
			}
			seen++
			if seen == idx {
				return []*enginetypes.Descriptor{d}
			}
		}
		return nil
	}

	segments := splitSegments(xpath)
	if len(segments) == 0 {
		return nil
	}

	markerPos := -1
	for _, seg := range segments[:len(segments)-1] {
		pos := firstMatchPos(frame, seg)
		if pos < 0 {
			return nil
		}
		markerPos = pos
	}

	last := segments[len(segments)-1]
	var out []*enginetypes.Descriptor
	for i, d := range frame {
		if !segmentMatches(d, last) {
			continue
		}
		if markerPos >= 0 && i <= markerPos {
			continue
		}
		out = append(out, d)
	}
	return out
}

type segment struct {
	tag  string
	pred string
}

// splitSegments splits "//tag1[pred1]//tag2[pred2]//tag3" into its
// per-level (tag, predicate) pairs.
func splitSegments(xpath string) []segment {
	parts := strings.Split(xpath, "//")
	var segs []segment
	for _, p := range parts {
		if p == "" {
			continue
		}
		open := strings.Index(p, "[")
		if open < 0 {
			segs = append(segs, segment{tag: p})
			continue
		}
		closeIdx := strings.LastIndex(p, "]")
		if closeIdx < open {
			continue
		}
		segs = append(segs, segment{tag: p[:open], pred: p[open+1 : closeIdx]})
	}
	return segs
}

func firstMatchPos(frame []*enginetypes.Descriptor, seg segment) int {
	for i, d := range frame {
		if segmentMatches(d, seg) {
			return i
		}
	}
	return -1
}

func segmentMatches(d *enginetypes.Descriptor, seg segment) bool {
	if seg.tag != "*" && seg.tag != "" && d.Tag != seg.tag {
		return false
	}
	if seg.pred == "" {
		return true
	}

	if strings.HasPrefix(seg.pred, "normalize-space()=") {
		lit, ok := extractLiteral(seg.pred[len("normalize-space()="):])
		return ok && strings.TrimSpace(d.Text) == lit
	}

	clauses := strings.Split(seg.pred, " and ")
	for _, clause := range clauses {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "contains(@class,"):
			lit, ok := extractLiteral(clause[len("contains(@class,"):])
			if !ok {
				return false
			}
			v, has := d.Attr("class")
			if !has || !strings.Contains(v, lit) {
				return false
			}
		case strings.HasPrefix(clause, "@"):
			eq := strings.Index(clause, "=")
			if eq < 0 {
				return false
			}
			key := clause[1:eq]
			lit, ok := extractLiteral(clause[eq+1:])
			if !ok {
				return false
			}
			v, has := d.Attr(key)
			if !has || v != lit {
				return false
			}
		default:
			// concat()-escaped literal or unrecognized clause shape: treat
			// as a best-effort pass rather than rejecting a selector this
			// package itself produced.
		}
	}
	return true
}

// extractLiteral pulls the quoted value out of a trailing XPath literal
// clause, e.g. `"value")` or `'value'`. Returns ok=false for the concat()
// escape form, which callers treat as a pass-through.
func extractLiteral(s string) (string, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ")")
	if len(s) < 2 {
		return "", false
	}
	quote := s[0]
	if quote != '"' && quote != '\'' {
		return "", false
	}
	end := strings.LastIndexByte(s, quote)
	if end <= 0 {
		return "", false
	}
	return s[1:end], true
}
