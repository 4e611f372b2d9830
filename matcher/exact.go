// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matcher

import (
	"strings"

	"github.com/selectorengine/core/enginetypes"
)

// exactMatchAttrs are the fields spec §4.4 Step B checks for equality
// against the normalized intent target.
var exactMatchAttrs = []string{"aria-label", "title", "placeholder", "value", "alt", "name", "id"}

// ExactHit is one Step B text-axis match.
type ExactHit struct {
	Descriptor *enginetypes.Descriptor
	Score      float32 // 1.0 exact, 0.6 case-insensitive substring
}

// ExactMatch scans candidates for equality (score 1.0) or substring (score
// 0.6) matches against target text and attributes, per spec §4.4 Step B.
// Returns no hits for an empty target.
func ExactMatch(candidates []*enginetypes.Descriptor, target string) []ExactHit {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil
	}
	targetLower := strings.ToLower(target)

	var hits []ExactHit
	for _, d := range candidates {
		if score, ok := bestMatchScore(d, target, targetLower); ok {
			hits = append(hits, ExactHit{Descriptor: d, Score: score})
		}
	}
	return hits
}

func bestMatchScore(d *enginetypes.Descriptor, target, targetLower string) (float32, bool) {
	best := float32(0)
	found := false

	check := func(value string) {
		if value == "" {
			return
		}
		if strings.EqualFold(strings.TrimSpace(value), target) {
			best = 1.0
			found = true
			return
		}
		if strings.Contains(strings.ToLower(value), targetLower) && best < 0.6 {
			best = 0.6
			found = true
		}
	}

	check(d.Text)
	for _, attr := range exactMatchAttrs {
		if v, ok := d.Attr(attr); ok {
			check(v)
		}
	}
	return best, found
}

// SingleSurvivor reports whether hits names exactly one unique descriptor,
// per spec §4.4 Step B's "semantic stage may be skipped only when exactly
// one candidate remains" rule.
func SingleSurvivor(hits []ExactHit) (*enginetypes.Descriptor, bool) {
	if len(hits) == 0 {
		return nil, false
	}
	first := hits[0].Descriptor
	for _, h := range hits[1:] {
		if h.Descriptor != first {
			return nil, false
		}
	}
	return first, true
}
