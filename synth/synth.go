// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package synth implements the Selector Synthesizer + Verifier of spec
// §4.6: given one chosen Descriptor and the current Snapshot, produce the
// first XPath from a fixed strategy ladder that is unique within the
// descriptor's frame.
//
// The teacher never emits XPath (its `ast` parsers render canonical
// tag+attrs fragments for a different purpose entirely — symbol lookup, not
// selector synthesis), so this package has no direct teacher analog for the
// string-construction half; it follows the teacher's general
// doc-comment/function-shape idiom and its "verify by scanning the
// in-memory model, not by invoking an external engine" posture (mirrored
// from prefilter.go's self-contained scoring, never shelling out).
package synth

import (
	"strings"

	"github.com/selectorengine/core/enginehash"
	"github.com/selectorengine/core/enginetypes"
)

// Strategy names the synthesis strategies of spec §4.6, in ladder order.
type Strategy string

const (
	StrategyID              Strategy = "id"
	StrategyDataTestID      Strategy = "data_testid"
	StrategyAriaLabel       Strategy = "aria_label"
	StrategyName            Strategy = "name"
	StrategyTextExact       Strategy = "text_exact"
	StrategyClass           Strategy = "class"
	StrategyCombinedAttrs   Strategy = "combined_attrs"
	StrategyHierarchical    Strategy = "hierarchical"
	StrategyFallbackIndex   Strategy = "fallback_index"
)

// maxTextExactLen is spec §4.6 strategy 5's length cap.
const maxTextExactLen = 80

// Candidate is one synthesized, frame-unique XPath.
type Candidate struct {
	XPath    string
	Strategy Strategy
}

// candidateBuilder produces an XPath plus the predicate used to verify its
// uniqueness against the frame's descriptor set; predicate is nil when the
// strategy does not apply to d.
type candidateBuilder struct {
	strategy Strategy
	build    func(d *enginetypes.Descriptor, frame []*enginetypes.Descriptor, stripper *enginehash.VolatileAttrStripper) (xpath string, predicate func(*enginetypes.Descriptor) bool)
}

var ladder = []candidateBuilder{
	{StrategyID, buildID},
	{StrategyDataTestID, buildDataTestID},
	{StrategyAriaLabel, buildAriaLabel},
	{StrategyName, buildName},
	{StrategyTextExact, buildTextExact},
	{StrategyClass, buildClass},
	{StrategyCombinedAttrs, buildCombinedAttrs},
	{StrategyHierarchical, buildHierarchical},
	{StrategyFallbackIndex, buildFallbackIndex},
}

// Synthesize runs spec §4.6's strategy ladder against d, using snapshot to
// scope the uniqueness check to d's own frame. It returns the first
// candidate whose predicate matches exactly one descriptor in that frame.
// ok is false only if every strategy (including the always-unique fallback)
// somehow fails to apply, which should not happen for any descriptor drawn
// from the snapshot itself.
func Synthesize(d *enginetypes.Descriptor, snapshot *enginetypes.Snapshot, stripper *enginehash.VolatileAttrStripper) (Candidate, bool) {
	if stripper == nil {
		stripper = enginehash.NewVolatileAttrStripper(nil)
	}
	frame := framePeers(d, snapshot)

	for _, b := range ladder {
		xpath, predicate := b.build(d, frame, stripper)
		if predicate == nil {
			continue
		}
		if !validContract(xpath) {
			continue
		}
		if countMatches(frame, predicate) == 1 {
			return Candidate{XPath: xpath, Strategy: b.strategy}, true
		}
	}
	return Candidate{}, false
}

// framePeers returns every descriptor sharing d's frame, in document order.
func framePeers(d *enginetypes.Descriptor, snapshot *enginetypes.Snapshot) []*enginetypes.Descriptor {
	out := make([]*enginetypes.Descriptor, 0, len(snapshot.Descriptors))
	for i := range snapshot.Descriptors {
		p := &snapshot.Descriptors[i]
		if p.FrameHash == d.FrameHash {
			out = append(out, p)
		}
	}
	return out
}

func countMatches(frame []*enginetypes.Descriptor, predicate func(*enginetypes.Descriptor) bool) int {
	n := 0
	for _, p := range frame {
		if predicate(p) {
			n++
		}
	}
	return n
}

// validContract enforces spec §4.6's hard XPath contract: every produced
// selector starts with "//" (or "(//" for the fallback-index form
// "(//tag)[N]") and never names /html or /body.
func validContract(xpath string) bool {
	if xpath == "" || !(strings.HasPrefix(xpath, "//") || strings.HasPrefix(xpath, "(//")) {
		return false
	}
	if strings.Contains(xpath, "/html") || strings.Contains(xpath, "/body") {
		return false
	}
	return true
}

// xpathLiteral renders s as an XPath 1.0 string literal. XPath has no
// escape syntax, so a value containing a double quote is instead wrapped in
// single quotes; a value containing both falls back to concat(), XPath's
// standard workaround.
func xpathLiteral(s string) string {
	switch {
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	case !strings.Contains(s, `'`):
		return `'` + s + `'`
	default:
		parts := strings.Split(s, `"`)
		quoted := make([]string, len(parts))
		for i, p := range parts {
			quoted[i] = `"` + p + `"`
		}
		return "concat(" + strings.Join(quoted, `, '"', `) + ")"
	}
}
