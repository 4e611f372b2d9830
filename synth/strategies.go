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
	"strconv"
	"strings"

	"github.com/selectorengine/core/enginehash"
	"github.com/selectorengine/core/enginetypes"
)

// containerTags are the structural tags eligible to stand in for a DOM
// ancestor in the hierarchical strategy.
var containerTags = map[string]struct{}{
	"div": {}, "form": {}, "section": {}, "nav": {}, "header": {},
	"footer": {}, "ul": {}, "ol": {}, "table": {}, "fieldset": {}, "article": {},
}

// combinedAttrPriority is the attribute pair preference order for spec
// §4.6 strategy 7, favoring stable attributes over presentational ones.
var combinedAttrPriority = []string{"name", "placeholder", "title", "alt", "role", "value"}

func buildID(d *enginetypes.Descriptor, frame []*enginetypes.Descriptor, stripper *enginehash.VolatileAttrStripper) (string, func(*enginetypes.Descriptor) bool) {
	id, ok := d.Attr("id")
	if !ok || id == "" || stripper.IsVolatile("id", id) {
		return "", nil
	}
	xpath := "//*[@id=" + xpathLiteral(id) + "]"
	return xpath, func(p *enginetypes.Descriptor) bool {
		v, ok := p.Attr("id")
		return ok && v == id
	}
}

func buildDataTestID(d *enginetypes.Descriptor, frame []*enginetypes.Descriptor, stripper *enginehash.VolatileAttrStripper) (string, func(*enginetypes.Descriptor) bool) {
	tid, ok := d.Attr("data-testid")
	if !ok || tid == "" {
		return "", nil
	}
	xpath := "//*[@data-testid=" + xpathLiteral(tid) + "]"
	return xpath, func(p *enginetypes.Descriptor) bool {
		v, ok := p.Attr("data-testid")
		return ok && v == tid
	}
}

func buildAriaLabel(d *enginetypes.Descriptor, frame []*enginetypes.Descriptor, stripper *enginehash.VolatileAttrStripper) (string, func(*enginetypes.Descriptor) bool) {
	aria, ok := d.Attr("aria-label")
	if !ok || aria == "" {
		return "", nil
	}
	tag := d.Tag
	xpath := "//" + tag + "[@aria-label=" + xpathLiteral(aria) + "]"
	return xpath, func(p *enginetypes.Descriptor) bool {
		v, ok := p.Attr("aria-label")
		return p.Tag == tag && ok && v == aria
	}
}

func buildName(d *enginetypes.Descriptor, frame []*enginetypes.Descriptor, stripper *enginehash.VolatileAttrStripper) (string, func(*enginetypes.Descriptor) bool) {
	name, ok := d.Attr("name")
	if !ok || name == "" {
		return "", nil
	}
	tag := d.Tag
	xpath := "//" + tag + "[@name=" + xpathLiteral(name) + "]"
	return xpath, func(p *enginetypes.Descriptor) bool {
		v, ok := p.Attr("name")
		return p.Tag == tag && ok && v == name
	}
}

func buildTextExact(d *enginetypes.Descriptor, frame []*enginetypes.Descriptor, stripper *enginehash.VolatileAttrStripper) (string, func(*enginetypes.Descriptor) bool) {
	text := strings.TrimSpace(d.Text)
	if text == "" || len(text) > maxTextExactLen {
		return "", nil
	}
	tag := d.Tag
	xpath := "//" + tag + "[normalize-space()=" + xpathLiteral(text) + "]"
	return xpath, func(p *enginetypes.Descriptor) bool {
		return p.Tag == tag && strings.TrimSpace(p.Text) == text
	}
}

func buildClass(d *enginetypes.Descriptor, frame []*enginetypes.Descriptor, stripper *enginehash.VolatileAttrStripper) (string, func(*enginetypes.Descriptor) bool) {
	class, ok := d.Attr("class")
	if !ok || class == "" {
		return "", nil
	}
	var tokens []string
	for _, tok := range strings.Fields(class) {
		if !stripper.IsVolatile("class", tok) {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return "", nil
	}
	tag := d.Tag
	var preds []string
	for _, tok := range tokens {
		preds = append(preds, "contains(@class,"+xpathLiteral(tok)+")")
	}
	xpath := "//" + tag + "[" + strings.Join(preds, " and ") + "]"
	return xpath, func(p *enginetypes.Descriptor) bool {
		if p.Tag != tag {
			return false
		}
		v, ok := p.Attr("class")
		if !ok {
			return false
		}
		for _, tok := range tokens {
			if !strings.Contains(v, tok) {
				return false
			}
		}
		return true
	}
}

func buildCombinedAttrs(d *enginetypes.Descriptor, frame []*enginetypes.Descriptor, stripper *enginehash.VolatileAttrStripper) (string, func(*enginetypes.Descriptor) bool) {
	var keys, vals []string
	for _, attr := range combinedAttrPriority {
		if v, ok := d.Attr(attr); ok && v != "" {
			keys = append(keys, attr)
			vals = append(vals, v)
		}
		if len(keys) == 2 {
			break
		}
	}
	if len(keys) < 2 {
		return "", nil
	}
	tag := d.Tag
	var preds []string
	for i, k := range keys {
		preds = append(preds, "@"+k+"="+xpathLiteral(vals[i]))
	}
	xpath := "//" + tag + "[" + strings.Join(preds, " and ") + "]"
	return xpath, func(p *enginetypes.Descriptor) bool {
		if p.Tag != tag {
			return false
		}
		for i, k := range keys {
			v, ok := p.Attr(k)
			if !ok || v != vals[i] {
				return false
			}
		}
		return true
	}
}

// buildHierarchical approximates spec §4.6 strategy 8's "at most two
// ancestors" relative selector. The flat Descriptor model carries no DOM
// parent pointer (the same structural gap noted for the matcher package's
// context fragment), so the nearest preceding same-frame descriptor whose
// tag is a structural container and that carries a distinguishing
// attribute stands in for one ancestor level; a second container found
// earlier still stands in for the next level up. The predicate then
// requires d's own tag plus document-order position after that marker,
// which is the closest frame-local approximation of "descendant of" this
// model supports.
func buildHierarchical(d *enginetypes.Descriptor, frame []*enginetypes.Descriptor, stripper *enginehash.VolatileAttrStripper) (string, func(*enginetypes.Descriptor) bool) {
	pos := indexOf(frame, d)
	if pos < 0 {
		return "", nil
	}

	var ancestors []*enginetypes.Descriptor
	for i := pos - 1; i >= 0 && len(ancestors) < 2; i-- {
		cand := frame[i]
		if _, ok := containerTags[cand.Tag]; !ok {
			continue
		}
		if key, val, ok := distinguishingAttr(cand); ok {
			ancestors = append(ancestors, cand)
			_ = key
			_ = val
		}
	}
	if len(ancestors) == 0 {
		return "", nil
	}

	// ancestors is nearest-first; render farthest-first like a real XPath
	// ancestor chain.
	var b strings.Builder
	markerPositions := make([]int, 0, len(ancestors))
	for i := len(ancestors) - 1; i >= 0; i-- {
		a := ancestors[i]
		key, val, _ := distinguishingAttr(a)
		b.WriteString("//")
		b.WriteString(a.Tag)
		b.WriteString("[@")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(xpathLiteral(val))
		b.WriteString("]")
		markerPositions = append(markerPositions, indexOf(frame, a))
	}
	b.WriteString("//")
	b.WriteString(d.Tag)
	xpath := b.String()

	nearestMarkerPos := markerPositions[len(markerPositions)-1]
	tag := d.Tag
	return xpath, func(p *enginetypes.Descriptor) bool {
		if p.Tag != tag {
			return false
		}
		ppos := indexOf(frame, p)
		return ppos > nearestMarkerPos
	}
}

func distinguishingAttr(d *enginetypes.Descriptor) (key, value string, ok bool) {
	for _, attr := range []string{"id", "data-testid", "name", "role"} {
		if v, present := d.Attr(attr); present && v != "" {
			return attr, v, true
		}
	}
	return "", "", false
}

func indexOf(frame []*enginetypes.Descriptor, d *enginetypes.Descriptor) int {
	for i, p := range frame {
		if p == d || p.BackendID == d.BackendID {
			return i
		}
	}
	return -1
}

// buildFallbackIndex is spec §4.6 strategy 9, the always-unique last
// resort: a 1-based position within the frame among same-tag elements.
func buildFallbackIndex(d *enginetypes.Descriptor, frame []*enginetypes.Descriptor, stripper *enginehash.VolatileAttrStripper) (string, func(*enginetypes.Descriptor) bool) {
	tag := d.Tag
	idx := 0
	target := -1
	for _, p := range frame {
		if p.Tag != tag {
			continue
		}
		idx++
		if p.BackendID == d.BackendID {
			target = idx
		}
	}
	if target < 0 {
		return "", nil
	}
	xpath := "(//" + tag + ")[" + strconv.Itoa(target) + "]"
	seen := 0
	return xpath, func(p *enginetypes.Descriptor) bool {
		if p.Tag != tag {
			return false
		}
		seen++
		return seen == target && p.BackendID == d.BackendID
	}
}
