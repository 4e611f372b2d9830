// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package heuristic implements spec §4.4 Step D's additive heuristic scorer
// and §4.5's fusion formula, grounded on prefilter.go's additive
// bonus/penalty scoring (a flat sum of named signals, each independently
// toggleable) and config/prefilter_config.go's "constants become config"
// pattern — every weight here lives in engineconfig.HeuristicWeights rather
// than a literal in this package.
package heuristic

import (
	"sort"
	"strings"

	"github.com/selectorengine/core/enginehash"
	"github.com/selectorengine/core/engineconfig"
	"github.com/selectorengine/core/enginetypes"
	"github.com/selectorengine/core/lexical"
)

// typeAttrForTarget maps a keyword that may appear in intent.target to the
// HTML input type attribute value it implies, per spec §4.4 Step D's
// "type=email for 'email'" example.
var typeAttrForTarget = map[string]string{
	"email":    "email",
	"password": "password",
	"phone":    "tel",
	"telephone": "tel",
	"date":     "date",
	"number":   "number",
	"search":   "search",
	"url":      "url",
}

// Reason is one fired bonus/penalty, kept for near-miss diagnostics.
type Reason struct {
	Label  string
	Weight float64
}

// Result is the Step D outcome for one candidate.
type Result struct {
	Descriptor *enginetypes.Descriptor
	Score      float64
	Reasons    []Reason
}

// Score computes spec §4.4 Step D's additive heuristic score for one
// action-filtered descriptor. siblings is the full set of descriptors
// sharing d's frame (used for the entity-type mismatch check); stripper
// classifies volatile id/class values using the same patterns the
// canonicalizer already stripped by at hash time.
func Score(
	d *enginetypes.Descriptor,
	intent enginetypes.Intent,
	weights engineconfig.HeuristicWeights,
	stripper *enginehash.VolatileAttrStripper,
	entityCategories map[string][]string,
	siblings []*enginetypes.Descriptor,
) Result {
	var reasons []Reason
	add := func(label string, w float64) {
		if w != 0 {
			reasons = append(reasons, Reason{Label: label, Weight: w})
		}
	}

	target := strings.TrimSpace(intent.Target)
	targetLower := strings.ToLower(target)

	if id, ok := d.Attr("id"); ok && target != "" && id == intent.LabelKey {
		add("exact_id_match", weights.ExactIDMatch)
	}

	if tid, ok := d.Attr("data-testid"); ok && target != "" {
		tidLower := strings.ToLower(tid)
		if tidLower == targetLower || strings.Contains(tidLower, targetLower) {
			add("testid_match", weights.TestIDMatch)
		}
	}

	if aria, ok := d.Attr("aria-label"); ok && target != "" && strings.EqualFold(aria, target) {
		add("aria_label_exact", weights.AriaLabelExact)
	}

	if typeAttr, ok := d.Attr("type"); ok {
		for keyword, wantType := range typeAttrForTarget {
			if strings.Contains(targetLower, keyword) && strings.EqualFold(typeAttr, wantType) {
				add("type_attr_matches_action", weights.TypeAttrMatchesAction)
				break
			}
		}
	}

	if phraseMatch(target, d) {
		add("phrase_match", weights.PhraseMatch)
	} else if synonymPhraseMatch(target, d) {
		add("label_synonym_match", weights.LabelSynonymMatch)
	}

	if d.Visible && !isDisabled(d) {
		add("visible_enabled", weights.VisibleEnabled)
	}
	if !d.Visible || isDisabled(d) {
		add("hidden_or_disabled", weights.HiddenOrDisabled)
	}

	if roleTagMismatch(d, intent.Action) {
		add("role_tag_mismatch", weights.RoleTagMismatch)
	}

	if stripper != nil && hasVolatileIDOrClass(d, stripper) {
		add("volatile_id_or_class", weights.VolatileIDOrClass)
	}

	if entityTypeMismatch(d, target, entityCategories, siblings) {
		add("entity_type_mismatch", weights.EntityTypeMismatch)
	}

	total := 0.0
	for _, r := range reasons {
		total += r.Weight
	}
	return Result{Descriptor: d, Score: total, Reasons: reasons}
}

func isDisabled(d *enginetypes.Descriptor) bool {
	if v, ok := d.Attr("disabled"); ok && v != "false" {
		return true
	}
	if v, ok := d.Attr("aria-disabled"); ok && strings.EqualFold(v, "true") {
		return true
	}
	return false
}

// phraseMatch reports whether any tokenized n-gram of target also appears
// in d's text or aria-label, per spec §4.4 Step D.
func phraseMatch(target string, d *enginetypes.Descriptor) bool {
	if strings.TrimSpace(target) == "" {
		return false
	}
	targetTerms := lexical.Tokenize(target)
	if len(targetTerms) == 0 {
		return false
	}
	haystack := d.Text
	if aria, ok := d.Attr("aria-label"); ok {
		haystack += " " + aria
	}
	haystackTerms := lexical.Tokenize(haystack)
	for term := range targetTerms {
		if _, ok := haystackTerms[term]; ok {
			return true
		}
	}
	return false
}

// labelSynonyms is loaded once at package init from the embedded synonym
// groups; a parse failure degrades to no synonym expansion rather than
// failing scoring.
var labelSynonyms = MustLoadLabelSynonyms()

// synonymPhraseMatch is phraseMatch's looser sibling: it credits a
// candidate whose text/aria-label uses a different member of the target
// word's synonym group (e.g. target "submit" crediting a button labeled
// "Send"), rather than requiring the literal term to appear.
func synonymPhraseMatch(target string, d *enginetypes.Descriptor) bool {
	if strings.TrimSpace(target) == "" || len(labelSynonyms) == 0 {
		return false
	}
	targetTerms := lexical.Tokenize(target)
	if len(targetTerms) == 0 {
		return false
	}
	haystack := d.Text
	if aria, ok := d.Attr("aria-label"); ok {
		haystack += " " + aria
	}
	haystackTerms := lexical.Tokenize(haystack)
	return labelSynonyms.matches(targetTerms, haystackTerms)
}

// roleTagMismatch's role/tag lists mirror matcher.FilterByAction's own
// allow-lists; role_tag_mismatch fires for an edge case that survived the
// Step A filter (e.g. a div[role=presentation] passed by its interactivity
// marker) but whose role/tag still disagrees with the action semantics.
func roleTagMismatch(d *enginetypes.Descriptor, action enginetypes.Action) bool {
	tag := strings.ToLower(d.Tag)
	role := strings.ToLower(d.Role)
	switch action {
	case enginetypes.ActionClick:
		return tag == "div" && role != "" && role != "button" && role != "link" &&
			role != "menuitem" && role != "tab" && role != "option" &&
			role != "checkbox" && role != "radio"
	case enginetypes.ActionType:
		return tag != "input" && tag != "textarea" && role != "textbox"
	case enginetypes.ActionSelect:
		return tag != "select" && role != "combobox" && role != "listbox" && role != "option"
	default:
		return false
	}
}

func hasVolatileIDOrClass(d *enginetypes.Descriptor, stripper *enginehash.VolatileAttrStripper) bool {
	if v, ok := d.Attr("id"); ok && stripper.IsVolatile("id", v) {
		return true
	}
	if v, ok := d.Attr("class"); ok {
		for _, token := range strings.Fields(v) {
			if stripper.IsVolatile("class", token) {
				return true
			}
		}
	}
	return false
}

// entityTypeMismatch implements spec §4.4 Step D's entity-type penalty: the
// target noun implies a category (e.g. "laptop" → electronics), and d's own
// rendered text names a keyword from a different configured category while
// a same-frame sibling names the category the target actually intends —
// the classic "selected the color swatch instead of the product" case.
func entityTypeMismatch(d *enginetypes.Descriptor, target string, categories map[string][]string, siblings []*enginetypes.Descriptor) bool {
	if len(categories) == 0 || target == "" {
		return false
	}
	targetLower := strings.ToLower(target)

	targetCategory, ok := categoryOf(targetLower, categories)
	if !ok {
		return false
	}

	dCategory, ok := categoryOf(strings.ToLower(d.Text), categories)
	if !ok || dCategory == targetCategory {
		return false
	}

	for _, sib := range siblings {
		if sib == d {
			continue
		}
		if c, ok := categoryOf(strings.ToLower(sib.Text), categories); ok && c == targetCategory {
			return true
		}
	}
	return false
}

func categoryOf(text string, categories map[string][]string) (string, bool) {
	for category, keywords := range categories {
		for _, kw := range keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(kw)) {
				return category, true
			}
		}
	}
	return "", false
}

// RankResults sorts Step D results by descending score; ties are left to
// the caller (Fuse applies spec §4.5's document-order/frame-depth
// tiebreak).
func RankResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}
