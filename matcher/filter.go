// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package matcher implements the Intent-Aware Matcher & Re-ranker of spec
// §4.4 Steps A-C: an action-driven hard filter, an exact-match short path,
// and a semantic shortlist+re-rank stage.
//
// Grounded on services/trace/agent/routing/prefilter.go's phased
// deterministic pipeline shape (forced mapping → keyword scoring →
// candidate selection) and its promauto/otel observability conventions,
// retargeted from tool routing to DOM descriptor matching.
package matcher

import (
	"strings"

	"github.com/selectorengine/core/enginetypes"
)

var clickRoles = map[string]struct{}{
	"button": {}, "link": {}, "menuitem": {}, "tab": {}, "option": {},
	"checkbox": {}, "radio": {},
}

var clickTags = map[string]struct{}{
	"a": {}, "button": {},
}

var selectTags = map[string]struct{}{
	"select": {},
}

var selectRoles = map[string]struct{}{
	"combobox": {}, "listbox": {}, "option": {},
}

// FilterByAction implements spec §4.4 Step A, returning the subset of
// descriptors eligible for the given action. ActionNavigate bypasses the
// matcher entirely per spec — callers must not call FilterByAction for it.
func FilterByAction(descriptors []*enginetypes.Descriptor, action enginetypes.Action) []*enginetypes.Descriptor {
	switch action {
	case enginetypes.ActionClick:
		return filter(descriptors, isClickable)
	case enginetypes.ActionType:
		return filter(descriptors, isTypeable)
	case enginetypes.ActionSelect:
		return filter(descriptors, isSelectable)
	case enginetypes.ActionValidate:
		return filter(descriptors, isTextBearing)
	case enginetypes.ActionHover, enginetypes.ActionWait:
		// No tag filter named in spec §4.4 for hover/wait; treat like click's
		// interactivity test since both target an existing interactive element.
		return filter(descriptors, isClickable)
	default:
		return descriptors
	}
}

func filter(descriptors []*enginetypes.Descriptor, keep func(*enginetypes.Descriptor) bool) []*enginetypes.Descriptor {
	out := make([]*enginetypes.Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func isClickable(d *enginetypes.Descriptor) bool {
	tag := strings.ToLower(d.Tag)
	role := strings.ToLower(d.Role)
	if _, ok := clickTags[tag]; ok {
		return true
	}
	if _, ok := clickRoles[role]; ok {
		return true
	}
	if tag == "a" {
		if _, ok := d.Attr("href"); ok {
			return true
		}
	}
	return hasInteractivityMarker(d)
}

func hasInteractivityMarker(d *enginetypes.Descriptor) bool {
	if _, ok := d.Attr("onclick"); ok {
		return true
	}
	if _, ok := d.Attr("data-click"); ok {
		return true
	}
	if role, ok := d.Attr("role"); ok && strings.EqualFold(role, "button") {
		return true
	}
	if ti, ok := d.Attr("tabindex"); ok {
		if ti != "-1" {
			return true
		}
	}
	return false
}

func isTypeable(d *enginetypes.Descriptor) bool {
	tag := strings.ToLower(d.Tag)
	if tag == "input" {
		if t, ok := d.Attr("type"); ok && strings.EqualFold(t, "hidden") {
			return false
		}
		return true
	}
	if tag == "textarea" {
		return true
	}
	if ce, ok := d.Attr("contenteditable"); ok && strings.EqualFold(ce, "true") {
		return true
	}
	return false
}

func isSelectable(d *enginetypes.Descriptor) bool {
	tag := strings.ToLower(d.Tag)
	role := strings.ToLower(d.Role)
	if _, ok := selectTags[tag]; ok {
		return true
	}
	if _, ok := selectRoles[role]; ok {
		return true
	}
	if _, ok := d.Attr("data-value"); ok {
		return true
	}
	return false
}

func isTextBearing(d *enginetypes.Descriptor) bool {
	return strings.TrimSpace(d.Text) != ""
}
