// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package heuristic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/selectorengine/core/enginehash"
	"github.com/selectorengine/core/engineconfig"
	"github.com/selectorengine/core/enginetypes"
)

func descriptor(id, tag, role, text string, attrs map[string]string) *enginetypes.Descriptor {
	return &enginetypes.Descriptor{
		BackendID: id,
		Tag:       tag,
		Role:      role,
		Text:      text,
		Attrs:     attrs,
		Visible:   true,
	}
}

func TestScore_ExactIDMatch(t *testing.T) {
	d := descriptor("1", "input", "", "", map[string]string{"id": "email-field"})
	intent := enginetypes.Intent{Target: "email", LabelKey: "email-field"}
	r := Score(d, intent, engineconfig.DefaultHeuristicWeights(), nil, nil, nil)
	require.Contains(t, labels(r), "exact_id_match")
}

func TestScore_TestIDMatch(t *testing.T) {
	d := descriptor("1", "button", "", "", map[string]string{"data-testid": "submit-button"})
	intent := enginetypes.Intent{Target: "submit"}
	r := Score(d, intent, engineconfig.DefaultHeuristicWeights(), nil, nil, nil)
	require.Contains(t, labels(r), "testid_match")
}

func TestScore_TypeAttrMatchesAction(t *testing.T) {
	d := descriptor("1", "input", "", "", map[string]string{"type": "email"})
	intent := enginetypes.Intent{Target: "email address"}
	r := Score(d, intent, engineconfig.DefaultHeuristicWeights(), nil, nil, nil)
	require.Contains(t, labels(r), "type_attr_matches_action")
}

func TestScore_HiddenOrDisabledPenalty(t *testing.T) {
	d := descriptor("1", "button", "", "Submit", map[string]string{"disabled": "true"})
	d.Visible = true
	intent := enginetypes.Intent{Target: "submit"}
	r := Score(d, intent, engineconfig.DefaultHeuristicWeights(), nil, nil, nil)
	require.Contains(t, labels(r), "hidden_or_disabled")
	require.NotContains(t, labels(r), "visible_enabled")
}

func TestScore_VolatileIDPenalty(t *testing.T) {
	d := descriptor("1", "div", "", "", map[string]string{"id": "x-a1b2c3d4"})
	stripper := enginehash.NewVolatileAttrStripper(nil)
	r := Score(d, enginetypes.Intent{}, engineconfig.DefaultHeuristicWeights(), stripper, nil, nil)
	require.Contains(t, labels(r), "volatile_id_or_class")
}

func TestScore_RoleTagMismatchForClick(t *testing.T) {
	d := descriptor("1", "div", "presentation", "", map[string]string{"onclick": "go()"})
	intent := enginetypes.Intent{Action: enginetypes.ActionClick}
	r := Score(d, intent, engineconfig.DefaultHeuristicWeights(), nil, nil, nil)
	require.Contains(t, labels(r), "role_tag_mismatch")
}

func TestScore_EntityTypeMismatch(t *testing.T) {
	target := descriptor("1", "div", "", "red", nil)
	sibling := descriptor("2", "div", "", "iPhone 15", nil)
	categories := map[string][]string{
		"color":     {"red", "blue"},
		"electronic": {"iphone", "laptop"},
	}
	intent := enginetypes.Intent{Target: "iphone"}
	r := Score(target, intent, engineconfig.DefaultHeuristicWeights(), nil, categories, []*enginetypes.Descriptor{target, sibling})
	require.Contains(t, labels(r), "entity_type_mismatch")
}

func TestFuse_OrdersByScoreAndSelectsAboveFloor(t *testing.T) {
	d1 := descriptor("1", "button", "", "Sign In", nil)
	d2 := descriptor("2", "button", "", "Register", nil)
	results := []Result{
		{Descriptor: d1, Score: 0.5},
		{Descriptor: d2, Score: 0.1},
	}
	weights := engineconfig.DefaultFusionWeights()
	fused := Fuse(results, map[string]float64{"1": 0.8, "2": 0.2}, nil, weights)
	require.Equal(t, "1", fused[0].Descriptor.BackendID)

	winner, nearMisses, ok := Select(fused, weights.Floor)
	require.True(t, ok)
	require.Equal(t, "1", winner.Descriptor.BackendID)
	require.Len(t, nearMisses, 1)
}

func TestSelect_NoneClearsFloor(t *testing.T) {
	d1 := descriptor("1", "button", "", "", nil)
	fused := []Fused{{Descriptor: d1, Score: 0.01}}
	_, nearMisses, ok := Select(fused, 0.25)
	require.False(t, ok)
	require.Len(t, nearMisses, 1)
}

func labels(r Result) []string {
	out := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		out = append(out, reason.Label)
	}
	return out
}
