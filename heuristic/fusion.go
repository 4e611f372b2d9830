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
	"sort"

	"github.com/selectorengine/core/engineconfig"
	"github.com/selectorengine/core/enginetypes"
)

// Fused is one candidate's final fusion score, per spec §4.5.
type Fused struct {
	Descriptor     *enginetypes.Descriptor
	Semantic       float64
	Heuristic      float64
	PromotionBoost float64
	Score          float64
	Reasons        []Reason
}

// Fuse computes spec §4.5's `S = α·semantic + β·heuristic + γ·promotion_boost`
// for every candidate, then orders them by descending score with ties broken
// by (1) document order within frame — callers pass descriptors already in
// that order — then (2) shallower frame_path.
//
// semanticScores and promotionBoosts are keyed by BackendID; a candidate
// absent from either map is treated as 0 on that axis (e.g. the semantic
// stage was skipped per Step B's single-survivor short path).
func Fuse(
	heuristicResults []Result,
	semanticScores map[string]float64,
	promotionBoosts map[string]float64,
	weights engineconfig.FusionWeights,
) []Fused {
	fused := make([]Fused, 0, len(heuristicResults))
	for _, r := range heuristicResults {
		id := r.Descriptor.BackendID
		sem := semanticScores[id]
		promo := promotionBoosts[id]
		s := weights.Alpha*sem + weights.Beta*r.Score + weights.Gamma*promo
		fused = append(fused, Fused{
			Descriptor:     r.Descriptor,
			Semantic:       sem,
			Heuristic:      r.Score,
			PromotionBoost: promo,
			Score:          s,
			Reasons:        r.Reasons,
		})
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return len(fused[i].Descriptor.FramePath) < len(fused[j].Descriptor.FramePath)
	})
	return fused
}

// Select returns the top-scoring Fused candidate clearing the floor τ, plus
// up to 3 near-misses for diagnostics, per spec §4.5's final selection
// rule. ok is false when no candidate clears the floor.
func Select(fused []Fused, floor float64) (winner Fused, nearMisses []enginetypes.NearMiss, ok bool) {
	if len(fused) == 0 {
		return Fused{}, nil, false
	}
	if fused[0].Score < floor {
		return Fused{}, topNearMisses(fused, 3), false
	}
	return fused[0], topNearMisses(fused[1:], 3), true
}

func topNearMisses(fused []Fused, n int) []enginetypes.NearMiss {
	if len(fused) > n {
		fused = fused[:n]
	}
	out := make([]enginetypes.NearMiss, 0, len(fused))
	for _, f := range fused {
		reasons := make([]string, 0, len(f.Reasons))
		for _, r := range f.Reasons {
			reasons = append(reasons, r.Label)
		}
		out = append(out, enginetypes.NearMiss{
			Confidence: float32(f.Score),
			Reasons:    reasons,
		})
	}
	return out
}
