// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndex_SearchRanksByCosineSimilarityTiesBrokenByOrder(t *testing.T) {
	idx := New("frame1")
	idx.AddBatch([]Entry{
		{DescriptorID: "a", Vector: []float32{1, 0}},
		{DescriptorID: "b", Vector: []float32{1, 0}}, // tie with a, added later
		{DescriptorID: "c", Vector: []float32{0, 1}},
	})

	results, err := idx.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].DescriptorID, "tie broken by document order")
	require.Equal(t, "b", results[1].DescriptorID)
}

func TestIndex_ContainsAllAndMissing(t *testing.T) {
	idx := New("frame1")
	idx.AddBatch([]Entry{
		{DescriptorID: "a", Vector: []float32{1, 0}},
		{DescriptorID: "b", Vector: []float32{0, 1}},
	})

	require.True(t, idx.ContainsAll([]string{"a", "b"}))
	require.False(t, idx.ContainsAll([]string{"a", "c"}))
	require.ElementsMatch(t, []string{"c"}, idx.Missing([]string{"a", "b", "c"}))
}

func TestIndex_StaleDetectsRemovedDescriptors(t *testing.T) {
	idx := New("frame1")
	idx.AddBatch([]Entry{
		{DescriptorID: "a", Vector: []float32{1, 0}},
		{DescriptorID: "b", Vector: []float32{0, 1}},
	})
	stale := idx.Stale([]string{"a"})
	require.Equal(t, []string{"b"}, stale)
}

func TestIndex_RemoveAndClone(t *testing.T) {
	idx := New("frame1")
	idx.AddBatch([]Entry{
		{DescriptorID: "a", Vector: []float32{1, 0}},
		{DescriptorID: "b", Vector: []float32{0, 1}},
	})
	clone := idx.Clone()

	removed := idx.Remove([]string{"a"})
	require.Equal(t, 1, removed)
	require.False(t, idx.ContainsAll([]string{"a"}))

	// clone is unaffected by mutation to the original.
	require.True(t, clone.ContainsAll([]string{"a", "b"}))
}

func TestPlan_ColdWhenNoPriorIndex(t *testing.T) {
	plan := Plan(nil, []string{"a", "b"})
	require.Equal(t, "cold", plan.Mode)
	require.ElementsMatch(t, []string{"a", "b"}, plan.ToEmbed)
}

func TestPlan_WarmWhenSubsetUnchanged(t *testing.T) {
	idx := New("frame1")
	idx.AddBatch([]Entry{
		{DescriptorID: "a", Vector: []float32{1}},
		{DescriptorID: "b", Vector: []float32{1}},
	})
	plan := Plan(idx, []string{"a", "b"})
	require.Equal(t, "warm", plan.Mode)
	require.Empty(t, plan.ToEmbed)
}

func TestPlan_DeltaWhenSmallChange(t *testing.T) {
	idx := New("frame1")
	idx.AddBatch([]Entry{
		{DescriptorID: "a", Vector: []float32{1}},
		{DescriptorID: "b", Vector: []float32{1}},
		{DescriptorID: "c", Vector: []float32{1}},
	})
	// one new descriptor out of 3 current = 33% change, below the 50% ceiling
	plan := Plan(idx, []string{"a", "b", "d"})
	require.Equal(t, "delta", plan.Mode)
	require.Equal(t, []string{"d"}, plan.ToEmbed)
	require.Equal(t, []string{"c"}, plan.ToRemove)
}

func TestPlan_FullRebuildWhenDeltaExceedsCeiling(t *testing.T) {
	idx := New("frame1")
	idx.AddBatch([]Entry{{DescriptorID: "a", Vector: []float32{1}}})
	// current frame entirely different from the one-entry prior index: 100% change
	plan := Plan(idx, []string{"b", "c", "d"})
	require.Equal(t, "cold", plan.Mode)
	require.True(t, plan.FullRebuild)
}
