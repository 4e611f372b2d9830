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
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/selectorengine/core/enginetypes"
	"github.com/selectorengine/core/vectorindex"
)

func descriptor(id, tag, role, text string, attrs map[string]string, frameHash string) *enginetypes.Descriptor {
	return &enginetypes.Descriptor{
		BackendID: id,
		Tag:       tag,
		Role:      role,
		Text:      text,
		Attrs:     attrs,
		FrameHash: frameHash,
		Visible:   true,
	}
}

func TestFilterByAction_Click(t *testing.T) {
	descs := []*enginetypes.Descriptor{
		descriptor("1", "button", "", "Submit", nil, "f1"),
		descriptor("2", "div", "", "not clickable", nil, "f1"),
		descriptor("3", "a", "", "link", map[string]string{"href": "/x"}, "f1"),
		descriptor("4", "div", "", "", map[string]string{"onclick": "doThing()"}, "f1"),
	}
	out := FilterByAction(descs, enginetypes.ActionClick)
	ids := make([]string, 0, len(out))
	for _, d := range out {
		ids = append(ids, d.BackendID)
	}
	require.ElementsMatch(t, []string{"1", "3", "4"}, ids)
}

func TestFilterByAction_Type(t *testing.T) {
	descs := []*enginetypes.Descriptor{
		descriptor("1", "input", "", "", map[string]string{"type": "text"}, "f1"),
		descriptor("2", "input", "", "", map[string]string{"type": "hidden"}, "f1"),
		descriptor("3", "textarea", "", "", nil, "f1"),
		descriptor("4", "div", "", "", map[string]string{"contenteditable": "true"}, "f1"),
		descriptor("5", "div", "", "plain text", nil, "f1"),
	}
	out := FilterByAction(descs, enginetypes.ActionType)
	ids := make([]string, 0, len(out))
	for _, d := range out {
		ids = append(ids, d.BackendID)
	}
	require.ElementsMatch(t, []string{"1", "3", "4"}, ids)
}

func TestFilterByAction_Select(t *testing.T) {
	descs := []*enginetypes.Descriptor{
		descriptor("1", "select", "", "", nil, "f1"),
		descriptor("2", "div", "combobox", "", nil, "f1"),
		descriptor("3", "div", "", "", map[string]string{"data-value": "x"}, "f1"),
		descriptor("4", "div", "", "nope", nil, "f1"),
	}
	out := FilterByAction(descs, enginetypes.ActionSelect)
	ids := make([]string, 0, len(out))
	for _, d := range out {
		ids = append(ids, d.BackendID)
	}
	require.ElementsMatch(t, []string{"1", "2", "3"}, ids)
}

func TestFilterByAction_Validate(t *testing.T) {
	descs := []*enginetypes.Descriptor{
		descriptor("1", "span", "", "Hello", nil, "f1"),
		descriptor("2", "span", "", "   ", nil, "f1"),
	}
	out := FilterByAction(descs, enginetypes.ActionValidate)
	require.Len(t, out, 1)
	require.Equal(t, "1", out[0].BackendID)
}

func TestExactMatch_EqualityBeatsSubstring(t *testing.T) {
	descs := []*enginetypes.Descriptor{
		descriptor("1", "button", "", "Sign In", nil, "f1"),
		descriptor("2", "button", "", "Sign In Now", nil, "f1"),
	}
	hits := ExactMatch(descs, "Sign In")
	require.Len(t, hits, 2)
	for _, h := range hits {
		if h.Descriptor.BackendID == "1" {
			require.Equal(t, float32(1.0), h.Score)
		} else {
			require.Equal(t, float32(0.6), h.Score)
		}
	}
}

func TestExactMatch_EmptyTargetYieldsNoHits(t *testing.T) {
	descs := []*enginetypes.Descriptor{descriptor("1", "button", "", "Sign In", nil, "f1")}
	require.Nil(t, ExactMatch(descs, "  "))
}

func TestSingleSurvivor(t *testing.T) {
	d1 := descriptor("1", "button", "", "Sign In", nil, "f1")
	d2 := descriptor("2", "button", "", "Sign In", nil, "f1")

	single := []ExactHit{{Descriptor: d1, Score: 1.0}, {Descriptor: d1, Score: 1.0}}
	winner, ok := SingleSurvivor(single)
	require.True(t, ok)
	require.Same(t, d1, winner)

	multiple := []ExactHit{{Descriptor: d1, Score: 1.0}, {Descriptor: d2, Score: 0.6}}
	_, ok = SingleSurvivor(multiple)
	require.False(t, ok)

	_, ok = SingleSurvivor(nil)
	require.False(t, ok)
}

// fakeEmbedProvider returns a fixed vector per call, or an error when
// failQuery/failElements is set.
type fakeEmbedProvider struct {
	queryVec    []float32
	failQuery   bool
	elementVecs map[string][]float32
}

func (f *fakeEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.failQuery {
		return nil, errTest
	}
	return f.queryVec, nil
}

func (f *fakeEmbedProvider) EmbedElements(ctx context.Context, fragments []string) ([][]float32, error) {
	out := make([][]float32, len(fragments))
	for i, frag := range fragments {
		out[i] = f.elementVecs[frag]
	}
	return out, nil
}

type fakeRerankProvider struct {
	scores  map[string]float32
	failOn  string
	calls   []string
}

func (f *fakeRerankProvider) Score(ctx context.Context, queryText, elementFragment string) (float32, error) {
	f.calls = append(f.calls, elementFragment)
	if f.failOn != "" && strings.Contains(elementFragment, f.failOn) {
		return 0, errTest
	}
	for k, v := range f.scores {
		if strings.Contains(elementFragment, k) {
			return v, nil
		}
	}
	return 0, nil
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("boom")

func TestSemantic_RanksByRerankScore(t *testing.T) {
	d1 := descriptor("1", "button", "", "Sign In", nil, "f1")
	d2 := descriptor("2", "button", "", "Register", nil, "f1")

	idx := vectorindex.New("f1")
	idx.AddBatch([]vectorindex.Entry{
		{DescriptorID: "1", Vector: []float32{1, 0}},
		{DescriptorID: "2", Vector: []float32{0, 1}},
	})

	embed := &fakeEmbedProvider{queryVec: []float32{1, 0}}
	rerank := &fakeRerankProvider{scores: map[string]float32{"Sign In": 0.9, "Register": 0.2}}

	result := Semantic(context.Background(), embed, rerank, idx, []*enginetypes.Descriptor{d1, d2},
		"sign in", 5, time.Second, time.Second, nil)

	require.Empty(t, result.DegradedReasons)
	require.Len(t, result.Scored, 2)
	require.Equal(t, "1", result.Scored[0].Descriptor.BackendID)
	require.InDelta(t, 0.9, result.Scored[0].Score, 1e-6)
}

func TestSemantic_DegradesOnEmbeddingFailure(t *testing.T) {
	d1 := descriptor("1", "button", "", "Sign In", nil, "f1")
	idx := vectorindex.New("f1")
	idx.Add(vectorindex.Entry{DescriptorID: "1", Vector: []float32{1, 0}})

	embed := &fakeEmbedProvider{failQuery: true}
	rerank := &fakeRerankProvider{}

	result := Semantic(context.Background(), embed, rerank, idx, []*enginetypes.Descriptor{d1},
		"sign in", 5, time.Second, time.Second, nil)

	require.Equal(t, []string{"embedding_timeout"}, result.DegradedReasons)
	require.Empty(t, result.Scored)
}

func TestSemantic_FallsBackToShortlistOrderOnRerankFailure(t *testing.T) {
	d1 := descriptor("1", "button", "", "Sign In", nil, "f1")
	d2 := descriptor("2", "button", "", "Register", nil, "f1")

	idx := vectorindex.New("f1")
	idx.AddBatch([]vectorindex.Entry{
		{DescriptorID: "1", Vector: []float32{1, 0}},
		{DescriptorID: "2", Vector: []float32{0, 1}},
	})

	embed := &fakeEmbedProvider{queryVec: []float32{1, 0}}
	rerank := &fakeRerankProvider{failOn: "Sign In"}

	result := Semantic(context.Background(), embed, rerank, idx, []*enginetypes.Descriptor{d1, d2},
		"sign in", 5, time.Second, time.Second, nil)

	require.Equal(t, []string{"rerank_timeout"}, result.DegradedReasons)
	require.NotEmpty(t, result.Scored)
}

func TestSemantic_LexicalShortlistDisplacesWeakCosineMatch(t *testing.T) {
	// d1 is the strong cosine hit. d3 weakly aligns with the query vector
	// (enough to make the vector search's top-2) but shares no terms with
	// the target. d2 is orthogonal to the query (excluded from the raw
	// vector top-2) but lexically matches "checkout" exactly — the BM25
	// shortlist signal should pull it in ahead of d3 once blended in.
	d1 := descriptor("1", "button", "", "Sign In", nil, "f1")
	d2 := descriptor("2", "button", "", "checkout", nil, "f1")
	d3 := descriptor("3", "button", "", "unrelated", nil, "f1")

	idx := vectorindex.New("f1")
	idx.AddBatch([]vectorindex.Entry{
		{DescriptorID: "1", Vector: []float32{1, 0}},
		{DescriptorID: "2", Vector: []float32{0, 1}},
		{DescriptorID: "3", Vector: []float32{0.1, 0.995}},
	})

	embed := &fakeEmbedProvider{queryVec: []float32{1, 0}}
	rerank := &fakeRerankProvider{scores: map[string]float32{"Sign In": 0.1, "checkout": 0.95, "unrelated": 0.05}}

	result := Semantic(context.Background(), embed, rerank, idx, []*enginetypes.Descriptor{d1, d2, d3},
		"checkout", 2, time.Second, time.Second, nil)

	require.Empty(t, result.DegradedReasons)
	require.Len(t, result.Scored, 2)
	gotIDs := []string{result.Scored[0].Descriptor.BackendID, result.Scored[1].Descriptor.BackendID}
	require.ElementsMatch(t, []string{"1", "2"}, gotIDs, "BM25 should have pulled d2 in ahead of the weak-cosine d3")
}

func TestBuildShortlist_CapsAtShortlistK(t *testing.T) {
	d1 := descriptor("1", "button", "", "checkout", nil, "f1")
	d2 := descriptor("2", "button", "", "checkout now", nil, "f1")
	d3 := descriptor("3", "button", "", "unrelated", nil, "f1")
	byID := map[string]*enginetypes.Descriptor{"1": d1, "2": d2, "3": d3}
	hits := []vectorindex.Result{{DescriptorID: "3", Score: 0.01}}

	shortlist, scores := buildShortlist([]*enginetypes.Descriptor{d1, d2, d3}, byID, hits, "checkout", 1)

	require.Len(t, shortlist, 1)
	require.Contains(t, scores, shortlist[0].BackendID)
}

func TestContextFragment_BoundedToMaxSiblings(t *testing.T) {
	d := descriptor("1", "button", "", "Sign In", nil, "f1")
	var siblings []*enginetypes.Descriptor
	for i := 0; i < 10; i++ {
		siblings = append(siblings, descriptor(string(rune('a'+i)), "div", "", "sibling", nil, "f1"))
	}
	all := append([]*enginetypes.Descriptor{d}, siblings...)
	frag := contextFragment(d, all)
	require.Equal(t, 4, strings.Count(frag, "<div"))
}
