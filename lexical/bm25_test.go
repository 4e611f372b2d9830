// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lexical

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/selectorengine/core/enginetypes"
)

func TestTokenize_CamelCaseAndNoiseWords(t *testing.T) {
	terms := Tokenize("Click the SignInButton to submit")
	_, hasThe := terms["the"]
	require.False(t, hasThe, "noise words must be dropped")
	_, hasSign := terms["sign"]
	require.True(t, hasSign)
	_, hasIn := terms["in"]
	require.True(t, hasIn)
	_, hasButton := terms["button"]
	require.False(t, hasButton, "button is a noise word in this domain")
}

func TestBuild_EmptyDocsIsEmpty(t *testing.T) {
	idx := Build(nil)
	require.True(t, idx.IsEmpty())
	require.Empty(t, idx.Score("sign in"))
}

func TestIndex_ScoreRanksExactTermMatchHighest(t *testing.T) {
	docs := []Document{
		BuildDocument("signin-btn", "button sign in submit"),
		BuildDocument("unrelated-btn", "button cancel dialog"),
	}
	idx := Build(docs)
	scores := idx.Score("sign in")

	require.Contains(t, scores, "signin-btn")
	require.NotContains(t, scores, "unrelated-btn")
	require.Equal(t, 1.0, scores["signin-btn"], "sole matching doc normalizes to 1.0")
}

func TestBuildIndex_FromDescriptors(t *testing.T) {
	descriptors := []*enginetypes.Descriptor{
		{BackendID: "1", Tag: "button", Role: "button", Text: "Sign in", Attrs: map[string]string{"aria-label": "Sign in"}},
		{BackendID: "2", Tag: "a", Role: "link", Text: "Forgot password"},
	}
	idx := BuildIndex(descriptors)
	scores := idx.Score("sign in")
	require.Contains(t, scores, "1")
	require.NotContains(t, scores, "2")
}
