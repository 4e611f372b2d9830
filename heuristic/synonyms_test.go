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
	"gopkg.in/yaml.v3"
)

func TestLabelSynonyms_EmbeddedYAMLParses(t *testing.T) {
	var raw map[string][]string
	require.NoError(t, yaml.Unmarshal(defaultLabelSynonymsYAML, &raw))
	require.NotEmpty(t, raw)
	require.Contains(t, raw, "submit")
	require.Contains(t, raw["submit"], "send")
}

func TestLabelSynonyms_NoEmptyGroups(t *testing.T) {
	syn, err := LoadLabelSynonyms()
	require.NoError(t, err)
	for canon, group := range syn {
		require.NotEmptyf(t, group, "group %q has no synonyms", canon)
	}
}

func TestLabelSynonyms_Matches(t *testing.T) {
	syn := LabelSynonyms{"submit": {"send", "confirm"}}

	target := map[string]struct{}{"submit": {}}
	haystack := map[string]struct{}{"send": {}, "form": {}}
	require.True(t, syn.matches(target, haystack))

	otherHaystack := map[string]struct{}{"cancel": {}}
	require.False(t, syn.matches(target, otherHaystack))
}

func TestLabelSynonyms_GroupFor_UnknownWordReturnsNil(t *testing.T) {
	syn := LabelSynonyms{"submit": {"send"}}
	require.Nil(t, syn.groupFor("banana"))
}
