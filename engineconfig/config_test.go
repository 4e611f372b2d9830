// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engineconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesSpecConstants(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	require.Equal(t, 1.0, cfg.Fusion.Alpha)
	require.Equal(t, 0.5, cfg.Fusion.Beta)
	require.Equal(t, 0.2, cfg.Fusion.Gamma)
	require.Equal(t, 0.25, cfg.Fusion.Floor)

	require.Equal(t, 0.30, cfg.Heuristic.ExactIDMatch)
	require.Equal(t, -0.40, cfg.Heuristic.HiddenOrDisabled)

	require.Equal(t, 32, cfg.ShortlistK)
	require.Len(t, cfg.VolatileAttributePatterns, 3)
	require.Contains(t, cfg.EntityCategories, "phone")
}

func TestFromYAML_OverridesSubsetKeepsRestAtDefault(t *testing.T) {
	cfg, err := FromYAML([]byte(`
fusion:
  floor: 0.5
shortlist_k: 8
`))
	require.NoError(t, err)
	require.Equal(t, 0.5, cfg.Fusion.Floor)
	require.Equal(t, 1.0, cfg.Fusion.Alpha, "unset fields fall back to defaults")
	require.Equal(t, 8, cfg.ShortlistK)
}

func TestFromYAML_NegativeFusionWeightIsConfigurationInvalid(t *testing.T) {
	_, err := FromYAML([]byte(`
fusion:
  alpha: -1.0
`))
	require.Error(t, err)
}
