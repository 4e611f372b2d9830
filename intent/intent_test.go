// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/selectorengine/core/enginetypes"
)

func TestValidate_KnownActionsPass(t *testing.T) {
	for _, a := range []enginetypes.Action{
		enginetypes.ActionClick, enginetypes.ActionType, enginetypes.ActionSelect,
		enginetypes.ActionHover, enginetypes.ActionNavigate, enginetypes.ActionValidate,
		enginetypes.ActionWait,
	} {
		require.NoError(t, Validate(enginetypes.Intent{Action: a}))
	}
}

func TestValidate_EmptyActionIsConfigurationInvalid(t *testing.T) {
	err := Validate(enginetypes.Intent{})
	require.Error(t, err)
	kind, ok := enginetypes.KindOf(err)
	require.True(t, ok)
	require.Equal(t, enginetypes.KindConfigurationInvalid, kind)
}

func TestValidate_UnknownActionIsConfigurationInvalid(t *testing.T) {
	err := Validate(enginetypes.Intent{Action: enginetypes.Action("scroll")})
	require.Error(t, err)
	kind, ok := enginetypes.KindOf(err)
	require.True(t, ok)
	require.Equal(t, enginetypes.KindConfigurationInvalid, kind)
}

func TestValidate_NeverRejectsOnTarget(t *testing.T) {
	require.NoError(t, Validate(enginetypes.Intent{Action: enginetypes.ActionClick, Target: ""}))
}

func TestRequiresTarget(t *testing.T) {
	require.False(t, RequiresTarget(enginetypes.ActionNavigate))
	for _, a := range []enginetypes.Action{
		enginetypes.ActionClick, enginetypes.ActionType, enginetypes.ActionSelect,
		enginetypes.ActionHover, enginetypes.ActionValidate, enginetypes.ActionWait,
	} {
		require.True(t, RequiresTarget(a))
	}
}

func TestTargetMissing(t *testing.T) {
	require.True(t, TargetMissing(enginetypes.Intent{Action: enginetypes.ActionClick, Target: ""}))
	require.True(t, TargetMissing(enginetypes.Intent{Action: enginetypes.ActionClick, Target: "   "}))
	require.False(t, TargetMissing(enginetypes.Intent{Action: enginetypes.ActionClick, Target: "Submit"}))
	require.False(t, TargetMissing(enginetypes.Intent{Action: enginetypes.ActionNavigate, Target: ""}))
}
