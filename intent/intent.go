// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent validates enginetypes.Intent records at the collaborator
// boundary (spec §6.1), before the orchestrator spends any work
// canonicalizing a snapshot or consulting the promotion store. A
// structurally malformed Intent (an Action the engine doesn't recognize)
// is a configuration error to report back to the caller immediately, not
// a failed selection to retry or degrade around.
//
// Grounded on sources.go's validator.Validate(models) use: one shared
// *validator.Validate, struct tags on a small boundary-facing record, a
// single Struct call mapped to the caller's error vocabulary.
package intent

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/selectorengine/core/enginetypes"
)

var validate = validator.New()

// record mirrors the fields of enginetypes.Intent that carry a structural
// constraint. enginetypes.Intent itself stays a plain data struct; the
// validate tags live here so the core types package carries no
// third-party dependency.
type record struct {
	Action enginetypes.Action `validate:"required,oneof=click type select hover navigate validate wait"`
}

// Validate checks i's structural well-formedness. It returns a fatal
// ConfigurationInvalid error when Action is empty or not one of the
// engine's known actions; it never rejects on Target, since an empty or
// unusual Target is a normal retrieval outcome (see TargetMissing), not a
// malformed request.
func Validate(i enginetypes.Intent) error {
	if err := validate.Struct(record{Action: i.Action}); err != nil {
		return enginetypes.NewConfigurationInvalid(fmt.Sprintf("intent: %s", err.Error()))
	}
	return nil
}

// RequiresTarget reports whether action names an element by its Target in
// order to resolve to a selection. navigate bypasses the matcher entirely
// (the orchestrator rejects it before any Target check runs); every other
// action needs a Target.
func RequiresTarget(a enginetypes.Action) bool {
	return a != enginetypes.ActionNavigate
}

// TargetMissing reports whether i's Target is blank for an action that
// requires one. Spec §8's boundary property: a blank Target must always
// resolve to element_not_found, never an arbitrary default selection.
func TargetMissing(i enginetypes.Intent) bool {
	return RequiresTarget(i.Action) && strings.TrimSpace(i.Target) == ""
}
