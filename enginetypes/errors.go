// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enginetypes

import "fmt"

// ErrorKind classifies engine errors per spec §7: Recoverable errors degrade
// and are recorded in RetrieveResult.DegradedReasons; Operational errors
// flow back as a Status; Fatal errors abort the call.
type ErrorKind string

const (
	// KindCanonicalizationFailed is fatal: the raw snapshot input lacked the
	// minimum required fields.
	KindCanonicalizationFailed ErrorKind = "canonicalization_failed"
	// KindConfigurationInvalid is fatal: an engine configuration value is
	// out of range (e.g. a negative fusion weight).
	KindConfigurationInvalid ErrorKind = "configuration_invalid"
	// KindSynthesisFailed is operational: every synthesizer strategy
	// produced a non-unique XPath.
	KindSynthesisFailed ErrorKind = "synthesis_failed"
	// KindElementNotFound is operational: no candidate cleared the fusion
	// floor.
	KindElementNotFound ErrorKind = "element_not_found"
)

// EngineError is the engine's single error type, carrying enough context for
// the orchestrator to route it into spec §7's three-tier taxonomy without
// string matching.
type EngineError struct {
	Kind    ErrorKind
	Message string
	// Recoverable marks an error that should degrade the pipeline rather
	// than abort it (spec §7's first tier). Recoverable errors are never
	// constructed with Kind set to one of the Fatal/Operational kinds above;
	// they carry a free-form reason string instead (e.g. "embedding_timeout").
	Recoverable bool
	Reason      string
}

func (e *EngineError) Error() string {
	if e.Recoverable {
		return fmt.Sprintf("recoverable: %s", e.Reason)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// NewCanonicalizationFailed builds a fatal CanonicalizationFailed error.
func NewCanonicalizationFailed(reason string) error {
	return &EngineError{Kind: KindCanonicalizationFailed, Message: reason}
}

// NewConfigurationInvalid builds a fatal ConfigurationInvalid error.
func NewConfigurationInvalid(reason string) error {
	return &EngineError{Kind: KindConfigurationInvalid, Message: reason}
}

// NewSynthesisFailed builds an operational SynthesisFailed error.
func NewSynthesisFailed(reason string) error {
	return &EngineError{Kind: KindSynthesisFailed, Message: reason}
}

// NewRecoverable builds a recoverable error tagged with a degraded-mode
// reason string (e.g. "embedding_timeout", "cache_disk_unavailable").
func NewRecoverable(reason string) error {
	return &EngineError{Recoverable: true, Reason: reason}
}

// KindOf extracts the ErrorKind from err, if it is an *EngineError.
func KindOf(err error) (ErrorKind, bool) {
	ee, ok := err.(*EngineError)
	if !ok || ee.Recoverable {
		return "", false
	}
	return ee.Kind, true
}

// ReasonOf extracts the degraded-mode reason from err, if it is a
// recoverable *EngineError.
func ReasonOf(err error) (string, bool) {
	ee, ok := err.(*EngineError)
	if !ok || !ee.Recoverable {
		return "", false
	}
	return ee.Reason, true
}
