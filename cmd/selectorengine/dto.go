// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/selectorengine/core/enginehash"
	"github.com/selectorengine/core/enginetypes"
)

// The wire DTOs below mirror cmd/aleutian's DirectChatRequest/Response
// pattern: plain JSON-tagged structs at the HTTP boundary, converted to and
// from the core's untagged domain types rather than tagging the domain
// types themselves.

type rectDTO struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type rawElementDTO struct {
	BackendID string            `json:"backend_id"`
	Tag       string            `json:"tag"`
	Role      string            `json:"role,omitempty"`
	Text      string            `json:"text,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	FramePath []string          `json:"frame_path,omitempty"`
	InShadow  bool              `json:"in_shadow,omitempty"`
	Visible   bool              `json:"visible"`
	Bbox      *rectDTO          `json:"bbox,omitempty"`
}

func (e rawElementDTO) toDomain() enginehash.RawElement {
	var bbox *enginetypes.Rect
	if e.Bbox != nil {
		bbox = &enginetypes.Rect{X: e.Bbox.X, Y: e.Bbox.Y, Width: e.Bbox.Width, Height: e.Bbox.Height}
	}
	return enginehash.RawElement{
		BackendID: e.BackendID,
		Tag:       e.Tag,
		Role:      e.Role,
		Text:      e.Text,
		Attrs:     e.Attrs,
		FramePath: e.FramePath,
		InShadow:  e.InShadow,
		Visible:   e.Visible,
		Bbox:      bbox,
	}
}

type rawSnapshotDTO struct {
	Origin         string          `json:"origin"`
	NormalizedPath string          `json:"normalized_path"`
	Elements       []rawElementDTO `json:"elements"`
}

func (s rawSnapshotDTO) toDomain() enginehash.RawSnapshot {
	elements := make([]enginehash.RawElement, len(s.Elements))
	for i, e := range s.Elements {
		elements[i] = e.toDomain()
	}
	return enginehash.RawSnapshot{Origin: s.Origin, NormalizedPath: s.NormalizedPath, Elements: elements}
}

type intentDTO struct {
	Action      string `json:"action"`
	Target      string `json:"target"`
	Value       string `json:"value,omitempty"`
	LabelKey    string `json:"label_key,omitempty"`
	HintContext string `json:"hint_context,omitempty"`
}

func (i intentDTO) toDomain() enginetypes.Intent {
	return enginetypes.Intent{
		Action:      enginetypes.Action(i.Action),
		Target:      i.Target,
		Value:       i.Value,
		LabelKey:    i.LabelKey,
		HintContext: i.HintContext,
	}
}

type nearMissDTO struct {
	XPath      string   `json:"xpath"`
	Confidence float32  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
}

type retrieveResponseDTO struct {
	Status          string        `json:"status"`
	XPath           string        `json:"xpath,omitempty"`
	Confidence      float32       `json:"confidence"`
	Strategy        string        `json:"strategy,omitempty"`
	FramePath       []string      `json:"frame_path,omitempty"`
	NearMisses      []nearMissDTO `json:"near_misses,omitempty"`
	Mode            string        `json:"mode,omitempty"`
	DegradedReasons []string      `json:"degraded_reasons,omitempty"`
}

func retrieveResponseFrom(r enginetypes.RetrieveResult) retrieveResponseDTO {
	nearMisses := make([]nearMissDTO, len(r.NearMisses))
	for i, nm := range r.NearMisses {
		nearMisses[i] = nearMissDTO{XPath: nm.XPath, Confidence: nm.Confidence, Reasons: nm.Reasons}
	}
	return retrieveResponseDTO{
		Status:          string(r.Status),
		XPath:           r.XPath,
		Confidence:      r.Confidence,
		Strategy:        r.Strategy,
		FramePath:       r.FramePath,
		NearMisses:      nearMisses,
		Mode:            string(r.Mode),
		DegradedReasons: r.DegradedReasons,
	}
}

type retrieveRequestDTO struct {
	Intent   intentDTO      `json:"intent"`
	Snapshot rawSnapshotDTO `json:"snapshot"`
}

type reportOutcomeRequestDTO struct {
	PageSignature string `json:"page_signature"`
	FrameHash     string `json:"frame_hash"`
	LabelKey      string `json:"label_key"`
	XPath         string `json:"xpath"`
	Success       bool   `json:"success"`
	Strategy      string `json:"strategy,omitempty"`
}
