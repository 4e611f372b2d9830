// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enginehash

import (
	"sort"
	"strings"

	"github.com/selectorengine/core/enginetypes"
)

// maxTextLen is the text length cap of spec §4.1.
const maxTextLen = 512

// RawElement is the opaque per-element record handed in by the
// browser/snapshot collaborator (spec §6.1), joined by BackendID with the
// accessibility tree. The Canonicalizer is the only place that reads it.
type RawElement struct {
	BackendID string
	Tag       string
	Role      string
	Text      string
	Attrs     map[string]string
	FramePath []string
	InShadow  bool
	Visible   bool
	Bbox      *enginetypes.Rect
}

// RawSnapshot is the full capture handed to Canonicalize.
type RawSnapshot struct {
	Origin         string
	NormalizedPath string
	Elements       []RawElement
}

// Canonicalizer turns raw browser output into a Snapshot of Descriptors,
// per spec §4.1.
type Canonicalizer struct {
	stripper *VolatileAttrStripper
}

// NewCanonicalizer builds a Canonicalizer using the given volatile-attribute
// patterns (nil uses DefaultVolatilePatterns).
func NewCanonicalizer(patterns []VolatilePattern) *Canonicalizer {
	return &Canonicalizer{stripper: NewVolatileAttrStripper(patterns)}
}

// collapseWhitespace collapses runs of whitespace into single spaces and
// trims the result, per spec §4.1.
func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// Canonicalize converts a RawSnapshot into a Snapshot, computing every hash
// required by spec §3/§4.1. Returns CanonicalizationFailed if any element
// lacks Tag or BackendID.
func (c *Canonicalizer) Canonicalize(raw RawSnapshot) (*enginetypes.Snapshot, error) {
	descriptors := make([]enginetypes.Descriptor, 0, len(raw.Elements))

	// frameSkeletons accumulates, per frame_hash-to-be, the ordered list of
	// stripped child skeletons needed to compute that frame's hash. Frame
	// identity before its own hash is known is the joined FramePath.
	frameSkeletons := make(map[string][]frameChildSkeleton)
	frameOrder := make([]string, 0)

	type pending struct {
		idx       int
		framePath []string
		tag, role string
		strippedA map[string]string
		text      string
	}
	pendings := make([]pending, 0, len(raw.Elements))

	for _, el := range raw.Elements {
		if el.Tag == "" || el.BackendID == "" {
			return nil, enginetypes.NewCanonicalizationFailed("element missing tag or backend_id")
		}

		tag := strings.ToLower(el.Tag)
		stripped := c.stripper.Strip(el.Attrs)
		text := collapseWhitespace(el.Text)
		if len(text) > maxTextLen {
			text = text[:maxTextLen]
		}

		framePathKey := strings.Join(el.FramePath, "/")
		if _, seen := frameSkeletons[framePathKey]; !seen {
			frameOrder = append(frameOrder, framePathKey)
		}
		frameSkeletons[framePathKey] = append(frameSkeletons[framePathKey],
			NewFrameChildSkeleton(tag, el.Role, stripped))

		descriptors = append(descriptors, enginetypes.Descriptor{
			BackendID: el.BackendID,
			Tag:       tag,
			Role:      el.Role,
			Text:      text,
			TextFull:  el.Text,
			Attrs:     stripped,
			FramePath: el.FramePath,
			InShadow:  el.InShadow,
			Visible:   el.Visible,
			Bbox:      el.Bbox,
		})
		pendings = append(pendings, pending{
			idx:       len(descriptors) - 1,
			framePath: el.FramePath,
			tag:       tag,
			role:      el.Role,
			strippedA: stripped,
			text:      text,
		})
	}

	frameHashes := make(map[string]string, len(frameOrder))
	for _, key := range frameOrder {
		frameHashes[key] = FrameHash(frameSkeletons[key])
	}

	contentHashesInOrder := make([]string, len(descriptors))
	for _, p := range pendings {
		framePathKey := strings.Join(p.framePath, "/")
		fh := frameHashes[framePathKey]
		descriptors[p.idx].FrameHash = fh
		ch := ContentHash(p.tag, p.role, p.strippedA, p.text, p.framePath)
		descriptors[p.idx].ContentHash = ch
		contentHashesInOrder[p.idx] = ch
	}

	domHash := DomHash(contentHashesInOrder)
	domSkeletonHash := domSkeletonFromFrames(frameOrder, frameHashes)
	pageSig := PageSignature(raw.Origin, raw.NormalizedPath, domSkeletonHash)

	return &enginetypes.Snapshot{
		Descriptors:   descriptors,
		PageSignature: pageSig,
		DomHash:       domHash,
	}, nil
}

// domSkeletonFromFrames derives a deterministic page-skeleton hash from the
// set of frame hashes present, independent of the order in which frames were
// discovered (each frame hash still reflects its own ordered child list) — it
// only needs to be stable when the frame *set* and each frame's skeleton are
// unchanged, matching PageSignature's own stability contract.
func domSkeletonFromFrames(order []string, frameHashes map[string]string) string {
	sorted := append([]string(nil), order...)
	sort.Strings(sorted)
	var b strings.Builder
	for _, k := range sorted {
		b.WriteString(frameHashes[k])
		b.WriteByte(';')
	}
	return hash160(b.String())
}
