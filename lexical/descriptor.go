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
	"strings"

	"github.com/selectorengine/core/enginetypes"
)

// searchableAttrs lists the Descriptor attributes carrying useful matching
// text; volatile identifiers (id, class) are deliberately excluded here —
// the heuristic scorer handles those signals separately.
var searchableAttrs = []string{"aria-label", "name", "placeholder", "title", "alt", "value", "data-testid"}

// DescriptorText builds the searchable document string for one descriptor:
// tag, role, visible text, and a fixed set of human-readable attributes.
func DescriptorText(d *enginetypes.Descriptor) string {
	var b strings.Builder
	b.WriteString(d.Tag)
	b.WriteByte(' ')
	b.WriteString(d.Role)
	b.WriteByte(' ')
	b.WriteString(d.Text)
	for _, attr := range searchableAttrs {
		if v, ok := d.Attr(attr); ok {
			b.WriteByte(' ')
			b.WriteString(v)
		}
	}
	return b.String()
}

// BuildIndex builds a BM25 Index directly from a frame's descriptors.
func BuildIndex(descriptors []*enginetypes.Descriptor) *Index {
	docs := make([]Document, 0, len(descriptors))
	for _, d := range descriptors {
		docs = append(docs, BuildDocument(d.BackendID, DescriptorText(d)))
	}
	return Build(docs)
}
