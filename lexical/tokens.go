// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lexical implements the BM25 lexical shortlist half of spec
// §4.4 Step C's hybrid scorer, ported from
// services/trace/agent/routing/bm25.go's Okapi BM25 index (k1=1.5, b=0.75,
// Lucene-style +1-smoothed IDF), re-targeted from tool-routing documents to
// per-descriptor text documents (tag, role, attrs, visible text).
//
// The teacher's ExtractQueryTerms tokenizer (referenced by bm25.go as
// living in semantic.go, same package) was not present in the retrieved
// pack — only its call sites and behavioral comments were. Tokenize below
// reconstructs the documented behavior (lowercase, camelCase/snake_case
// splitting, delimiter normalization, noise-word removal) from those
// comments rather than guessing at unrelated internals.
package lexical

import (
	"strings"
	"unicode"
)

// noiseWords are short function words stripped before scoring, since they
// carry no discriminating signal for matching a UI element against an
// instruction fragment.
var noiseWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "of": {},
	"for": {}, "and": {}, "or": {}, "is": {}, "it": {}, "with": {}, "into": {},
	"this": {}, "that": {}, "click": {}, "type": {}, "select": {}, "button": {},
}

// Tokenize lowercases, splits camelCase/PascalCase/snake_case/kebab-case
// words at their internal boundaries, drops noise words and single
// characters, and returns the deduplicated term set.
func Tokenize(s string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, word := range splitOnDelimiters(s) {
		for _, part := range splitCamelCase(word) {
			part = strings.ToLower(part)
			if len(part) < 2 {
				continue
			}
			if _, noise := noiseWords[part]; noise {
				continue
			}
			terms[part] = struct{}{}
		}
	}
	return terms
}

func splitOnDelimiters(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '_' || r == '-' || r == '.' || r == '/' || r == ':' ||
			r == '<' || r == '>' || r == '=' || r == '"'
	})
}

// splitCamelCase splits "parseConfig" → ["parse", "Config"],
// "HTTPServer" → ["HTTP", "Server"]; a run with no case transition is
// returned unchanged.
func splitCamelCase(word string) []string {
	runes := []rune(word)
	if len(runes) == 0 {
		return nil
	}
	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prevLower := unicode.IsLower(runes[i-1])
		currUpper := unicode.IsUpper(runes[i])
		if prevLower && currUpper {
			parts = append(parts, string(runes[start:i]))
			start = i
			continue
		}
		// End of an acronym run followed by a new word, e.g. "HTTPServer".
		if currUpper && i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]) {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	parts = append(parts, string(runes[start:]))
	return parts
}
