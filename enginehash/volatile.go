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

import "regexp"

// VolatilePattern pairs a compiled regex with a descriptive name. The
// canonicalizer strips any attribute whose name or value matches, before
// hashing, so runtime-volatile churn (autogenerated ids, React fiber
// markers, ephemeral aria-owns suffixes) never perturbs content_hash or
// frame_hash.
//
// Ordering does not matter here (unlike the teacher's redaction table): each
// pattern is tested independently, not as an ordered replace chain.
type VolatilePattern struct {
	Name  string
	Regex *regexp.Regexp
}

// DefaultVolatilePatterns is the engine's built-in volatile-attribute list,
// fully overridable via engineconfig (spec §9 open question: "the exact
// list ... differs across the source's notes ... must accept this list as
// configuration").
func DefaultVolatilePatterns() []VolatilePattern {
	return []VolatilePattern{
		{
			Name:  "hash_like_id",
			Regex: regexp.MustCompile(`^[A-Za-z]+-?[0-9a-f]{6,}$`),
		},
		{
			Name:  "react_fiber_marker",
			Regex: regexp.MustCompile(`^__reactFiber\$|^__reactProps\$|^__reactContainer\$`),
		},
		{
			Name:  "ephemeral_aria_owns_suffix",
			Regex: regexp.MustCompile(`:r[0-9a-z]+:$`),
		},
	}
}

// VolatileAttrStripper strips volatile attributes (by name or by value)
// before canonical hashing.
type VolatileAttrStripper struct {
	patterns []VolatilePattern
}

// NewVolatileAttrStripper builds a stripper from the given pattern list. A
// nil or empty list falls back to DefaultVolatilePatterns.
func NewVolatileAttrStripper(patterns []VolatilePattern) *VolatileAttrStripper {
	if len(patterns) == 0 {
		patterns = DefaultVolatilePatterns()
	}
	return &VolatileAttrStripper{patterns: patterns}
}

// IsVolatile reports whether name or value matches any configured pattern.
func (s *VolatileAttrStripper) IsVolatile(name, value string) bool {
	for _, p := range s.patterns {
		if p.Regex.MatchString(name) || p.Regex.MatchString(value) {
			return true
		}
	}
	return false
}

// Strip returns a copy of attrs with every volatile entry removed.
func (s *VolatileAttrStripper) Strip(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if s.IsVolatile(k, v) {
			continue
		}
		out[k] = v
	}
	return out
}
