// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enginehash computes the content-addressing hashes of spec §3/§4.1:
// per-element content_hash, per-frame frame_hash, per-snapshot
// page_signature and dom_hash, plus the volatile-attribute stripping that
// keeps those hashes stable across autogenerated-id churn.
package enginehash

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// hash160 returns the hex-encoded 160-bit (SHA-1-grade) hash of s, matching
// spec §4.1's "SHA-1-grade is sufficient; collision impact is cache miss,
// not correctness" guidance.
func hash160(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

// hash256 returns the hex-encoded 256-bit SHA-256 hash of s, used for
// Snapshot.DomHash per spec §3.
func hash256(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// ContentHash computes the content_hash of a single descriptor over the
// canonical serialization (tag, role, sorted(attrs), text, frame_path), per
// spec §4.1/§3. attrs must already have volatile keys/values stripped.
func ContentHash(tag, role string, attrs map[string]string, text string, framePath []string) string {
	var b strings.Builder
	b.WriteString(tag)
	b.WriteByte('\x1f')
	b.WriteString(role)
	b.WriteByte('\x1f')

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(attrs[k])
		b.WriteByte(';')
	}
	b.WriteByte('\x1f')
	b.WriteString(text)
	b.WriteByte('\x1f')
	b.WriteString(strings.Join(framePath, "/"))

	return hash160(b.String())
}

// frameChildSkeleton is one element of the ordered list hashed into a
// FrameHash: its tag, role, and the sorted set of stripped attribute keys
// (not values — per spec §4.1, frame_hash must stay stable across snapshots
// of the same frame as long as the element *skeleton* is unchanged, even if
// attribute values like text content change).
type frameChildSkeleton struct {
	Tag      string
	Role     string
	AttrKeys []string
}

// FrameHash computes the frame_hash of a frame from the ordered list of its
// child element skeletons, per spec §4.1.
func FrameHash(children []frameChildSkeleton) string {
	var b strings.Builder
	for _, c := range children {
		b.WriteString(c.Tag)
		b.WriteByte('\x1f')
		b.WriteString(c.Role)
		b.WriteByte('\x1f')
		keys := append([]string(nil), c.AttrKeys...)
		sort.Strings(keys)
		b.WriteString(strings.Join(keys, ","))
		b.WriteByte('\x1e')
	}
	return hash160(b.String())
}

// NewFrameChildSkeleton builds a frameChildSkeleton from a stripped
// attribute map; the Canonicalizer uses it to build the ordered child list.
func NewFrameChildSkeleton(tag, role string, strippedAttrs map[string]string) frameChildSkeleton {
	keys := make([]string, 0, len(strippedAttrs))
	for k := range strippedAttrs {
		keys = append(keys, k)
	}
	return frameChildSkeleton{Tag: tag, Role: role, AttrKeys: keys}
}

// PageSignature computes the page_signature of a page from
// (origin, normalized_path, dom_skeleton_hash), per spec §3.
func PageSignature(origin, normalizedPath, domSkeletonHash string) string {
	return hash160(origin + "\x1f" + normalizedPath + "\x1f" + domSkeletonHash)
}

// DomHash computes the 256-bit hash of all content_hashes in document order,
// per spec §3.
func DomHash(contentHashesInOrder []string) string {
	return hash256(strings.Join(contentHashesInOrder, "\x1e"))
}
