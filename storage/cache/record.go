// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache implements the Embedding Cache of spec §4.2: a hot-tier
// in-memory sharded LRU (grounded on Voskan/arena-cache's per-shard-seed
// sharding idea and the other_examples cached_embedder.go container/list
// LRU) backed by a cold-tier BadgerDB key-value store (grounded on the
// teacher's router_cache.go persistence pattern).
package cache

import (
	"encoding/binary"
	"fmt"
)

// recordMagic is the spec §6.3 on-disk record magic.
const recordMagic = "HEV1"

// vectorFormatFloat32LE is the only defined vector_format value (spec §6.3).
const vectorFormatFloat32LE uint8 = 0

// recordVersion is the current CacheEntry.Version written by this engine.
// Spec §6.3: "unknown versions are treated as cache miss, not an error."
const recordVersion uint8 = 1

// row is the per-key record body spec §6.3 describes:
//
//	content_hash[20] | version[1] | vector[dim*4] | last_used_ns[8]
//
// The magic and model_id header fields are folded into the Badger key
// prefix (see keyPrefix in util.go) rather than repeated per row; dim is
// implied by the vector length and vector_format is not stored, since a
// KV store — unlike the flat file the spec's §6.3 layout describes — already
// partitions by key; each row still carries its own version byte so an
// unknown-version row is still treated as a miss, not an error, per spec.
type row struct {
	ContentHash string
	Version     uint8
	Vector      []float32
	LastUsedNs  int64
}

func encodeRow(r row) ([]byte, error) {
	chBytes, err := hexDecode20(r.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	buf := make([]byte, 0, 20+1+len(r.Vector)*4+8)
	buf = append(buf, chBytes...)
	buf = append(buf, r.Version)
	for _, f := range r.Vector {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], float32bits(f))
		buf = append(buf, b[:]...)
	}
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(r.LastUsedNs))
	buf = append(buf, ts[:]...)
	return buf, nil
}

// decodeRow parses a row, returning (row, true, nil) on a recognized
// version, (row{}, false, nil) on an unknown version (a miss, not an
// error), and a non-nil error only on a short/corrupt read.
func decodeRow(data []byte) (row, bool, error) {
	if len(data) < 20+1+8 {
		return row{}, false, fmt.Errorf("decode row: short read (%d bytes)", len(data))
	}
	contentHash := hexEncode(data[:20])
	version := data[20]
	if version != recordVersion {
		return row{}, false, nil
	}
	vecBytes := data[21 : len(data)-8]
	if len(vecBytes)%4 != 0 {
		return row{}, false, fmt.Errorf("decode row: vector length %d not a multiple of 4", len(vecBytes))
	}
	vec := make([]float32, len(vecBytes)/4)
	for i := range vec {
		vec[i] = float32frombits(binary.LittleEndian.Uint32(vecBytes[i*4 : i*4+4]))
	}
	lastUsed := int64(binary.LittleEndian.Uint64(data[len(data)-8:]))
	return row{ContentHash: contentHash, Version: version, Vector: vec, LastUsedNs: lastUsed}, true, nil
}
