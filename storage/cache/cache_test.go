// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/selectorengine/core/storage/badgerkv"
)

func TestEncodeDecodeRow_RoundTrip(t *testing.T) {
	r := row{
		ContentHash: "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4",
		Version:     recordVersion,
		Vector:      []float32{0.5, -0.25, 1.0},
		LastUsedNs:  1234567890,
	}
	data, err := encodeRow(r)
	require.NoError(t, err)

	got, ok, err := decodeRow(data)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, r.ContentHash, got.ContentHash)
	require.Equal(t, r.Vector, got.Vector)
	require.Equal(t, r.LastUsedNs, got.LastUsedNs)
}

func TestDecodeRow_UnknownVersionIsMissNotError(t *testing.T) {
	r := row{
		ContentHash: "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4",
		Version:     99,
		Vector:      []float32{1.0},
		LastUsedNs:  1,
	}
	data, err := encodeRow(r)
	require.NoError(t, err)

	got, ok, err := decodeRow(data)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, row{}, got)
}

func TestDecodeRow_ShortReadIsError(t *testing.T) {
	_, _, err := decodeRow([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestHotTier_GetPutAndEviction(t *testing.T) {
	h := NewHotTier(2, 1)
	h.Put("model-a", "hash1", []float32{1})
	h.Put("model-a", "hash2", []float32{2})
	h.Put("model-a", "hash3", []float32{3})

	_, ok := h.Get("model-a", "hash1")
	require.False(t, ok, "oldest entry should have been evicted")

	v, ok := h.Get("model-a", "hash3")
	require.True(t, ok)
	require.Equal(t, []float32{3}, v)
}

func TestEmbeddingCache_HotOnlyWhenColdNil(t *testing.T) {
	c := New(16, 1, nil)
	require.True(t, c.Degraded())

	ctx := context.Background()
	key := Key{ModelID: "m", ContentHash: "h1"}
	c.Put(ctx, key, []float32{0.1, 0.2})

	v, ok := c.Get(ctx, key)
	require.True(t, ok)
	require.Equal(t, []float32{0.1, 0.2}, v)
}

func TestEmbeddingCache_ColdTierRoundTripAndPromotion(t *testing.T) {
	dir, err := os.MkdirTemp("", "embedcache-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	db, err := badgerkv.Open(dir)
	require.NoError(t, err)
	defer db.Close()

	c := New(16, 1, db)
	require.False(t, c.Degraded())

	ctx := context.Background()
	key := Key{ModelID: "model-x", ContentHash: "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4"}
	c.Put(ctx, key, []float32{1, 2, 3})

	// A fresh cache instance over the same DB must see the cold-tier entry
	// and promote it into its own hot tier on first access.
	c2 := New(16, 1, db)
	v, ok := c2.Get(ctx, key)
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, v)

	v2, ok := c2.hot.Get(key.ModelID, key.ContentHash)
	require.True(t, ok, "cold hit should have been promoted to hot tier")
	require.Equal(t, []float32{1, 2, 3}, v2)
}

func TestEmbeddingCache_GetManyPutMany(t *testing.T) {
	dir, err := os.MkdirTemp("", "embedcache-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	db, err := badgerkv.Open(dir)
	require.NoError(t, err)
	defer db.Close()

	c := New(16, 1, db)
	ctx := context.Background()

	k1 := Key{ModelID: "m", ContentHash: "1111111111111111111111111111111111111111"}
	k2 := Key{ModelID: "m", ContentHash: "2222222222222222222222222222222222222222"}
	c.PutMany(ctx, map[Key][]float32{
		k1: {1, 1},
		k2: {2, 2},
	})

	got := c.GetMany(ctx, []Key{k1, k2, {ModelID: "m", ContentHash: "missing"}})
	require.Len(t, got, 2)
	require.Equal(t, []float32{1, 1}, got[k1])
	require.Equal(t, []float32{2, 2}, got[k2])
}

func TestEmbeddingCache_DegradesOnColdFailureWithoutErroringCaller(t *testing.T) {
	dir, err := os.MkdirTemp("", "embedcache-*")
	require.NoError(t, err)

	db, err := badgerkv.Open(dir)
	require.NoError(t, err)

	c := New(16, 1, db)
	ctx := context.Background()

	// Close the DB out from under the cache to simulate a disk failure; the
	// cache must degrade to hot-only rather than propagate an error.
	require.NoError(t, db.Close())
	require.NoError(t, os.RemoveAll(dir))

	key := Key{ModelID: "m", ContentHash: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"}
	c.Put(ctx, key, []float32{9})

	require.True(t, c.Degraded())
	reason, ok := c.DegradedReason()
	require.True(t, ok)
	require.Equal(t, "cache_disk_unavailable", reason)

	v, ok := c.Get(ctx, key)
	require.True(t, ok, "hot tier still serves the value after degrading")
	require.Equal(t, []float32{9}, v)
}
