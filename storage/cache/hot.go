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
	"container/list"
	"hash/fnv"
	"sync"
)

// hotKey identifies a cached vector by (model_id, content_hash).
type hotKey struct {
	ModelID     string
	ContentHash string
}

type hotEntry struct {
	key    hotKey
	vector []float32
}

// hotShard is one lock-sharded LRU segment, grounded on
// Voskan/arena-cache's per-shard sync.RWMutex + own hash seed shape (kept:
// the sharding idea; dropped: its off-heap arena allocator, which this
// cache has no need for) and on the other_examples container/list LRU.
type hotShard struct {
	mu       sync.RWMutex
	index    map[hotKey]*list.Element
	order    *list.List
	capacity int

	hits, misses uint64
}

func newHotShard(capacity int) *hotShard {
	return &hotShard{
		index:    make(map[hotKey]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
	}
}

func (s *hotShard) get(key hotKey) ([]float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.index[key]
	if !ok {
		s.misses++
		return nil, false
	}
	s.hits++
	s.order.MoveToFront(elem)
	return elem.Value.(*hotEntry).vector, true
}

func (s *hotShard) put(key hotKey, vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.index[key]; ok {
		s.order.MoveToFront(elem)
		elem.Value.(*hotEntry).vector = vector
		return
	}
	elem := s.order.PushFront(&hotEntry{key: key, vector: vector})
	s.index[key] = elem
	s.evictLocked()
}

// evictLocked promotes LRU victims out of the hot tier only, per spec §4.2
// `evict()`. Caller must hold s.mu.
func (s *hotShard) evictLocked() {
	for s.capacity > 0 && s.order.Len() > s.capacity {
		back := s.order.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*hotEntry)
		delete(s.index, entry.key)
		s.order.Remove(back)
	}
}

// HotTier is the sharded in-memory LRU mapping (model_id, content_hash) →
// vector of spec §4.2, sharded 16 ways by default per spec §5's concurrency
// guidance.
type HotTier struct {
	shards []*hotShard
}

// NewHotTier builds a HotTier with the given per-shard capacity and shard
// count (shardCount<=0 defaults to 16).
func NewHotTier(perShardCapacity, shardCount int) *HotTier {
	if shardCount <= 0 {
		shardCount = 16
	}
	shards := make([]*hotShard, shardCount)
	for i := range shards {
		shards[i] = newHotShard(perShardCapacity)
	}
	return &HotTier{shards: shards}
}

func (h *HotTier) shardFor(key hotKey) *hotShard {
	hh := fnv.New64a()
	_, _ = hh.Write([]byte(key.ModelID))
	_, _ = hh.Write([]byte{0})
	_, _ = hh.Write([]byte(key.ContentHash))
	return h.shards[hh.Sum64()%uint64(len(h.shards))]
}

// Get returns the cached vector, if present.
func (h *HotTier) Get(modelID, contentHash string) ([]float32, bool) {
	key := hotKey{modelID, contentHash}
	return h.shardFor(key).get(key)
}

// Put inserts or refreshes a cached vector, evicting the shard's LRU victim
// if its capacity is exceeded.
func (h *HotTier) Put(modelID, contentHash string, vector []float32) {
	key := hotKey{modelID, contentHash}
	h.shardFor(key).put(key, vector)
}

// Stats returns aggregate hit/miss counters across all shards.
func (h *HotTier) Stats() (hits, misses uint64) {
	for _, s := range h.shards {
		s.mu.RLock()
		hits += s.hits
		misses += s.misses
		s.mu.RUnlock()
	}
	return
}
