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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/selectorengine/core/enginetypes"
	"github.com/selectorengine/core/storage/badgerkv"
)

var (
	hotHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "selectorengine_embedding_cache_hot_hits_total",
		Help: "Embedding cache hot-tier hits.",
	})
	coldHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "selectorengine_embedding_cache_cold_hits_total",
		Help: "Embedding cache cold-tier hits (promoted into the hot tier).",
	})
	missesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "selectorengine_embedding_cache_misses_total",
		Help: "Embedding cache misses (both tiers).",
	})
	degradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "selectorengine_embedding_cache_degraded_total",
		Help: "Cold-tier operations that fell back to hot-only mode.",
	})
)

// Key identifies one cacheable embedding by model and content hash, per
// spec §4.2's (model_id, content_hash) key.
type Key struct {
	ModelID     string
	ContentHash string
}

// EmbeddingCache is the two-tier cache of spec §4.2: a sharded in-memory
// LRU hot tier in front of a BadgerDB-backed cold tier. Disk errors degrade
// the cache to hot-only operation rather than failing a retrieval — callers
// observe this through the returned degraded flag, never through an error
// from Get/GetMany.
type EmbeddingCache struct {
	hot    *HotTier
	cold   *badgerkv.DB
	clock  enginetypes.Clock
	logger *slog.Logger

	// degraded is set once a cold-tier operation fails; it is sticky for the
	// lifetime of this cache instance; a fresh process will retry the disk.
	degraded bool
	// degradedReason is the spec §7 recoverable-error reason string recorded
	// the first time the cold tier failed, surfaced to RetrieveResult via
	// DegradedReason().
	degradedReason string
}

// Option configures an EmbeddingCache at construction time.
type Option func(*EmbeddingCache)

// WithClock overrides the cache's timestamp source, for deterministic tests.
func WithClock(c enginetypes.Clock) Option {
	return func(e *EmbeddingCache) { e.clock = c }
}

// WithLogger overrides the cache's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *EmbeddingCache) { e.logger = l }
}

// New builds an EmbeddingCache. cold may be nil, in which case the cache
// runs permanently hot-only (used by tests and by deployments with no
// configured disk path).
func New(hotCapacity, hotShards int, cold *badgerkv.DB, opts ...Option) *EmbeddingCache {
	e := &EmbeddingCache{
		hot:    NewHotTier(hotCapacity, hotShards),
		cold:   cold,
		clock:  enginetypes.RealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cold == nil {
		e.degraded = true
	}
	return e
}

// Degraded reports whether the cold tier is currently unavailable.
func (e *EmbeddingCache) Degraded() bool { return e.degraded }

// DegradedReason returns the spec §7 recoverable-error reason recorded when
// the cold tier first failed, and true if the cache is degraded.
func (e *EmbeddingCache) DegradedReason() (string, bool) {
	if !e.degraded || e.degradedReason == "" {
		return "", false
	}
	return e.degradedReason, true
}

// Get returns one cached vector, checking the hot tier then, on miss, the
// cold tier (promoting a cold hit back into the hot tier).
func (e *EmbeddingCache) Get(ctx context.Context, key Key) ([]float32, bool) {
	if v, ok := e.hot.Get(key.ModelID, key.ContentHash); ok {
		hotHitsTotal.Inc()
		return v, true
	}
	if e.degraded {
		missesTotal.Inc()
		return nil, false
	}
	v, ok, err := e.getCold(ctx, key)
	if err != nil {
		e.markDegraded(err)
		missesTotal.Inc()
		return nil, false
	}
	if !ok {
		missesTotal.Inc()
		return nil, false
	}
	coldHitsTotal.Inc()
	e.hot.Put(key.ModelID, key.ContentHash, v)
	return v, true
}

// GetMany resolves a batch of keys in one call, per spec §4.2's
// `get_many(keys) → {key: vector_or_missing}`. Returned map only contains
// hits; callers check for a key's absence to detect a miss.
func (e *EmbeddingCache) GetMany(ctx context.Context, keys []Key) map[Key][]float32 {
	out := make(map[Key][]float32, len(keys))
	for _, k := range keys {
		if v, ok := e.Get(ctx, k); ok {
			out[k] = v
		}
	}
	return out
}

// Put inserts or refreshes one vector in both tiers. Writes to a degraded
// cold tier are silently skipped; the hot tier still receives the value.
func (e *EmbeddingCache) Put(ctx context.Context, key Key, vector []float32) {
	now := e.clock()
	e.hot.Put(key.ModelID, key.ContentHash, vector)
	if e.degraded {
		return
	}
	if err := e.putCold(ctx, key, vector, now); err != nil {
		e.markDegraded(err)
	}
}

// PutMany durably inserts a batch of entries in a single cold-tier
// transaction, per spec §4.2's `put_many(entries)`.
func (e *EmbeddingCache) PutMany(ctx context.Context, entries map[Key][]float32) {
	now := e.clock()
	for k, v := range entries {
		e.hot.Put(k.ModelID, k.ContentHash, v)
	}
	if e.degraded || len(entries) == 0 {
		return
	}
	err := e.cold.WithTxn(ctx, func(txn *badger.Txn) error {
		for k, v := range entries {
			r := row{ContentHash: k.ContentHash, Version: recordVersion, Vector: v, LastUsedNs: now}
			data, err := encodeRow(r)
			if err != nil {
				return err
			}
			if err := txn.Set(coldKey(k.ModelID, k.ContentHash), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.markDegraded(err)
	}
}

// Evict trims the hot tier's LRU entries beyond the configured per-shard
// capacity. It touches only the hot tier. Cold-tier rows record
// last_used_ns, but neither this package nor the cache inspection CLI
// evicts them; the cold tier is not size-bounded.
func (e *EmbeddingCache) Evict() {
	// HotTier already self-evicts on every Put; Evict exists as an explicit
	// spec-named entry point for callers that want to force a pass (e.g.
	// after a bulk PutMany) without waiting on the next individual Put.
	for _, s := range e.hot.shards {
		s.mu.Lock()
		s.evictLocked()
		s.mu.Unlock()
	}
}

func (e *EmbeddingCache) getCold(ctx context.Context, key Key) ([]float32, bool, error) {
	var data []byte
	err := e.cold.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(coldKey(key.ModelID, key.ContentHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errColdMiss
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, errColdMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	r, ok, err := decodeRow(data)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		// unknown version: a miss, not an error, per spec §6.3.
		return nil, false, nil
	}
	return r.Vector, true, nil
}

func (e *EmbeddingCache) putCold(ctx context.Context, key Key, vector []float32, nowNs int64) error {
	r := row{ContentHash: key.ContentHash, Version: recordVersion, Vector: vector, LastUsedNs: nowNs}
	data, err := encodeRow(r)
	if err != nil {
		return err
	}
	return e.cold.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(coldKey(key.ModelID, key.ContentHash), data)
	})
}

// ColdEntry is one decoded cold-tier record, for the cache inspection CLI
// (selectorengine cache inspect).
type ColdEntry struct {
	ModelID     string
	ContentHash string
	Dims        int
	LastUsedNs  int64
}

// InspectCold scans every record in the cold tier. Returns an error if no
// cold tier is configured, so the CLI can report "cache is hot-only"
// instead of printing a silently-empty table.
func (e *EmbeddingCache) InspectCold(ctx context.Context) ([]ColdEntry, error) {
	if e.cold == nil {
		return nil, fmt.Errorf("cache inspect: no cold tier configured")
	}
	var out []ColdEntry
	prefix := []byte(recordMagic + "/")
	err := e.cold.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			rest := strings.TrimPrefix(string(item.Key()), string(prefix))
			slash := strings.LastIndex(rest, "/")
			if slash < 0 {
				continue
			}
			modelID := rest[:slash]

			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			r, ok, err := decodeRow(raw)
			if err != nil || !ok {
				continue
			}
			out = append(out, ColdEntry{ModelID: modelID, ContentHash: r.ContentHash, Dims: len(r.Vector), LastUsedNs: r.LastUsedNs})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache inspect scan: %w", err)
	}
	return out, nil
}

func (e *EmbeddingCache) markDegraded(err error) {
	if e.degraded {
		return
	}
	e.degraded = true
	e.degradedReason = "cache_disk_unavailable"
	degradedTotal.Inc()
	e.logger.Warn("embedding cache: cold tier unavailable, degrading to hot-only",
		slog.String("error", err.Error()), slog.String("reason", e.degradedReason))
}

var errColdMiss = fmt.Errorf("cache: cold tier miss")

func coldKey(modelID, contentHash string) []byte {
	return []byte(keyPrefix(modelID) + contentHash)
}
