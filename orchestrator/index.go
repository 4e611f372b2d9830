// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"log/slog"

	"github.com/selectorengine/core/enginetypes"
	"github.com/selectorengine/core/lexical"
	"github.com/selectorengine/core/storage/cache"
	"github.com/selectorengine/core/vectorindex"
)

// ensureIndex implements spec §4.8's Indexing state for one frame: decide
// cold/warm/delta via vectorindex.Plan, embed whatever the plan calls for
// (through the embedding cache first, the provider only on a cache miss),
// and bring the session-owned index for frameHash up to date.
func (o *Orchestrator) ensureIndex(ctx context.Context, frameHash string, frameDescs []*enginetypes.Descriptor) (enginetypes.Mode, []string) {
	currentIDs := make([]string, len(frameDescs))
	byID := make(map[string]*enginetypes.Descriptor, len(frameDescs))
	for i, d := range frameDescs {
		currentIDs[i] = d.BackendID
		byID[d.BackendID] = d
	}

	o.mu.Lock()
	idx := o.indexes[frameHash]
	o.mu.Unlock()

	plan := vectorindex.Plan(idx, currentIDs)

	var degradedReasons []string
	if idx == nil || plan.FullRebuild {
		idx = vectorindex.New(frameHash)
		if reasons := o.embedAndInsert(ctx, idx, byID, currentIDs); len(reasons) > 0 {
			degradedReasons = append(degradedReasons, reasons...)
		}
	} else if plan.Mode == "delta" {
		if len(plan.ToRemove) > 0 {
			idx.Remove(plan.ToRemove)
		}
		if reasons := o.embedAndInsert(ctx, idx, byID, plan.ToEmbed); len(reasons) > 0 {
			degradedReasons = append(degradedReasons, reasons...)
		}
	}

	o.mu.Lock()
	o.indexes[frameHash] = idx
	o.mu.Unlock()

	return enginetypes.Mode(plan.Mode), degradedReasons
}

// embedAndInsert resolves vectors for ids (cache first, provider on miss)
// and adds them to idx. A provider failure degrades (the ids are simply
// left out of the index, narrowing the semantic shortlist) rather than
// aborting the query, per spec §5's deadline-miss degrade rule.
func (o *Orchestrator) embedAndInsert(ctx context.Context, idx *vectorindex.Index, byID map[string]*enginetypes.Descriptor, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]cache.Key, 0, len(ids))
	for _, id := range ids {
		d := byID[id]
		if d == nil {
			continue
		}
		keys = append(keys, cache.Key{ModelID: o.modelID, ContentHash: d.ContentHash})
	}
	hits := o.embeddingCache.GetMany(ctx, keys)

	entries := make([]vectorindex.Entry, 0, len(ids))
	var toEmbedIDs []string
	var toEmbedFragments []string
	for _, id := range ids {
		d := byID[id]
		if d == nil {
			continue
		}
		if vec, ok := hits[cache.Key{ModelID: o.modelID, ContentHash: d.ContentHash}]; ok {
			entries = append(entries, vectorindex.Entry{DescriptorID: id, Vector: vec})
			continue
		}
		toEmbedIDs = append(toEmbedIDs, id)
		toEmbedFragments = append(toEmbedFragments, lexical.DescriptorText(d))
	}

	var degradedReasons []string
	if len(toEmbedIDs) > 0 {
		vectors, err := o.embedProvider.EmbedElements(ctx, toEmbedFragments)
		if err != nil {
			o.logger.Warn("orchestrator: element embedding failed, narrowing semantic shortlist",
				slog.String("error", err.Error()), slog.Int("count", len(toEmbedIDs)))
			degradedReasons = append(degradedReasons, "embedding_timeout")
		} else {
			puts := make(map[cache.Key][]float32, len(toEmbedIDs))
			for i, id := range toEmbedIDs {
				if i >= len(vectors) {
					break
				}
				d := byID[id]
				entries = append(entries, vectorindex.Entry{DescriptorID: id, Vector: vectors[i]})
				puts[cache.Key{ModelID: o.modelID, ContentHash: d.ContentHash}] = vectors[i]
			}
			o.embeddingCache.PutMany(ctx, puts)
		}
	}

	idx.AddBatch(entries)
	if o.embeddingCache.Degraded() {
		if reason, ok := o.embeddingCache.DegradedReason(); ok {
			degradedReasons = append(degradedReasons, reason)
		}
	}
	return degradedReasons
}
