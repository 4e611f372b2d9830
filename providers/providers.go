// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package providers defines the external collaborator interfaces of spec
// §6.1 (Embedding provider, Re-ranker provider) and a default Ollama-style
// HTTP implementation of each, ported from
// services/trace/agent/routing/embedder.go's ToolEmbeddingCache.embed/Warm
// shape: an /api/embed-style JSON-over-HTTP call, batched with
// errgroup+semaphore-bounded concurrency.
package providers

import "context"

// EmbeddingProvider produces vectors for text queries and element
// descriptors, per spec §6.1. Implementations may return vectors of
// different dimensionality for queries (Dq) vs elements (De); the core
// never assumes they match.
type EmbeddingProvider interface {
	// EmbedQuery embeds one query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedElements embeds a batch of canonical element fragments. The
	// returned slice has exactly one vector per input fragment, in order;
	// the provider (not the core) is responsible for internally chunking
	// oversized batches.
	EmbedElements(ctx context.Context, fragments []string) ([][]float32, error)
}

// RerankProvider scores a (query, element-fragment-with-context) pair in
// [0, 1], per spec §6.1.
type RerankProvider interface {
	Score(ctx context.Context, queryText, elementFragment string) (float32, error)
}
