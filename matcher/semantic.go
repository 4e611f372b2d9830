// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/selectorengine/core/enginetypes"
	"github.com/selectorengine/core/lexical"
	"github.com/selectorengine/core/providers"
	"github.com/selectorengine/core/vectorindex"
)

var matcherTracer = otel.Tracer("selectorengine/matcher")

var (
	semanticShortlistSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "selectorengine_matcher_shortlist_size",
		Help:    "Number of descriptors shortlisted by the vector index before re-ranking.",
		Buckets: []float64{1, 4, 8, 16, 32, 64},
	})
	semanticDegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selectorengine_matcher_degraded_total",
		Help: "Semantic stage degradations by reason.",
	}, []string{"reason"})
)

// contextFragmentMaxLen is spec §4.4 Step C's per-fragment truncation.
const contextFragmentMaxLen = 256

// maxSiblingsInContext is spec §4.4 Step C's sibling-count bound.
const maxSiblingsInContext = 4

// Scored is one semantically-scored candidate.
type Scored struct {
	Descriptor *enginetypes.Descriptor
	Score      float32
}

// SemanticResult is the outcome of the Step C semantic stage.
type SemanticResult struct {
	Scored          []Scored
	DegradedReasons []string
}

// Semantic runs spec §4.4 Step C: embed the query, shortlist top-K from the
// frame's vector index by cosine similarity, then re-rank each shortlisted
// descriptor against a local-neighborhood context fragment.
//
// A query-embedding failure zeroes the semantic axis for every candidate
// (recorded as a degraded reason) rather than failing the call; a
// re-ranker failure falls back to the shortlist's index order, per spec
// §5's deadline-miss degrade rule.
func Semantic(
	ctx context.Context,
	embedProvider providers.EmbeddingProvider,
	rerankProvider providers.RerankProvider,
	idx *vectorindex.Index,
	frameDescriptors []*enginetypes.Descriptor,
	intentTarget string,
	shortlistK int,
	embedDeadline, rerankDeadline time.Duration,
	logger *slog.Logger,
) SemanticResult {
	ctx, span := matcherTracer.Start(ctx, "Semantic")
	defer span.End()
	if logger == nil {
		logger = slog.Default()
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedDeadline)
	queryVec, err := embedProvider.EmbedQuery(embedCtx, intentTarget)
	cancel()
	if err != nil {
		semanticDegradedTotal.WithLabelValues("embedding_timeout").Inc()
		logger.Warn("matcher: query embedding failed, semantic axis zeroed", slog.String("error", err.Error()))
		return SemanticResult{DegradedReasons: []string{"embedding_timeout"}}
	}

	hits, err := idx.Search(ctx, queryVec, shortlistK)
	if err != nil {
		semanticDegradedTotal.WithLabelValues("embedding_timeout").Inc()
		return SemanticResult{DegradedReasons: []string{"embedding_timeout"}}
	}
	semanticShortlistSize.Observe(float64(len(hits)))

	byID := make(map[string]*enginetypes.Descriptor, len(frameDescriptors))
	for _, d := range frameDescriptors {
		byID[d.BackendID] = d
	}

	shortlist, similarity := buildShortlist(frameDescriptors, byID, hits, intentTarget, shortlistK)

	rerankCtx, cancel := context.WithTimeout(ctx, rerankDeadline)
	defer cancel()

	scored := make([]Scored, 0, len(shortlist))
	rerankFailed := false
	for _, d := range shortlist {
		fragment := contextFragment(d, frameDescriptors)
		score, err := rerankProvider.Score(rerankCtx, intentTarget, fragment)
		if err != nil {
			rerankFailed = true
			break
		}
		scored = append(scored, Scored{Descriptor: d, Score: score})
	}

	if rerankFailed {
		semanticDegradedTotal.WithLabelValues("rerank_timeout").Inc()
		logger.Warn("matcher: re-ranker failed, falling back to shortlist order")
		scored = scored[:0]
		for _, d := range shortlist {
			scored = append(scored, Scored{Descriptor: d, Score: similarity[d.BackendID]})
		}
		return SemanticResult{Scored: scored, DegradedReasons: []string{"rerank_timeout"}}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return SemanticResult{Scored: scored}
}

// lexicalWeight blends the BM25 lexical shortlist signal into the vector
// index's cosine shortlist, per spec §1's "fast lexical shortlist +
// structural re-ranker": a descriptor whose rendered tag/attrs/text
// lexically matches the target strongly can enter the shortlist, and rank
// ahead of a weaker cosine hit, even when the embedding alone would not
// have surfaced it as strongly.
const lexicalWeight = 0.3

// buildShortlist combines the vector index's cosine hits with a BM25
// lexical index built over the frame, per spec §4.4 Step C. Descriptors are
// ranked by a hybrid score (cosine + lexicalWeight*BM25); lexical-only
// matches the vector search missed are folded in too, then the result is
// capped at shortlistK before the expensive re-rank stage runs over it. The
// returned map doubles as the rerank_timeout fallback order (spec §5).
func buildShortlist(
	frameDescriptors []*enginetypes.Descriptor,
	byID map[string]*enginetypes.Descriptor,
	hits []vectorindex.Result,
	intentTarget string,
	shortlistK int,
) ([]*enginetypes.Descriptor, map[string]float32) {
	lexIndex := lexical.Build(buildLexicalDocuments(frameDescriptors))
	lexScores := lexIndex.Score(intentTarget)

	hybrid := make(map[string]float32, len(frameDescriptors))
	order := make([]string, 0, len(frameDescriptors))
	seen := make(map[string]bool, len(frameDescriptors))

	for _, h := range hits {
		if _, ok := byID[h.DescriptorID]; !ok {
			continue
		}
		hybrid[h.DescriptorID] = h.Score + lexicalWeight*float32(lexScores[h.DescriptorID])
		order = append(order, h.DescriptorID)
		seen[h.DescriptorID] = true
	}

	for id, lexScore := range lexScores {
		if seen[id] || lexScore <= 0 {
			continue
		}
		if _, ok := byID[id]; !ok {
			continue
		}
		hybrid[id] = lexicalWeight * float32(lexScore)
		order = append(order, id)
		seen[id] = true
	}

	sort.SliceStable(order, func(i, j int) bool { return hybrid[order[i]] > hybrid[order[j]] })
	if len(order) > shortlistK {
		order = order[:shortlistK]
	}

	shortlist := make([]*enginetypes.Descriptor, 0, len(order))
	similarity := make(map[string]float32, len(order))
	for _, id := range order {
		shortlist = append(shortlist, byID[id])
		similarity[id] = hybrid[id]
	}
	return shortlist, similarity
}

// buildLexicalDocuments renders each frame descriptor's canonical
// tag-with-attrs fragment as its BM25 searchable text, reusing the same
// rendering the re-ranker's context window is built from.
func buildLexicalDocuments(descriptors []*enginetypes.Descriptor) []lexical.Document {
	docs := make([]lexical.Document, 0, len(descriptors))
	for _, d := range descriptors {
		docs = append(docs, lexical.BuildDocument(d.BackendID, renderFragment(d)))
	}
	return docs
}

// contextFragment renders the bounded local-neighborhood context of spec
// §4.4 Step C: the element plus up to 4 other same-frame descriptors in
// document order, each truncated to 256 chars, as canonical tag-with-attrs
// fragments. No parent or subtree is included; the Descriptor carries no
// DOM tree structure.
func contextFragment(d *enginetypes.Descriptor, all []*enginetypes.Descriptor) string {
	var b strings.Builder
	b.WriteString(truncate(renderFragment(d), contextFragmentMaxLen))

	siblings := siblingsOf(d, all)
	for i, sib := range siblings {
		if i >= maxSiblingsInContext {
			break
		}
		b.WriteByte(' ')
		b.WriteString(truncate(renderFragment(sib), contextFragmentMaxLen))
	}
	return b.String()
}

// siblingsOf returns other descriptors sharing d's frame, document-ordered,
// as a stand-in for true parent/child DOM structure (the canonical
// Descriptor carries no parent pointer — see DESIGN.md).
func siblingsOf(d *enginetypes.Descriptor, all []*enginetypes.Descriptor) []*enginetypes.Descriptor {
	var out []*enginetypes.Descriptor
	for _, other := range all {
		if other.BackendID == d.BackendID {
			continue
		}
		if other.FrameHash == d.FrameHash {
			out = append(out, other)
		}
	}
	return out
}

func renderFragment(d *enginetypes.Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s", d.Tag)
	if d.Role != "" {
		fmt.Fprintf(&b, " role=%q", d.Role)
	}
	for k, v := range d.Attrs {
		fmt.Fprintf(&b, " %s=%q", k, v)
	}
	b.WriteString(">")
	b.WriteString(d.Text)
	fmt.Fprintf(&b, "</%s>", d.Tag)
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
