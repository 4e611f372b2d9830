// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator implements the Retrieval Orchestrator state machine
// of spec §4.8, wiring the canonicalizer, embedding cache, per-frame vector
// index, lexical/semantic matcher, heuristic scorer, fusion, synthesizer,
// and promotion store into the single `retrieve`/`report_outcome` surface
// spec §6.2 exposes to a collaborator.
//
// Grounded on escalating_router.go's SelectTool control flow: try the fast
// path first, fall back to a bounded retry on failure rather than an error,
// and record every branch taken with otel spans + promauto counters.
package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/selectorengine/core/engineconfig"
	"github.com/selectorengine/core/enginehash"
	"github.com/selectorengine/core/enginetypes"
	"github.com/selectorengine/core/heuristic"
	intentvalidation "github.com/selectorengine/core/intent"
	"github.com/selectorengine/core/lexical"
	"github.com/selectorengine/core/matcher"
	"github.com/selectorengine/core/providers"
	"github.com/selectorengine/core/storage/cache"
	"github.com/selectorengine/core/storage/promotion"
	"github.com/selectorengine/core/synth"
	"github.com/selectorengine/core/vectorindex"
)

var orchestratorTracer = otel.Tracer("selectorengine/orchestrator")

var (
	retrieveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selectorengine_orchestrator_retrieve_total",
		Help: "retrieve() calls by terminal status.",
	}, []string{"status"})
	promotionShortCircuitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "selectorengine_orchestrator_promotion_short_circuit_total",
		Help: "retrieve() calls resolved entirely from a prior promotion.",
	})
	retryTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "selectorengine_orchestrator_retry_total",
		Help: "retrieve() calls that used the one verification-failure retry.",
	})
)

// demotionPenalty is spec §4.8's "−0.5 to its fused score for this query"
// applied to a candidate whose synthesized selector failed to verify.
const demotionPenalty = 0.5

// Orchestrator wires every subsystem into spec §4.8's state machine. One
// Orchestrator is shared across sessions; per-frame vector indexes are
// session-owned per spec §5, so callers that need session isolation should
// construct one Orchestrator per session (cheap: it holds only the shared,
// thread-safe collaborators plus its own index map).
type Orchestrator struct {
	cfg            *engineconfig.Config
	canonicalizer  *enginehash.Canonicalizer
	stripper       *enginehash.VolatileAttrStripper
	embeddingCache *cache.EmbeddingCache
	promotions     *promotion.Store
	embedProvider  providers.EmbeddingProvider
	rerankProvider providers.RerankProvider
	modelID        string
	logger         *slog.Logger
	clock          enginetypes.Clock

	mu      sync.Mutex
	indexes map[string]*vectorindex.Index
}

// New builds an Orchestrator from its collaborators. logger/clock default
// to slog.Default()/enginetypes.RealClock() when nil.
func New(
	cfg *engineconfig.Config,
	canonicalizer *enginehash.Canonicalizer,
	embeddingCache *cache.EmbeddingCache,
	promotions *promotion.Store,
	embedProvider providers.EmbeddingProvider,
	rerankProvider providers.RerankProvider,
	modelID string,
	logger *slog.Logger,
	clock enginetypes.Clock,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = enginetypes.RealClock()
	}
	return &Orchestrator{
		cfg:            cfg,
		canonicalizer:  canonicalizer,
		stripper:       enginehash.NewVolatileAttrStripper(cfg.VolatileAttributePatterns),
		embeddingCache: embeddingCache,
		promotions:     promotions,
		embedProvider:  embedProvider,
		rerankProvider: rerankProvider,
		modelID:        modelID,
		logger:         logger,
		clock:          clock,
		indexes:        make(map[string]*vectorindex.Index),
	}
}

// Retrieve runs spec §4.8's full state machine: Canonicalizing → Indexing →
// Matching → Synthesizing → Verifying → Reporting, with one re-selection
// retry on a verification miss. navigate intents are rejected: spec §4.4
// Step A says navigate bypasses the matcher entirely, and routing the URL
// to the browser collaborator is the caller's job, not this core's.
func (o *Orchestrator) Retrieve(ctx context.Context, intent enginetypes.Intent, raw enginehash.RawSnapshot) (enginetypes.RetrieveResult, error) {
	ctx, span := orchestratorTracer.Start(ctx, "Retrieve")
	defer span.End()

	if intent.Action == enginetypes.ActionNavigate {
		return enginetypes.RetrieveResult{}, enginetypes.NewConfigurationInvalid(
			"navigate intents bypass the matcher; route the URL to the browser collaborator directly")
	}

	if err := intentvalidation.Validate(intent); err != nil {
		return enginetypes.RetrieveResult{}, err
	}

	// Spec §8's boundary property: a blank Target must always resolve to
	// element_not_found, never a hallucinated selection. Checked before
	// canonicalizing or consulting the promotion store, since a promotion
	// keyed only on LabelKey could otherwise short-circuit to a selection
	// the caller never named.
	if intentvalidation.TargetMissing(intent) {
		retrieveTotal.WithLabelValues(string(enginetypes.StatusElementNotFound)).Inc()
		return enginetypes.RetrieveResult{Status: enginetypes.StatusElementNotFound}, nil
	}

	// Canonicalizing.
	snapshot, err := o.canonicalizer.Canonicalize(raw)
	if err != nil {
		return enginetypes.RetrieveResult{}, err
	}

	byFrame := snapshot.ByFrame()

	// Promotion short-circuit (§4.7): checked before fusion, scoped to every
	// frame the current snapshot touches, since the target frame isn't
	// known until a candidate is chosen.
	for frameHash, frameDescs := range byFrame {
		promo, found, lookupErr := o.promotions.Lookup(ctx, snapshot.PageSignature, frameHash, intent.LabelKey)
		if lookupErr != nil || !found || promo.Demoted {
			continue
		}
		if matches := synth.VerifyXPath(promo.WinningXPath, frameDescs); len(matches) == 1 {
			promotionShortCircuitTotal.Inc()
			retrieveTotal.WithLabelValues(string(enginetypes.StatusSuccess)).Inc()
			return enginetypes.RetrieveResult{
				Status:     enginetypes.StatusSuccess,
				XPath:      promo.WinningXPath,
				Confidence: 1.0,
				Strategy:   promo.Strategy,
				FramePath:  matches[0].FramePath,
				Mode:       enginetypes.ModeWarm,
			}, nil
		}
		// No longer resolves: record a failure against the row and fall
		// through to the full pipeline. The row is demoted only once its
		// failure_count exceeds success_count + 3, not by this failure alone.
		_ = o.promotions.RecordFailure(ctx, snapshot.PageSignature, frameHash, intent.LabelKey)
	}

	result := o.runPipeline(ctx, intent, snapshot, byFrame, false)
	retrieveTotal.WithLabelValues(string(result.Status)).Inc()
	return result, nil
}

// ReportOutcome implements spec §4.7/§6.2's report_outcome: mutate the
// promotion store from a completed action's observed outcome.
func (o *Orchestrator) ReportOutcome(ctx context.Context, pageSignature, frameHash, labelKey, xpath string, success bool, strategy string) error {
	if success {
		return o.promotions.RecordSuccess(ctx, pageSignature, frameHash, labelKey, xpath, strategy)
	}
	return o.promotions.RecordFailure(ctx, pageSignature, frameHash, labelKey)
}

// runPipeline executes Indexing → Matching → Synthesizing → Verifying, with
// retried being true on the one-shot re-selection pass (spec §4.8's
// "Verifying → Matching, one retry max").
func (o *Orchestrator) runPipeline(
	ctx context.Context,
	intent enginetypes.Intent,
	snapshot *enginetypes.Snapshot,
	byFrame map[string][]*enginetypes.Descriptor,
	retried bool,
) enginetypes.RetrieveResult {
	filtered := matcher.FilterByAction(pointerize(snapshot), intent.Action)
	if len(filtered) == 0 {
		return enginetypes.RetrieveResult{Status: enginetypes.StatusElementNotFound}
	}

	var degradedReasons []string
	modes := make(map[string]enginetypes.Mode)
	for frameHash, frameDescs := range framesOf(filtered) {
		mode, reasons := o.ensureIndex(ctx, frameHash, frameDescs)
		modes[frameHash] = mode
		degradedReasons = append(degradedReasons, reasons...)
	}

	var exactHits []matcher.ExactHit
	candidates := filtered
	if intent.Target != "" {
		exactHits = matcher.ExactMatch(filtered, intent.Target)
		if winner, ok := matcher.SingleSurvivor(exactHits); ok {
			candidates = []*enginetypes.Descriptor{winner}
		}
	}

	semanticScores := make(map[string]float64)
	if len(candidates) > 1 {
		for frameHash, frameCandidates := range framesOf(candidates) {
			idx := o.indexOf(frameHash)
			if idx == nil {
				continue
			}
			res := matcher.Semantic(ctx, o.embedProvider, o.rerankProvider, idx, byFrame[frameHash],
				intent.Target, o.cfg.ShortlistK, o.cfg.Deadlines.EmbeddingCall, o.cfg.Deadlines.RerankCall, o.logger)
			degradedReasons = append(degradedReasons, res.DegradedReasons...)
			for _, s := range res.Scored {
				semanticScores[s.Descriptor.BackendID] = float64(s.Score)
			}
		}
	} else if len(candidates) == 1 {
		semanticScores[candidates[0].BackendID] = 1.0
	}

	promotionBoosts := o.promotionBoosts(ctx, snapshot.PageSignature, intent.LabelKey, candidates)

	heuristicResults := make([]heuristic.Result, 0, len(candidates))
	for _, d := range candidates {
		siblings := byFrame[d.FrameHash]
		heuristicResults = append(heuristicResults, heuristic.Score(d, intent, o.cfg.Heuristic, o.stripper, o.cfg.EntityCategories, siblings))
	}

	fused := heuristic.Fuse(heuristicResults, semanticScores, promotionBoosts, o.cfg.Fusion)
	winner, nearMisses, ok := heuristic.Select(fused, o.cfg.Fusion.Floor)
	if !ok {
		return enginetypes.RetrieveResult{
			Status:          enginetypes.StatusElementNotFound,
			NearMisses:      nearMisses,
			DegradedReasons: degradedReasons,
		}
	}

	cand, ok := synth.Synthesize(winner.Descriptor, snapshot, o.stripper)
	if !ok {
		return enginetypes.RetrieveResult{
			Status:          enginetypes.StatusSynthesisFailed,
			NearMisses:      nearMisses,
			DegradedReasons: degradedReasons,
		}
	}

	matches := synth.VerifyXPath(cand.XPath, byFrame[winner.Descriptor.FrameHash])
	verified := len(matches) == 1 && matches[0].BackendID == winner.Descriptor.BackendID
	if !verified {
		if retried {
			return enginetypes.RetrieveResult{
				Status:          enginetypes.StatusSynthesisFailed,
				NearMisses:      nearMisses,
				DegradedReasons: degradedReasons,
			}
		}
		retryTotal.Inc()
		demoted := demote(fused, winner.Descriptor.BackendID)
		return o.runPipelineFromFused(ctx, intent, snapshot, byFrame, demoted, degradedReasons)
	}

	status := enginetypes.StatusSuccess
	if len(degradedReasons) > 0 {
		status = enginetypes.StatusDegraded
	}

	mode := modes[winner.Descriptor.FrameHash]
	return enginetypes.RetrieveResult{
		Status:          status,
		XPath:           cand.XPath,
		Confidence:      clampConfidence(winner.Score),
		Strategy:        string(cand.Strategy),
		FramePath:       winner.Descriptor.FramePath,
		NearMisses:      nearMisses,
		Mode:            mode,
		DegradedReasons: degradedReasons,
	}
}

// runPipelineFromFused re-enters Matching with a demoted candidate set,
// implementing spec §4.8's one-retry re-selection without re-running the
// indexing/semantic stage twice.
func (o *Orchestrator) runPipelineFromFused(
	ctx context.Context,
	intent enginetypes.Intent,
	snapshot *enginetypes.Snapshot,
	byFrame map[string][]*enginetypes.Descriptor,
	fused []heuristic.Fused,
	degradedReasons []string,
) enginetypes.RetrieveResult {
	winner, nearMisses, ok := selectFromFused(fused, o.cfg.Fusion.Floor)
	if !ok {
		return enginetypes.RetrieveResult{
			Status:          enginetypes.StatusElementNotFound,
			NearMisses:      nearMisses,
			DegradedReasons: degradedReasons,
		}
	}

	cand, ok := synth.Synthesize(winner.Descriptor, snapshot, o.stripper)
	if !ok {
		return enginetypes.RetrieveResult{
			Status:          enginetypes.StatusSynthesisFailed,
			NearMisses:      nearMisses,
			DegradedReasons: degradedReasons,
		}
	}

	matches := synth.VerifyXPath(cand.XPath, byFrame[winner.Descriptor.FrameHash])
	if len(matches) != 1 || matches[0].BackendID != winner.Descriptor.BackendID {
		return enginetypes.RetrieveResult{
			Status:          enginetypes.StatusSynthesisFailed,
			NearMisses:      nearMisses,
			DegradedReasons: degradedReasons,
		}
	}

	status := enginetypes.StatusSuccess
	if len(degradedReasons) > 0 {
		status = enginetypes.StatusDegraded
	}
	return enginetypes.RetrieveResult{
		Status:          status,
		XPath:           cand.XPath,
		Confidence:      clampConfidence(winner.Score),
		Strategy:        string(cand.Strategy),
		FramePath:       winner.Descriptor.FramePath,
		NearMisses:      nearMisses,
		DegradedReasons: degradedReasons,
	}
}

func demote(fused []heuristic.Fused, backendID string) []heuristic.Fused {
	out := make([]heuristic.Fused, len(fused))
	copy(out, fused)
	for i := range out {
		if out[i].Descriptor.BackendID == backendID {
			out[i].Score -= demotionPenalty
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return len(out[i].Descriptor.FramePath) < len(out[j].Descriptor.FramePath)
	})
	return out
}

func selectFromFused(fused []heuristic.Fused, floor float64) (heuristic.Fused, []enginetypes.NearMiss, bool) {
	return heuristic.Select(fused, floor)
}

func clampConfidence(s float64) float32 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return float32(s)
}

func pointerize(snapshot *enginetypes.Snapshot) []*enginetypes.Descriptor {
	out := make([]*enginetypes.Descriptor, len(snapshot.Descriptors))
	for i := range snapshot.Descriptors {
		out[i] = &snapshot.Descriptors[i]
	}
	return out
}

func framesOf(descs []*enginetypes.Descriptor) map[string][]*enginetypes.Descriptor {
	out := make(map[string][]*enginetypes.Descriptor)
	for _, d := range descs {
		out[d.FrameHash] = append(out[d.FrameHash], d)
	}
	return out
}

func (o *Orchestrator) indexOf(frameHash string) *vectorindex.Index {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.indexes[frameHash]
}

// promotionBoosts looks up a per-candidate promotion boost: 1.0 when a
// non-demoted promotion names exactly this descriptor's synthesized-to-date
// winning xpath for (page_signature, frame_hash, label_key); 0 otherwise.
func (o *Orchestrator) promotionBoosts(ctx context.Context, pageSignature, labelKey string, candidates []*enginetypes.Descriptor) map[string]float64 {
	out := make(map[string]float64, len(candidates))
	seen := make(map[string]bool)
	for _, d := range candidates {
		if seen[d.FrameHash] {
			continue
		}
		seen[d.FrameHash] = true
		promo, found, err := o.promotions.Lookup(ctx, pageSignature, d.FrameHash, labelKey)
		if err != nil || !found || promo.Demoted {
			continue
		}
		for _, cd := range candidates {
			if cd.FrameHash != d.FrameHash {
				continue
			}
			if matches := synth.VerifyXPath(promo.WinningXPath, []*enginetypes.Descriptor{cd}); len(matches) == 1 {
				out[cd.BackendID] = 1.0
			}
		}
	}
	return out
}
