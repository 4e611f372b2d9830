// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engineconfig holds the single immutable configuration record the
// engine loads once per process, following the teacher's
// services/trace/config package: an embedded YAML default, overridable by
// an operator-supplied file, with every tunable constant named in spec §4.4
// /§4.5/§5/§9 addressable instead of scattered across source files.
package engineconfig

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/selectorengine/core/enginehash"
	"github.com/selectorengine/core/enginetypes"
)

//go:embed defaults.yaml
var defaultConfigYAML []byte

// HeuristicWeights is the additive bonus/penalty table of spec §4.4 Step D.
type HeuristicWeights struct {
	ExactIDMatch          float64 `yaml:"exact_id_match"`
	TestIDMatch            float64 `yaml:"testid_match"`
	AriaLabelExact         float64 `yaml:"aria_label_exact"`
	TypeAttrMatchesAction  float64 `yaml:"type_attr_matches_action"`
	PhraseMatch            float64 `yaml:"phrase_match"`
	VisibleEnabled         float64 `yaml:"visible_enabled"`
	HiddenOrDisabled       float64 `yaml:"hidden_or_disabled"`
	RoleTagMismatch        float64 `yaml:"role_tag_mismatch"`
	VolatileIDOrClass      float64 `yaml:"volatile_id_or_class"`
	EntityTypeMismatch     float64 `yaml:"entity_type_mismatch"`
	LabelSynonymMatch      float64 `yaml:"label_synonym_match"`
}

// DefaultHeuristicWeights returns the fixed defaults listed in spec §4.4.
func DefaultHeuristicWeights() HeuristicWeights {
	return HeuristicWeights{
		ExactIDMatch:         0.30,
		TestIDMatch:          0.25,
		AriaLabelExact:       0.20,
		TypeAttrMatchesAction: 0.20,
		PhraseMatch:          0.15,
		VisibleEnabled:       0.10,
		HiddenOrDisabled:     -0.40,
		RoleTagMismatch:      -0.30,
		VolatileIDOrClass:    -0.20,
		EntityTypeMismatch:   -0.30,
		LabelSynonymMatch:    0.10,
	}
}

// FusionWeights is the S = α·semantic + β·heuristic + γ·promotion formula's
// fixed coefficients, per spec §4.5.
type FusionWeights struct {
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
	Gamma float64 `yaml:"gamma"`
	// Floor is τ, the minimum fused score to select a candidate.
	Floor float64 `yaml:"floor"`
}

// DefaultFusionWeights returns the fixed defaults of spec §4.5.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Alpha: 1.0, Beta: 0.5, Gamma: 0.2, Floor: 0.25}
}

// Deadlines is the bounded-work-queue deadline table of spec §5.
type Deadlines struct {
	EmbeddingCall time.Duration `yaml:"embedding_call"`
	RerankCall    time.Duration `yaml:"rerank_call"`
	Escalation    time.Duration `yaml:"escalation"`
}

// DefaultDeadlines returns spec §5's fixed 2000ms defaults.
func DefaultDeadlines() Deadlines {
	return Deadlines{
		EmbeddingCall: 2000 * time.Millisecond,
		RerankCall:    2000 * time.Millisecond,
		Escalation:    3 * time.Second,
	}
}

// yamlConfig is the wire format for the embedded/overridable YAML document.
// Durations are specified in milliseconds to keep the YAML simple.
type yamlConfig struct {
	Heuristic struct {
		ExactIDMatch          *float64 `yaml:"exact_id_match"`
		TestIDMatch            *float64 `yaml:"testid_match"`
		AriaLabelExact         *float64 `yaml:"aria_label_exact"`
		TypeAttrMatchesAction  *float64 `yaml:"type_attr_matches_action"`
		PhraseMatch            *float64 `yaml:"phrase_match"`
		VisibleEnabled         *float64 `yaml:"visible_enabled"`
		HiddenOrDisabled       *float64 `yaml:"hidden_or_disabled"`
		RoleTagMismatch        *float64 `yaml:"role_tag_mismatch"`
		VolatileIDOrClass      *float64 `yaml:"volatile_id_or_class"`
		EntityTypeMismatch     *float64 `yaml:"entity_type_mismatch"`
		LabelSynonymMatch      *float64 `yaml:"label_synonym_match"`
	} `yaml:"heuristic"`

	Fusion struct {
		Alpha *float64 `yaml:"alpha"`
		Beta  *float64 `yaml:"beta"`
		Gamma *float64 `yaml:"gamma"`
		Floor *float64 `yaml:"floor"`
	} `yaml:"fusion"`

	DeadlinesMs struct {
		EmbeddingCall *int64 `yaml:"embedding_call"`
		RerankCall    *int64 `yaml:"rerank_call"`
		Escalation    *int64 `yaml:"escalation"`
	} `yaml:"deadlines_ms"`

	ShortlistK       *int     `yaml:"shortlist_k"`
	PromotionRowBudget *int   `yaml:"promotion_row_budget"`
	HotCacheCapacity *int     `yaml:"hot_cache_capacity"`
	HotCacheShards   *int     `yaml:"hot_cache_shards"`
	VolatileAttributePatterns []string `yaml:"volatile_attribute_patterns"`
	EntityCategories map[string][]string `yaml:"entity_categories"`
}

// Config is the engine's single immutable configuration record. Load it
// once per engine; absent YAML fields fall back to the stated defaults.
type Config struct {
	Heuristic HeuristicWeights
	Fusion    FusionWeights
	Deadlines Deadlines

	ShortlistK         int
	PromotionRowBudget int
	HotCacheCapacity   int
	HotCacheShards     int

	VolatileAttributePatterns []enginehash.VolatilePattern
	EntityCategories          map[string][]string
}

// Default returns the engine's built-in configuration, parsed from the
// embedded defaults.yaml.
func Default() (*Config, error) {
	return FromYAML(defaultConfigYAML)
}

// FromYAML parses a Config from a YAML document, applying defaults for any
// field the document omits.
func FromYAML(doc []byte) (*Config, error) {
	var raw yamlConfig
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("parsing config yaml: %w", err)
	}

	h := DefaultHeuristicWeights()
	if v := raw.Heuristic.ExactIDMatch; v != nil {
		h.ExactIDMatch = *v
	}
	if v := raw.Heuristic.TestIDMatch; v != nil {
		h.TestIDMatch = *v
	}
	if v := raw.Heuristic.AriaLabelExact; v != nil {
		h.AriaLabelExact = *v
	}
	if v := raw.Heuristic.TypeAttrMatchesAction; v != nil {
		h.TypeAttrMatchesAction = *v
	}
	if v := raw.Heuristic.PhraseMatch; v != nil {
		h.PhraseMatch = *v
	}
	if v := raw.Heuristic.VisibleEnabled; v != nil {
		h.VisibleEnabled = *v
	}
	if v := raw.Heuristic.HiddenOrDisabled; v != nil {
		h.HiddenOrDisabled = *v
	}
	if v := raw.Heuristic.RoleTagMismatch; v != nil {
		h.RoleTagMismatch = *v
	}
	if v := raw.Heuristic.VolatileIDOrClass; v != nil {
		h.VolatileIDOrClass = *v
	}
	if v := raw.Heuristic.EntityTypeMismatch; v != nil {
		h.EntityTypeMismatch = *v
	}
	if v := raw.Heuristic.LabelSynonymMatch; v != nil {
		h.LabelSynonymMatch = *v
	}

	f := DefaultFusionWeights()
	if v := raw.Fusion.Alpha; v != nil {
		f.Alpha = *v
	}
	if v := raw.Fusion.Beta; v != nil {
		f.Beta = *v
	}
	if v := raw.Fusion.Gamma; v != nil {
		f.Gamma = *v
	}
	if v := raw.Fusion.Floor; v != nil {
		f.Floor = *v
	}
	if f.Alpha < 0 || f.Beta < 0 || f.Gamma < 0 {
		return nil, enginetypes.NewConfigurationInvalid("fusion weights must be non-negative")
	}

	d := DefaultDeadlines()
	if v := raw.DeadlinesMs.EmbeddingCall; v != nil {
		d.EmbeddingCall = time.Duration(*v) * time.Millisecond
	}
	if v := raw.DeadlinesMs.RerankCall; v != nil {
		d.RerankCall = time.Duration(*v) * time.Millisecond
	}
	if v := raw.DeadlinesMs.Escalation; v != nil {
		d.Escalation = time.Duration(*v) * time.Millisecond
	}

	cfg := &Config{
		Heuristic:          h,
		Fusion:             f,
		Deadlines:          d,
		ShortlistK:         32,
		PromotionRowBudget: 100_000,
		HotCacheCapacity:   50_000,
		HotCacheShards:     16,
		EntityCategories:   raw.EntityCategories,
	}
	if raw.ShortlistK != nil {
		cfg.ShortlistK = *raw.ShortlistK
	}
	if raw.PromotionRowBudget != nil {
		cfg.PromotionRowBudget = *raw.PromotionRowBudget
	}
	if raw.HotCacheCapacity != nil {
		cfg.HotCacheCapacity = *raw.HotCacheCapacity
	}
	if raw.HotCacheShards != nil {
		cfg.HotCacheShards = *raw.HotCacheShards
	}

	if len(raw.VolatileAttributePatterns) > 0 {
		pats := make([]enginehash.VolatilePattern, 0, len(raw.VolatileAttributePatterns))
		for i, p := range raw.VolatileAttributePatterns {
			compiled, err := compilePattern(p)
			if err != nil {
				return nil, fmt.Errorf("volatile_attribute_patterns[%d]: %w", i, err)
			}
			pats = append(pats, compiled)
		}
		cfg.VolatileAttributePatterns = pats
	} else {
		cfg.VolatileAttributePatterns = enginehash.DefaultVolatilePatterns()
	}

	return cfg, nil
}

// Store holds the current Config behind a lock and optionally hot-reloads it
// from a file on disk via fsnotify, mirroring the teacher's
// sync-guarded config singleton.
type Store struct {
	mu     sync.RWMutex
	cur    *Config
	logger *slog.Logger
	watcher *fsnotify.Watcher
}

// NewStore creates a Store seeded with the given initial config.
func NewStore(initial *Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{cur: initial, logger: logger}
}

// Get returns the current Config. Safe for concurrent use.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// WatchFile starts watching path for writes and reloads the Config on each
// change. Reload failures are logged and the previous Config is kept in
// effect — a bad edit to the config file never takes an engine down.
func (s *Store) WatchFile(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch config file: %w", err)
	}
	s.watcher = w

	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				s.reload(path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("config watcher error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}

func (s *Store) reload(path string) {
	doc, err := readFile(path)
	if err != nil {
		s.logger.Warn("config reload: read failed, keeping previous config",
			slog.String("error", err.Error()))
		return
	}
	cfg, err := FromYAML(doc)
	if err != nil {
		s.logger.Warn("config reload: parse failed, keeping previous config",
			slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	s.cur = cfg
	s.mu.Unlock()
	s.logger.Info("config reloaded", slog.String("path", path))
}
