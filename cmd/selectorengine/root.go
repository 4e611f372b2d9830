// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/selectorengine/core/engineconfig"
	"github.com/selectorengine/core/enginehash"
	"github.com/selectorengine/core/providers"
	"github.com/selectorengine/core/storage/badgerkv"
	"github.com/selectorengine/core/storage/cache"
	"github.com/selectorengine/core/storage/promotion"
)

// Flags shared across subcommands, following cmd/aleutian's package-level
// flag-variable convention.
var (
	configPath   string
	cacheDir     string
	promoDir     string
	modelID      string
	logLevelFlag string

	ollamaURL   string
	ollamaModel string
	rerankURL   string
	rerankToken string
)

var rootCmd = &cobra.Command{
	Use:   "selectorengine",
	Short: "Retrieval-and-ranking core: turns an instruction + DOM snapshot into a unique XPath",
}

func init() {
	home, _ := os.UserHomeDir()
	defaultCacheDir := filepath.Join(home, ".selectorengine", "cache", "embeddings")
	defaultPromoDir := filepath.Join(home, ".selectorengine", "cache", "promotions")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a heuristic/fusion config YAML file (defaults to the engine's built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", defaultCacheDir, "BadgerDB directory for the embedding cache cold tier")
	rootCmd.PersistentFlags().StringVar(&promoDir, "promotions-dir", defaultPromoDir, "BadgerDB directory for the promotion store")
	rootCmd.PersistentFlags().StringVar(&modelID, "model-id", "nomic-embed-text", "embedding model identifier used as the cache key's model component")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.PersistentFlags().StringVar(&ollamaURL, "embed-url", "http://localhost:11434/api/embed", "embedding provider endpoint")
	rootCmd.PersistentFlags().StringVar(&ollamaModel, "embed-model", "nomic-embed-text", "embedding provider model name")
	rootCmd.PersistentFlags().StringVar(&rerankURL, "rerank-url", "", "re-ranker provider endpoint (empty disables the rerank stage's provider and relies on heuristic/semantic fusion alone)")
	rootCmd.PersistentFlags().StringVar(&rerankToken, "rerank-token", "", "bearer token for the re-ranker provider, held in locked memory")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(promotionsCmd)
	rootCmd.AddCommand(benchCmd)
}

// Execute runs the root command, exiting 1 on error like the teacher's CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "selectorengine: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevelFlag)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func loadConfig() (*engineconfig.Config, error) {
	if configPath == "" {
		return engineconfig.Default()
	}
	doc, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}
	return engineconfig.FromYAML(doc)
}

// openCache opens the embedding cache's cold-tier BadgerDB at cacheDir and
// wraps it. A failure to open the directory degrades to a hot-only cache
// rather than aborting startup, mirroring routing_cache_dump's own
// graceful-degradation note on an unavailable routing cache directory.
func openCache(logger *slog.Logger, cfg *engineconfig.Config) (*cache.EmbeddingCache, func()) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		logger.Warn("cache directory unavailable, running hot-only", slog.String("error", err.Error()))
		return cache.New(cfg.HotCacheCapacity, cfg.HotCacheShards, nil), func() {}
	}
	db, err := badgerkv.Open(cacheDir)
	if err != nil {
		logger.Warn("embedding cache BadgerDB unavailable, running hot-only", slog.String("error", err.Error()))
		return cache.New(cfg.HotCacheCapacity, cfg.HotCacheShards, nil), func() {}
	}
	c := cache.New(cfg.HotCacheCapacity, cfg.HotCacheShards, db, cache.WithLogger(logger))
	return c, func() { _ = db.Close() }
}

// openPromotions opens the promotion store's BadgerDB at promoDir. Unlike
// the embedding cache, the promotion store has no degraded mode of its
// own — an unusable directory is fatal, since every promotion lookup would
// otherwise silently report "not found".
func openPromotions(logger *slog.Logger, cfg *engineconfig.Config) (*promotion.Store, func(), error) {
	if err := os.MkdirAll(promoDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create promotions directory %s: %w", promoDir, err)
	}
	db, err := badgerkv.Open(promoDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open promotions BadgerDB at %s: %w", promoDir, err)
	}
	store := promotion.New(db, cfg.PromotionRowBudget, promotion.WithLogger(logger))
	return store, func() { _ = db.Close() }, nil
}

func newEmbedProvider(logger *slog.Logger) providers.EmbeddingProvider {
	return providers.NewOllamaEmbeddingProvider(ollamaURL, ollamaModel, "", logger)
}

// newRerankProvider falls back to providers.NoopRerankProvider when no
// --rerank-url is configured, which drives the matcher's own rerank_timeout
// degrade path to keep the shortlist's hybrid cosine+BM25 order (spec
// §4.4 Step C) instead of failing the query.
func newRerankProvider(logger *slog.Logger) providers.RerankProvider {
	if rerankURL == "" {
		return providers.NoopRerankProvider{}
	}
	return providers.NewHTTPRerankProvider(rerankURL, rerankToken, logger)
}

func newCanonicalizer(cfg *engineconfig.Config) *enginehash.Canonicalizer {
	return enginehash.NewCanonicalizer(cfg.VolatileAttributePatterns)
}
