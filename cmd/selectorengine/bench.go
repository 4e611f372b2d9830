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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/selectorengine/core/orchestrator"
)

var (
	benchFixture string
	benchRepeat  int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Replay a fixture's intents against the engine and report retrieve() latency percentiles",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().StringVar(&benchFixture, "fixture", "", "path to a JSON fixture: {\"snapshot\": ..., \"intents\": [...]}")
	benchCmd.Flags().IntVar(&benchRepeat, "repeat", 1, "number of times to replay the fixture's intent list")
	_ = benchCmd.MarkFlagRequired("fixture")
}

type benchFixtureDTO struct {
	Snapshot rawSnapshotDTO `json:"snapshot"`
	Intents  []intentDTO    `json:"intents"`
}

func runBench(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(benchFixture)
	if err != nil {
		return fmt.Errorf("read fixture %s: %w", benchFixture, err)
	}
	var fixture benchFixtureDTO
	if err := json.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}
	if len(fixture.Intents) == 0 {
		return fmt.Errorf("fixture %s has no intents", benchFixture)
	}

	logger := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	embCache, closeCache := openCache(logger, cfg)
	defer closeCache()

	promotions, closePromotions, err := openPromotions(logger, cfg)
	if err != nil {
		return err
	}
	defer closePromotions()

	o := orchestrator.New(cfg, newCanonicalizer(cfg), embCache, promotions,
		newEmbedProvider(logger), newRerankProvider(logger), modelID, logger, nil)

	raw := fixture.Snapshot.toDomain()
	var durations []time.Duration
	var successes, degraded, notFound int

	for rep := 0; rep < benchRepeat; rep++ {
		for _, intentReq := range fixture.Intents {
			intent := intentReq.toDomain()
			start := time.Now()
			result, err := o.Retrieve(context.Background(), intent, raw)
			elapsed := time.Since(start)
			if err != nil {
				fmt.Printf("intent %q: error: %v\n", intent.Target, err)
				continue
			}
			durations = append(durations, elapsed)
			switch result.Status {
			case "success":
				successes++
			case "degraded":
				degraded++
			case "element_not_found":
				notFound++
			}
		}
	}

	if len(durations) == 0 {
		return fmt.Errorf("bench: no successful retrieve() calls to measure")
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	fmt.Printf("\nRan %d retrieve() calls (%d repeat(s) x %d intent(s)):\n", len(durations), benchRepeat, len(fixture.Intents))
	fmt.Printf("  success:            %d\n", successes)
	fmt.Printf("  degraded:           %d\n", degraded)
	fmt.Printf("  element_not_found:  %d\n", notFound)
	fmt.Printf("  p50:  %s\n", percentile(durations, 0.50))
	fmt.Printf("  p90:  %s\n", percentile(durations, 0.90))
	fmt.Printf("  p99:  %s\n", percentile(durations, 0.99))
	fmt.Printf("  max:  %s\n", durations[len(durations)-1])
	return nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
