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
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/selectorengine/core/storage/badgerkv"
	"github.com/selectorengine/core/storage/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the embedding cache's cold tier",
}

var cacheInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List every cached embedding vector, grouped by model",
	RunE:  runCacheInspect,
}

func init() {
	cacheCmd.AddCommand(cacheInspectCmd)
}

// runCacheInspect mirrors routing_cache_dump's read-only BadgerDB inspection
// tool, rendered as a bubbles/table instead of a hand-rolled column printer.
func runCacheInspect(cmd *cobra.Command, args []string) error {
	fmt.Printf("Embedding cache path: %s\n", cacheDir)

	db, err := badgerkv.Open(cacheDir)
	if err != nil {
		return fmt.Errorf("open embedding cache at %s: %w", cacheDir, err)
	}
	defer func() { _ = db.Close() }()

	c := cache.New(1, 1, db)
	entries, err := c.InspectCold(context.Background())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Cache is empty.")
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ModelID != entries[j].ModelID {
			return entries[i].ModelID < entries[j].ModelID
		}
		return entries[i].ContentHash < entries[j].ContentHash
	})

	columns := []table.Column{
		{Title: "Model", Width: 24},
		{Title: "Content Hash", Width: 42},
		{Title: "Dims", Width: 6},
		{Title: "Last Used", Width: 20},
	}
	rows := make([]table.Row, len(entries))
	for i, e := range entries {
		rows[i] = table.Row{
			e.ModelID,
			e.ContentHash,
			fmt.Sprintf("%d", e.Dims),
			time.Unix(0, e.LastUsedNs).Format("2006-01-02 15:04:05"),
		}
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("255")).Bold(false)
	t.SetStyles(styles)

	fmt.Println(t.View())
	fmt.Printf("\n%d cached vector(s) across %d model(s).\n", len(entries), countModels(entries))
	return nil
}

func countModels(entries []cache.ColdEntry) int {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.ModelID] = struct{}{}
	}
	return len(seen)
}
