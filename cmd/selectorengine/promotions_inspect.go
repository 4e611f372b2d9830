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

	"github.com/selectorengine/core/enginetypes"
	"github.com/selectorengine/core/storage/badgerkv"
	"github.com/selectorengine/core/storage/promotion"
)

var promotionsCmd = &cobra.Command{
	Use:   "promotions",
	Short: "Inspect the promotion store (spec §4.7)",
}

var promotionsInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List every persisted promotion row, including demoted ones",
	RunE:  runPromotionsInspect,
}

func init() {
	promotionsCmd.AddCommand(promotionsInspectCmd)
}

func runPromotionsInspect(cmd *cobra.Command, args []string) error {
	fmt.Printf("Promotion store path: %s\n", promoDir)

	db, err := badgerkv.Open(promoDir)
	if err != nil {
		return fmt.Errorf("open promotion store at %s: %w", promoDir, err)
	}
	defer func() { _ = db.Close() }()

	store := promotion.New(db, 0)
	rows, err := store.List(context.Background())
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No promotion rows.")
		return nil
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].LastUsedNs > rows[j].LastUsedNs })

	columns := []table.Column{
		{Title: "Page", Width: 16},
		{Title: "Frame", Width: 12},
		{Title: "Label", Width: 20},
		{Title: "Strategy", Width: 12},
		{Title: "Success", Width: 8},
		{Title: "Failure", Width: 8},
		{Title: "Demoted", Width: 8},
		{Title: "Last Used", Width: 20},
	}
	tableRows := make([]table.Row, len(rows))
	demoted := 0
	for i, p := range rows {
		if p.Demoted {
			demoted++
		}
		tableRows[i] = table.Row{
			p.PageSignature, p.FrameHash, p.LabelKey, p.Strategy,
			fmt.Sprintf("%d", p.SuccessCount),
			fmt.Sprintf("%d", p.FailureCount),
			demotedMark(p),
			time.Unix(0, p.LastUsedNs).Format("2006-01-02 15:04:05"),
		}
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(tableRows),
		table.WithFocused(false),
		table.WithHeight(len(tableRows)+1),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	t.SetStyles(styles)

	fmt.Println(t.View())
	fmt.Printf("\n%d promotion row(s), %d demoted.\n", len(rows), demoted)
	return nil
}

func demotedMark(p enginetypes.Promotion) string {
	if p.Demoted {
		return "yes"
	}
	return "no"
}
