// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package promotion

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/selectorengine/core/storage/badgerkv"
)

func openTestStore(t *testing.T, rowBudget int) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "promotion-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := badgerkv.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db, rowBudget)
}

func TestStore_LookupMissThenRecordSuccessRoundTrip(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	_, ok, err := s.Lookup(ctx, "page1", "frame1", "submit-button")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.RecordSuccess(ctx, "page1", "frame1", "submit-button", "//button[@id='go']", "id"))

	p, ok, err := s.Lookup(ctx, "page1", "frame1", "submit-button")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "//button[@id='go']", p.WinningXPath)
	require.Equal(t, uint32(1), p.SuccessCount)
	require.False(t, p.Demoted)
}

func TestStore_DemotionRule(t *testing.T) {
	s := openTestStore(t, 100)
	ctx := context.Background()

	require.NoError(t, s.RecordSuccess(ctx, "page1", "frame1", "label", "//a", "id"))
	for i := 0; i < 4; i++ {
		require.NoError(t, s.RecordFailure(ctx, "page1", "frame1", "label"))
	}
	p, ok, err := s.Lookup(ctx, "page1", "frame1", "label")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, p.Demoted, "failure_count(4) must not yet exceed success_count(1)+3")

	require.NoError(t, s.RecordFailure(ctx, "page1", "frame1", "label"))
	p, ok, err = s.Lookup(ctx, "page1", "frame1", "label")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, p.Demoted, "failure_count(5) > success_count(1)+3 must demote")
}

func TestStore_EvictsOverRowBudgetByLRU(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.RecordSuccess(ctx, "p", "f", "a", "//a", "id"))
	require.NoError(t, s.RecordSuccess(ctx, "p", "f", "b", "//b", "id"))
	require.NoError(t, s.RecordSuccess(ctx, "p", "f", "c", "//c", "id"))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.LessOrEqual(t, count, 2)

	_, ok, err := s.Lookup(ctx, "p", "f", "a")
	require.NoError(t, err)
	require.False(t, ok, "oldest row should have been evicted over budget")
}

func TestStore_SurvivesRestart(t *testing.T) {
	dir, err := os.MkdirTemp("", "promotion-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	db, err := badgerkv.Open(dir)
	require.NoError(t, err)

	s := New(db, 100)
	ctx := context.Background()
	require.NoError(t, s.RecordSuccess(ctx, "page1", "frame1", "label", "//x", "aria-label"))
	require.NoError(t, db.Close())

	db2, err := badgerkv.Open(dir)
	require.NoError(t, err)
	defer db2.Close()

	s2 := New(db2, 100)
	p, ok, err := s2.Lookup(ctx, "page1", "frame1", "label")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "//x", p.WinningXPath)
}
