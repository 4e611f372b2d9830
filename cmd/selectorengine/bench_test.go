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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPercentile_ReturnsBoundedIndex(t *testing.T) {
	sorted := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
	}
	require.Equal(t, 30*time.Millisecond, percentile(sorted, 0.50))
	require.Equal(t, 50*time.Millisecond, percentile(sorted, 0.99))
	require.Equal(t, 10*time.Millisecond, percentile(sorted, 0))
}

func TestPercentile_EmptyReturnsZero(t *testing.T) {
	require.Equal(t, time.Duration(0), percentile(nil, 0.5))
}
