// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"encoding/hex"
	"fmt"
	"math"
)

func float32bits(f float32) uint32   { return math.Float32bits(f) }
func float32frombits(b uint32) float32 { return math.Float32frombits(b) }

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

func hexDecode20(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 20 {
		// content hashes shorter than 160 bits (e.g. in unit tests using
		// short fixture keys) are zero-padded; longer ones are truncated,
		// matching the row layout's fixed 20-byte field.
		out := make([]byte, 20)
		copy(out, b)
		return out, nil
	}
	return b, nil
}

func keyPrefix(modelID string) string {
	return fmt.Sprintf("%s/%s/", recordMagic, modelID)
}
