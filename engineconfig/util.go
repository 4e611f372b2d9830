// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engineconfig

import (
	"os"
	"regexp"

	"github.com/selectorengine/core/enginehash"
)

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func compilePattern(name string) (enginehash.VolatilePattern, error) {
	re, err := regexp.Compile(name)
	if err != nil {
		return enginehash.VolatilePattern{}, err
	}
	return enginehash.VolatilePattern{Name: name, Regex: re}, nil
}
