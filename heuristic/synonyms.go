// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package heuristic

import (
	_ "embed"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed label_synonyms.yaml
var defaultLabelSynonymsYAML []byte

// LabelSynonyms groups interchangeable action-label words (e.g. "submit" and
// "send") so phrase matching can credit a candidate whose visible text uses
// a different member of the same group than the intent's target phrase.
type LabelSynonyms map[string][]string

var (
	cachedLabelSynonyms LabelSynonyms
	labelSynonymsOnce   sync.Once
	labelSynonymsErr    error
)

// LoadLabelSynonyms parses the embedded label_synonyms.yaml once per
// process and returns the cached result on every subsequent call.
func LoadLabelSynonyms() (LabelSynonyms, error) {
	labelSynonymsOnce.Do(func() {
		var raw map[string][]string
		if err := yaml.Unmarshal(defaultLabelSynonymsYAML, &raw); err != nil {
			labelSynonymsErr = err
			return
		}
		cachedLabelSynonyms = raw
	})
	return cachedLabelSynonyms, labelSynonymsErr
}

// MustLoadLabelSynonyms loads the label synonym groups, degrading to an
// empty map (no synonym expansion, phrase matching falls back to literal
// term overlap) if the embedded YAML fails to parse.
func MustLoadLabelSynonyms() LabelSynonyms {
	syn, err := LoadLabelSynonyms()
	if err != nil {
		slog.Warn("label synonyms failed to load, continuing without expansion", slog.String("error", err.Error()))
		return make(LabelSynonyms)
	}
	return syn
}

// groupFor returns every word in word's synonym group, including word
// itself. Matching is case-sensitive on the caller's already-lowercased
// input, consistent with phraseMatch's tokenization.
func (s LabelSynonyms) groupFor(word string) []string {
	for canon, group := range s {
		if canon == word {
			return append(group, canon)
		}
		for _, g := range group {
			if g == word {
				all := append([]string{canon}, group...)
				return all
			}
		}
	}
	return nil
}

// matches reports whether any synonym-expanded term of targetTerms appears
// among haystackTerms's own synonym-expanded terms.
func (s LabelSynonyms) matches(targetTerms, haystackTerms map[string]struct{}) bool {
	if len(s) == 0 {
		return false
	}
	for t := range targetTerms {
		for _, syn := range s.groupFor(t) {
			if _, ok := haystackTerms[syn]; ok {
				return true
			}
		}
	}
	return false
}
