// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lexical

import "math"

// BM25 tuning constants, unchanged from the teacher's routing index:
// k1 controls term-frequency saturation, b controls length normalization.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Document is the BM25 representation of one descriptor's searchable text.
type Document struct {
	DescriptorID string
	tf           map[string]int
	len          int
}

// BuildDocument tokenizes a descriptor's searchable text (tag, role, attrs,
// visible text) into a Document, mirroring bm25.go's buildDoc.
func BuildDocument(descriptorID, searchableText string) Document {
	termSet := Tokenize(searchableText)
	tf := make(map[string]int, len(termSet))
	for term := range termSet {
		tf[term] = 1
	}
	return Document{DescriptorID: descriptorID, tf: tf, len: len(tf)}
}

// Index is a pre-built, immutable Okapi BM25 index over per-descriptor
// Documents, scoped to one frame's shortlist, ported from
// services/trace/agent/routing/bm25.go's BM25Index.
type Index struct {
	docs   []Document
	idf    map[string]float64
	avgLen float64
}

// Build constructs an Index from the frame's documents.
func Build(docs []Document) *Index {
	if len(docs) == 0 {
		return &Index{idf: make(map[string]float64)}
	}

	df := make(map[string]int)
	totalLen := 0
	for _, doc := range docs {
		totalLen += doc.len
		for term := range doc.tf {
			df[term]++
		}
	}

	n := len(docs)
	avgLen := float64(totalLen) / float64(n)

	idf := make(map[string]float64, len(df))
	for term, docFreq := range df {
		idf[term] = math.Log(float64(n+1)/float64(docFreq+1)) + 1.0
	}

	return &Index{docs: docs, idf: idf, avgLen: avgLen}
}

// IsEmpty reports whether the index holds no documents.
func (idx *Index) IsEmpty() bool { return len(idx.docs) == 0 }

// Score returns, for every descriptor whose document shares at least one
// query term, a BM25 score normalized to [0, 1] by the maximum raw score in
// this result set — the spec §4.4 Step C lexical shortlist signal.
func (idx *Index) Score(query string) map[string]float64 {
	if query == "" || len(idx.docs) == 0 {
		return map[string]float64{}
	}
	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 {
		return map[string]float64{}
	}

	scores := make(map[string]float64, len(idx.docs))
	var maxScore float64
	for _, doc := range idx.docs {
		score := bm25Score(queryTerms, doc, idx.idf, idx.avgLen)
		if score > 0 {
			scores[doc.DescriptorID] = score
			if score > maxScore {
				maxScore = score
			}
		}
	}
	if maxScore > 0 {
		for id := range scores {
			scores[id] /= maxScore
		}
	}
	return scores
}

func bm25Score(queryTerms map[string]struct{}, doc Document, idf map[string]float64, avgLen float64) float64 {
	dl := float64(doc.len)
	var score float64
	for term := range queryTerms {
		tf, inDoc := doc.tf[term]
		if !inDoc {
			continue
		}
		termIDF, known := idf[term]
		if !known {
			continue
		}
		tfFloat := float64(tf)
		numerator := tfFloat * (bm25K1 + 1)
		lengthNorm := bm25K1 * (1.0 - bm25B + bm25B*dl/avgLen)
		denominator := tfFloat + lengthNorm
		score += termIDF * (numerator / denominator)
	}
	return score
}
