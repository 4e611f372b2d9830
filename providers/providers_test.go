// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOllamaEmbeddingProvider_EmbedQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "sign in", req.Input)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResp{Embeddings: [][]float32{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	p := NewOllamaEmbeddingProvider(srv.URL, "test-model", "", nil)
	vec, err := p.EmbedQuery(context.Background(), "sign in")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOllamaEmbeddingProvider_EmbedElementsPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vec := []float32{float32(len(req.Input))}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResp{Embeddings: [][]float32{vec}})
	}))
	defer srv.Close()

	p := NewOllamaEmbeddingProvider(srv.URL, "test-model", "", nil)
	out, err := p.EmbedElements(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1}, {2}, {3}}, out)
}

func TestOllamaEmbeddingProvider_SendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(ollamaEmbedResp{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	p := NewOllamaEmbeddingProvider(srv.URL, "test-model", "secret-token", nil)
	_, err := p.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
}

func TestHTTPRerankProvider_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req httpRerankReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "sign in", req.Query)
		_ = json.NewEncoder(w).Encode(httpRerankResp{Score: 0.87})
	}))
	defer srv.Close()

	p := NewHTTPRerankProvider(srv.URL, "", nil)
	score, err := p.Score(context.Background(), "sign in", "<button>Sign in</button>")
	require.NoError(t, err)
	require.InDelta(t, 0.87, score, 1e-6)
}

func TestHTTPRerankProvider_ClampsOutOfRangeScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(httpRerankResp{Score: 1.5})
	}))
	defer srv.Close()

	p := NewHTTPRerankProvider(srv.URL, "", nil)
	score, err := p.Score(context.Background(), "q", "f")
	require.NoError(t, err)
	require.Equal(t, float32(1.0), score)
}
