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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/awnumar/memguard"
	"golang.org/x/sync/errgroup"
)

// ollamaEmbedWarmConcurrency bounds parallel /api/embed calls during a
// batch EmbedElements call, mirroring embedder.go's toolEmbeddingWarmConcurrency.
const ollamaEmbedWarmConcurrency = 10

type ollamaEmbedReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaEmbeddingProvider is the default EmbeddingProvider, calling an
// Ollama-compatible /api/embed endpoint, ported from embedder.go's
// ToolEmbeddingCache.embed.
type OllamaEmbeddingProvider struct {
	url    string
	model  string
	client *http.Client
	logger *slog.Logger
	// token is an optional bearer credential, held in locked memory so it
	// never appears in a core dump or gets paged to swap.
	token *memguard.Enclave
}

// NewOllamaEmbeddingProvider builds a provider against the given endpoint
// and model. bearerToken may be empty for an unauthenticated local Ollama
// instance.
func NewOllamaEmbeddingProvider(url, model, bearerToken string, logger *slog.Logger) *OllamaEmbeddingProvider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &OllamaEmbeddingProvider{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
	if bearerToken != "" {
		p.token = memguard.NewEnclave([]byte(bearerToken))
	}
	return p
}

func (p *OllamaEmbeddingProvider) authHeader() (string, error) {
	if p.token == nil {
		return "", nil
	}
	buf, err := p.token.Open()
	if err != nil {
		return "", fmt.Errorf("open credential enclave: %w", err)
	}
	defer buf.Destroy()
	return "Bearer " + buf.String(), nil
}

// EmbedQuery implements EmbeddingProvider.
func (p *OllamaEmbeddingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text)
}

// EmbedElements implements EmbeddingProvider, embedding each fragment
// concurrently under a bounded semaphore, per spec §5's fan-out allowance.
func (p *OllamaEmbeddingProvider) EmbedElements(ctx context.Context, fragments []string) ([][]float32, error) {
	if len(fragments) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(fragments))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, ollamaEmbedWarmConcurrency)

	for i, frag := range fragments {
		i, frag := i, frag
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			vec, err := p.embed(gctx, frag)
			if err != nil {
				return fmt.Errorf("embed element %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *OllamaEmbeddingProvider) embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedReq{Model: p.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth, err := p.authHeader(); err != nil {
		return nil, err
	} else if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed ollamaEmbedResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed service returned empty vector")
	}
	return parsed.Embeddings[0], nil
}
