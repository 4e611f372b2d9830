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
)

type httpRerankReq struct {
	Query    string `json:"query"`
	Fragment string `json:"fragment"`
}

type httpRerankResp struct {
	Score float32 `json:"score"`
}

// HTTPRerankProvider is the default RerankProvider, calling a local
// structural re-ranker service over HTTP, in the same request/response
// JSON idiom as OllamaEmbeddingProvider.
type HTTPRerankProvider struct {
	url    string
	client *http.Client
	logger *slog.Logger
	token  *memguard.Enclave
}

// NewHTTPRerankProvider builds a RerankProvider against the given endpoint.
func NewHTTPRerankProvider(url, bearerToken string, logger *slog.Logger) *HTTPRerankProvider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &HTTPRerankProvider{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	if bearerToken != "" {
		p.token = memguard.NewEnclave([]byte(bearerToken))
	}
	return p
}

func (p *HTTPRerankProvider) authHeader() (string, error) {
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

// Score implements RerankProvider.
func (p *HTTPRerankProvider) Score(ctx context.Context, queryText, elementFragment string) (float32, error) {
	reqBody, err := json.Marshal(httpRerankReq{Query: queryText, Fragment: elementFragment})
	if err != nil {
		return 0, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth, err := p.authHeader(); err != nil {
		return 0, err
	} else if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rerank HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rerank service returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed httpRerankResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("parse rerank response: %w", err)
	}
	if parsed.Score < 0 {
		parsed.Score = 0
	}
	if parsed.Score > 1 {
		parsed.Score = 1
	}
	return parsed.Score, nil
}

// NoopRerankProvider is a RerankProvider for deployments with no re-ranker
// service configured. It always errors, which drives the matcher's existing
// rerank_timeout degrade path (matcher.Semantic) to fall back to the
// shortlist's hybrid cosine+BM25 order — the correct behavior for "no
// re-ranker available," without teaching the matcher a second code path.
type NoopRerankProvider struct{}

// Score always returns an error; see NoopRerankProvider's doc comment.
func (NoopRerankProvider) Score(ctx context.Context, queryText, elementFragment string) (float32, error) {
	return 0, fmt.Errorf("rerank: no provider configured")
}
