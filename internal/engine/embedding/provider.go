// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package embedding is the embedding client (C3): a pluggable Provider plus
// a content-addressed cache, fronting the retrieval engine's vector writes
// and the orchestrator's query-time embedding call.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"log/slog"
)

// Provider generates an embedding vector for one piece of text (spec §4.3).
// Implementations return an L2-normalized vector or an error; they never
// panic on provider-side failures.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension reports the vector width this provider produces.
	Dimension() int
	// ModelID identifies the model for cache-key purposes (spec §4.3:
	// cache keyed on (model_id, input)).
	ModelID() string
}

// RetryConfig controls the exponential-backoff-with-jitter retry loop
// every HTTP-backed provider runs its request through.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig matches the lineage's embedding retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second, Multiplier: 2.0}
}

// withRetry runs fn, retrying on classified-retryable errors with
// exponential backoff and jitter.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() ([]float32, error)) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			d := backoffWithJitter(cfg.InitialBackoff, attempt, cfg.Multiplier, cfg.MaxBackoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
		vec, err := fn()
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("embed: exhausted %d retries: %w", cfg.MaxRetries, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "temporarily unavailable", "connection refused", "connection reset", "deadline exceeded", "eof", " 429", " 500", " 502", " 503", " 504"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func backoffWithJitter(base time.Duration, attempt int, mult float64, cap time.Duration) time.Duration {
	exp := float64(base)
	for i := 0; i < attempt; i++ {
		exp *= mult
	}
	d := time.Duration(exp)
	if d > cap {
		d = cap
	}
	if d <= 0 {
		return base
	}
	return time.Duration(lcgNext(int64(d)))
}

// lcgNext is a small deterministic jitter source, avoiding a global
// math/rand dependency for what is otherwise a timing nicety.
var lcgState int64

func lcgNext(bound int64) int64 {
	if bound <= 0 {
		return 0
	}
	if lcgState == 0 {
		lcgState = time.Now().UnixNano()
	}
	const a, c, m = 6364136223846793005, 1, 1<<63 - 1
	lcgState = (a*lcgState + c) & m
	if lcgState < 0 {
		lcgState = -lcgState
	}
	return lcgState % bound
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// MockProvider produces deterministic, non-semantic vectors; used for
// tests and for ingestion without a reachable embedding service.
type MockProvider struct {
	dim int
}

// NewMockProvider constructs a deterministic mock Provider of width dim.
func NewMockProvider(dim int) *MockProvider { return &MockProvider{dim: dim} }

func (m *MockProvider) Dimension() int  { return m.dim }
func (m *MockProvider) ModelID() string { return "mock" }

func (m *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	var hash uint64 = 5381
	for _, c := range text {
		hash = ((hash << 5) + hash) + uint64(c)
	}
	vec := make([]float32, m.dim)
	for i := range vec {
		val := float32((hash+uint64(i)*7919)%10000) / 10000.0
		vec[i] = val*2.0 - 1.0
	}
	return normalize(vec), nil
}

// OpenAIProvider calls an OpenAI-compatible embeddings endpoint (OpenAI
// itself, Azure OpenAI, or any self-hosted server speaking the same
// request/response shape).
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	dim     int
	client  *http.Client
	retry   RetryConfig
	logger  *slog.Logger
}

// NewOpenAIProvider constructs an OpenAI-compatible Provider. apiKey falls
// back to OPENAI_API_KEY, baseURL to OPENAI_API_BASE or the public API.
func NewOpenAIProvider(apiKey, baseURL, model string, dim int, logger *slog.Logger) *OpenAIProvider {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_API_BASE")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), model: model, dim: dim,
		client: &http.Client{Timeout: 30 * time.Second}, retry: DefaultRetryConfig(), logger: logger,
	}
}

func (o *OpenAIProvider) Dimension() int  { return o.dim }
func (o *OpenAIProvider) ModelID() string { return "openai:" + o.model }

type openaiEmbedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (o *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return withRetry(ctx, o.retry, func() ([]float32, error) {
		body, err := json.Marshal(openaiEmbedRequest{Input: text, Model: o.model})
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+o.apiKey)

		resp, err := o.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("openai embeddings api error (status %d): %s", resp.StatusCode, string(respBody))
		}

		var parsed openaiEmbedResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
			return nil, fmt.Errorf("openai returned no embedding")
		}
		vec := make([]float32, len(parsed.Data[0].Embedding))
		for i, v := range parsed.Data[0].Embedding {
			vec[i] = float32(v)
		}
		return normalize(vec), nil
	})
}

// OllamaProvider calls a local Ollama server's embeddings endpoint.
type OllamaProvider struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
	retry   RetryConfig
}

// NewOllamaProvider constructs a Provider against a local Ollama instance.
func NewOllamaProvider(baseURL, model string, dim int) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"), model: model, dim: dim,
		client: &http.Client{Timeout: 120 * time.Second}, retry: DefaultRetryConfig(),
	}
}

func (o *OllamaProvider) Dimension() int  { return o.dim }
func (o *OllamaProvider) ModelID() string { return "ollama:" + o.model }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (o *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	prompt := text
	if strings.Contains(strings.ToLower(o.model), "nomic") {
		prompt = "search_document: " + text
	}
	return withRetry(ctx, o.retry, func() ([]float32, error) {
		body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Prompt: prompt})
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request (is ollama running at %s?): %w", o.baseURL, err)
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("ollama api error (status %d): %s", resp.StatusCode, string(respBody))
		}

		var parsed ollamaEmbedResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		if len(parsed.Embedding) == 0 {
			return nil, fmt.Errorf("ollama returned empty embedding")
		}
		vec := make([]float32, len(parsed.Embedding))
		for i, v := range parsed.Embedding {
			vec[i] = float32(v)
		}
		return normalize(vec), nil
	})
}

// New builds a Provider by name, matching the lineage's provider-selection
// convention (env-var fallbacks for secrets/base URLs).
func New(providerType, baseURL, model, apiKey string, dim int, logger *slog.Logger) (Provider, error) {
	switch providerType {
	case "", "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(apiKey, baseURL, model, dim, logger), nil
	case "ollama":
		return NewOllamaProvider(baseURL, model, dim), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", providerType)
	}
}
