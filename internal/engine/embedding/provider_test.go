// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_DeterministicAndNormalized(t *testing.T) {
	p := NewMockProvider(8)
	a, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 8)
	assertUnitNorm(t, a)
}

func TestMockProvider_DiffersByText(t *testing.T) {
	p := NewMockProvider(8)
	a, _ := p.Embed(context.Background(), "hello")
	b, _ := p.Embed(context.Background(), "goodbye")
	assert.NotEqual(t, a, b)
}

func TestNew_ConstructsMockByDefault(t *testing.T) {
	p, err := New("", "", "", "", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", p.ModelID())

	p, err = New("mock", "", "", "", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", p.ModelID())
}

func TestNew_UnknownProviderErrors(t *testing.T) {
	_, err := New("carrier-pigeon", "", "", "", 4, nil)
	assert.Error(t, err)
}

func TestOpenAIProvider_Embed_WithMockServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, "text-embedding-3-small", 3, nil)
	vec, err := p.Embed(context.Background(), "some code")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assertUnitNorm(t, vec)
}

func TestOpenAIProvider_Embed_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("key", srv.URL, "model", 3, nil)
	p.retry = RetryConfig{MaxRetries: 0}
	_, err := p.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestOllamaProvider_Embed_WithMockServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{1, 0, 0}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "nomic-embed-text", 3)
	vec, err := p.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}

func TestCachedProvider_CachesByModelAndText(t *testing.T) {
	inner := &countingProvider{MockProvider: *NewMockProvider(4)}
	cached := NewCachedProvider(inner)

	v1, err := cached.Embed(context.Background(), "repeat me")
	require.NoError(t, err)
	v2, err := cached.Embed(context.Background(), "repeat me")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, cached.Len())
}

func TestCachedProvider_MissesOnDifferentText(t *testing.T) {
	inner := &countingProvider{MockProvider: *NewMockProvider(4)}
	cached := NewCachedProvider(inner)

	_, _ = cached.Embed(context.Background(), "a")
	_, _ = cached.Embed(context.Background(), "b")
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 2, cached.Len())
}

type countingProvider struct {
	MockProvider
	calls int
}

func (c *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.MockProvider.Embed(ctx, text)
}

func assertUnitNorm(t *testing.T, v []float32) {
	t.Helper()
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}
