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

package vectorload

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cie-oss/internal/engine/embedding"
	"github.com/kraklabs/cie-oss/internal/engine/parser"
	"github.com/kraklabs/cie-oss/pkg/store"
)

type fakeBackend struct {
	scripts   []string
	failErr   error // when set, every Execute call fails with this error
	execCalls int
}

func (f *fakeBackend) Query(_ context.Context, _ string) (*store.QueryResult, error) {
	return &store.QueryResult{}, nil
}

func (f *fakeBackend) Execute(_ context.Context, script string) error {
	f.execCalls++
	if f.failErr != nil {
		return f.failErr
	}
	f.scripts = append(f.scripts, script)
	return nil
}

func (f *fakeBackend) Close() error { return nil }

type failingProvider struct{}

func (failingProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider down")
}
func (failingProvider) Dimension() int  { return 4 }
func (failingProvider) ModelID() string { return "failing" }

func TestPointID_IsStableAndUUIDShaped(t *testing.T) {
	a := PointID("abc123")
	b := PointID("abc123")
	assert.Equal(t, a, b)
	assert.Len(t, a, 36)
	assert.Equal(t, strings.Count(a, "-"), 4)
}

func TestPointID_PadsShortIDsAndTruncatesLongOnes(t *testing.T) {
	short := PointID("ab")
	assert.Len(t, short, 36)

	long := PointID(strings.Repeat("abcdef0123456789", 10))
	assert.Len(t, long, 36)
}

func TestBuildPayload_TruncatesExcerpt(t *testing.T) {
	l := New(&fakeBackend{}, embedding.NewMockProvider(4))
	u := parser.CodeUnit{ID: "u1", Code: strings.Repeat("x", DefaultExcerptLen+500)}
	payload := l.BuildPayload(u)
	assert.Len(t, payload.CodeExcerpt, DefaultExcerptLen)
}

func TestEmbedText_ElidesEmptyComponents(t *testing.T) {
	u := parser.CodeUnit{Name: "Foo"}
	text := EmbedText(u, "")
	assert.Equal(t, "Foo", text)
}

func TestWriteUnits_EmbedsAndWritesInBatches(t *testing.T) {
	backend := &fakeBackend{}
	l := New(backend, embedding.NewMockProvider(4))

	units := make([]parser.CodeUnit, DefaultBatchSize+3)
	for i := range units {
		units[i] = parser.CodeUnit{ID: strings.Repeat("a", i+1), Name: "Unit", Code: "body"}
	}

	skipped, err := l.WriteUnits(context.Background(), units)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Len(t, backend.scripts, 2) // one full batch + a 3-unit remainder
}

func TestWriteUnits_SkipsUnitsWithEmptyEmbedText(t *testing.T) {
	backend := &fakeBackend{}
	l := New(backend, embedding.NewMockProvider(4))

	skipped, err := l.WriteUnits(context.Background(), []parser.CodeUnit{{ID: "u1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Empty(t, backend.scripts)
}

func TestWriteUnits_SkipsOnPersistentProviderFailureWithoutError(t *testing.T) {
	backend := &fakeBackend{}
	l := New(backend, failingProvider{})

	skipped, err := l.WriteUnits(context.Background(), []parser.CodeUnit{{ID: "u1", Name: "Foo"}})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Empty(t, backend.scripts)
}

func TestWriteUnits_RetriesThenSkipsJustTheFailingBatch(t *testing.T) {
	backend := &fakeBackend{failErr: errors.New("backend write rejected")}
	l := New(backend, embedding.NewMockProvider(4))
	l.batchSize = 1
	l.retry = embedding.RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}

	units := []parser.CodeUnit{
		{ID: "u1", Name: "Foo", Code: "body"},
		{ID: "u2", Name: "Bar", Code: "body"},
	}

	skipped, err := l.WriteUnits(context.Background(), units)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped) // both batches exhaust retries and get skipped, not aborted
	assert.Empty(t, backend.scripts)
	assert.Equal(t, 6, backend.execCalls) // 2 batches * (1 initial + 2 retries)
}

func TestWriteUnits_SucceedsOnRetryAfterTransientFailure(t *testing.T) {
	backend := &failNTimesBackend{failTimes: 1}
	l := New(backend, embedding.NewMockProvider(4))
	l.retry = embedding.RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}

	units := []parser.CodeUnit{{ID: "u1", Name: "Foo", Code: "body"}}

	skipped, err := l.WriteUnits(context.Background(), units)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Len(t, backend.scripts, 1)
}

type failNTimesBackend struct {
	scripts   []string
	failTimes int
	calls     int
}

func (f *failNTimesBackend) Query(_ context.Context, _ string) (*store.QueryResult, error) {
	return &store.QueryResult{}, nil
}

func (f *failNTimesBackend) Execute(_ context.Context, script string) error {
	f.calls++
	if f.calls <= f.failTimes {
		return errors.New("transient backend error")
	}
	f.scripts = append(f.scripts, script)
	return nil
}

func (f *failNTimesBackend) Close() error { return nil }
