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

package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cie-oss/pkg/store"
)

// fakeEmbedder returns a fixed vector regardless of input text.
type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) { return f.vec, nil }
func (f fakeEmbedder) Dimension() int                                       { return len(f.vec) }
func (f fakeEmbedder) ModelID() string                                      { return "fake" }

// scriptBackend is a store.Backend test double that dispatches on
// substrings of the Datalog script, returning canned rows. It lets
// retrieval tests exercise query construction without a live CozoDB.
type scriptBackend struct {
	queryFunc func(script string) (*store.QueryResult, error)
}

func (b *scriptBackend) Query(_ context.Context, script string) (*store.QueryResult, error) {
	return b.queryFunc(script)
}
func (b *scriptBackend) Execute(_ context.Context, _ string) error { return nil }
func (b *scriptBackend) Close() error                              { return nil }

func TestVectorSearch_BuildsHNSWQueryAndConvertsDistance(t *testing.T) {
	var gotScript string
	backend := &scriptBackend{queryFunc: func(script string) (*store.QueryResult, error) {
		gotScript = script
		return &store.QueryResult{
			Headers: []string{"id", "point_id", "distance", "name", "kind", "language", "file_path", "line_start", "line_end", "signature", "role"},
			Rows: [][]any{
				{"unit-1", "pt-1", 0.2, "DoThing", "function", "go", "a.go", int64(10), int64(20), "func DoThing()", "source"},
			},
		}, nil
	}}
	eng := New(backend, fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}})

	hits, err := eng.VectorSearch(context.Background(), "how does DoThing work", "svc:code", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	assert.Contains(t, gotScript, "~cie_unit_embedding:semantic")
	assert.Contains(t, gotScript, "svc:code")
	assert.InDelta(t, 0.8, hits[0].Score, 1e-9)
	assert.Equal(t, "DoThing", hits[0].Payload.Name)
	assert.Equal(t, 10, hits[0].Payload.LineStart)
}

func TestVectorSearch_ExcludeRolesDropsMatchingHitsAndOversamples(t *testing.T) {
	var gotScript string
	backend := &scriptBackend{queryFunc: func(script string) (*store.QueryResult, error) {
		gotScript = script
		return &store.QueryResult{
			Headers: []string{"id", "point_id", "distance", "name", "kind", "language", "file_path", "line_start", "line_end", "signature", "role"},
			Rows: [][]any{
				{"unit-1", "pt-1", 0.1, "ParseArgs", "function", "go", "a_test.go", int64(1), int64(5), "func ParseArgs()", "test"},
				{"unit-2", "pt-2", 0.2, "DoThing", "function", "go", "a.go", int64(10), int64(20), "func DoThing()", "source"},
			},
		}, nil
	}}
	eng := New(backend, fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}})

	hits, err := eng.VectorSearch(context.Background(), "how does DoThing work", "svc:code", 5, "test", "generated")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "DoThing", hits[0].Payload.Name)
	assert.Equal(t, "source", hits[0].Payload.Role)
	assert.Contains(t, gotScript, ":limit 100") // k * 20 oversample when excluding roles
}

func TestVectorSearch_DefaultsKWhenNonPositive(t *testing.T) {
	backend := &scriptBackend{queryFunc: func(script string) (*store.QueryResult, error) {
		assert.Contains(t, script, ":limit 10")
		return &store.QueryResult{}, nil
	}}
	eng := New(backend, fakeEmbedder{vec: []float32{1}})
	_, err := eng.VectorSearch(context.Background(), "q", "ns", 0)
	require.NoError(t, err)
}

func TestGraphOutgoing_StopsAtTerminalNodesAndDedups(t *testing.T) {
	// a -> b -> (nothing); a -> c -> (nothing)
	backend := &scriptBackend{queryFunc: func(script string) (*store.QueryResult, error) {
		switch {
		case strings.Contains(script, `id = "a"`):
			return &store.QueryResult{Rows: [][]any{
				{"b", "B", "function", "f.go", int64(1)},
				{"c", "C", "function", "f.go", int64(2)},
			}}, nil
		default:
			return &store.QueryResult{}, nil
		}
	}}
	eng := New(backend, fakeEmbedder{vec: []float32{1}})

	paths, err := eng.GraphOutgoing(context.Background(), "ns", "a", 3)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	terminals := map[string]bool{}
	for _, p := range paths {
		terminals[p.Nodes[len(p.Nodes)-1].ID] = true
	}
	assert.True(t, terminals["b"])
	assert.True(t, terminals["c"])
}

func TestGraphOutgoing_CapsDepthAtDefaultMax(t *testing.T) {
	calls := 0
	backend := &scriptBackend{queryFunc: func(script string) (*store.QueryResult, error) {
		calls++
		// Chain that never terminates on its own: n -> n+1 forever.
		id := script[strings.Index(script, `id = "`)+6:]
		id = id[:strings.Index(id, `"`)]
		next := id + "x"
		return &store.QueryResult{Rows: [][]any{{next, "N", "function", "f.go", int64(1)}}}, nil
	}}
	eng := New(backend, fakeEmbedder{vec: []float32{1}})

	paths, err := eng.GraphOutgoing(context.Background(), "ns", "a", 100)
	require.NoError(t, err)
	for _, p := range paths {
		assert.LessOrEqual(t, len(p.Nodes)-1, DefaultMaxDepth)
	}
}

func TestListNamespaces_ReturnsDistinctNamespacesFromCieUnit(t *testing.T) {
	backend := &scriptBackend{queryFunc: func(script string) (*store.QueryResult, error) {
		assert.Contains(t, script, "cie_unit")
		return &store.QueryResult{Rows: [][]any{{"sock_shop:payment"}, {"sock_shop:catalog"}}}, nil
	}}
	eng := New(backend, fakeEmbedder{vec: []float32{1}})

	namespaces, err := eng.ListNamespaces(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sock_shop:payment", "sock_shop:catalog"}, namespaces)
}

func TestExpandNamespacePrefix_QualifiedNamespacePassesThroughWithoutQuerying(t *testing.T) {
	backend := &scriptBackend{queryFunc: func(string) (*store.QueryResult, error) {
		t.Fatal("a qualified namespace must not trigger a namespace listing query")
		return nil, nil
	}}
	eng := New(backend, fakeEmbedder{vec: []float32{1}})

	matches, err := eng.ExpandNamespacePrefix(context.Background(), "sock_shop:payment")
	require.NoError(t, err)
	assert.Equal(t, []string{"sock_shop:payment"}, matches)
}

func TestExpandNamespacePrefix_UnqualifiedNamespaceMatchesSharedCorpusPrefix(t *testing.T) {
	backend := &scriptBackend{queryFunc: func(script string) (*store.QueryResult, error) {
		return &store.QueryResult{Rows: [][]any{
			{"sock_shop:payment"}, {"sock_shop:catalog"}, {"other_corpus:svc"},
		}}, nil
	}}
	eng := New(backend, fakeEmbedder{vec: []float32{1}})

	matches, err := eng.ExpandNamespacePrefix(context.Background(), "sock_shop")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sock_shop:payment", "sock_shop:catalog"}, matches)
}

func TestGraphIncoming_ReturnsImmediateCallersOnly(t *testing.T) {
	backend := &scriptBackend{queryFunc: func(script string) (*store.QueryResult, error) {
		assert.Contains(t, script, "callee_id: id")
		return &store.QueryResult{Rows: [][]any{
			{"caller-1", "Caller", "function", "c.go", int64(5)},
		}}, nil
	}}
	eng := New(backend, fakeEmbedder{vec: []float32{1}})

	nodes, err := eng.GraphIncoming(context.Background(), "ns", "callee-1")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "caller-1", nodes[0].ID)
}
