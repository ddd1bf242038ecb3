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

// Package retrieval implements the retrieval engine (C7): vector_search,
// graph_outgoing, and graph_incoming, each independently and concurrently
// callable against the shared store.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/kraklabs/cie-oss/internal/engine/embedding"
	"github.com/kraklabs/cie-oss/pkg/store"
)

// DefaultMaxDepth bounds graph_outgoing traversal depth (spec §4.7).
const DefaultMaxDepth = 3

// Hit is one vector_search result.
type Hit struct {
	OriginalID string
	Payload    Payload
	Score      float64
}

// Payload mirrors the vector loader's retrieval-facing record.
type Payload struct {
	Namespace   string
	Name        string
	Kind        string
	Language    string
	FilePath    string
	LineStart   int
	LineEnd     int
	Signature   string
	CodeExcerpt string
	Role        string
}

// Node is one CodeUnit as seen by graph traversal.
type Node struct {
	ID       string
	Name     string
	Kind     string
	FilePath string
	LineStart int
}

// Path is one graph_outgoing traversal result: the chain of nodes from the
// queried id to a terminal callee.
type Path struct {
	Nodes []Node
}

// Engine runs retrieval primitives against a Backend.
type Engine struct {
	backend  store.Backend
	embedder embedding.Provider
}

// New constructs an Engine.
func New(backend store.Backend, embedder embedding.Provider) *Engine {
	return &Engine{backend: backend, embedder: embedder}
}

// VectorSearch embeds queryText and returns up to k hits in namespace,
// sorted by descending similarity (spec §4.7). namespace is a hard filter;
// the CozoDB HNSW index provides approximate nearest-neighbor search, with
// cosine distance translated to a similarity score (1 - distance).
//
// excludeRoles (SPEC_FULL.md Part E.4) drops hits whose unit role matches
// any of the given roles, e.g. excludeRoles("test", "generated") to focus
// retrieval on implementation code. Role filtering happens after the HNSW
// search returns, so excluding roles oversamples candidates first (mirrors
// the teacher's post-filter-after-oversample approach for role/path
// filters, since the HNSW index itself has no role predicate).
func (e *Engine) VectorSearch(ctx context.Context, queryText, namespace string, k int, excludeRoles ...string) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	vec, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector_search: embed query: %w", err)
	}

	queryK := k
	if len(excludeRoles) > 0 {
		queryK = k * 20
	}
	ef := queryK * 4
	if ef < 50 {
		ef = 50
	}
	script := fmt.Sprintf(`?[id, point_id, distance, name, kind, language, file_path, line_start, line_end, signature, role] :=
		~cie_unit_embedding:semantic { namespace, id | query: q, k: %d, ef: %d, bind_distance: distance },
		namespace = %s,
		q = %s,
		*cie_unit { namespace, id, name, kind, language, file_path, line_start, line_end, signature, role }
		:order distance
		:limit %d`, queryK, ef, q(namespace), vecLiteral(vec), queryK)

	result, err := e.backend.Query(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector_search: %w", err)
	}

	excluded := make(map[string]bool, len(excludeRoles))
	for _, r := range excludeRoles {
		excluded[r] = true
	}

	hits := make([]Hit, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 11 {
			continue
		}
		role := asString(row[10])
		if excluded[role] {
			continue
		}
		distance := asFloat(row[2])
		hits = append(hits, Hit{
			OriginalID: asString(row[0]),
			Score:      1.0 - distance,
			Payload: Payload{
				Namespace: namespace,
				Name:      asString(row[3]),
				Kind:      asString(row[4]),
				Language:  asString(row[5]),
				FilePath:  asString(row[6]),
				LineStart: asInt(row[7]),
				LineEnd:   asInt(row[8]),
				Signature: asString(row[9]),
				Role:      role,
			},
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// ListNamespaces returns every distinct namespace with at least one unit
// (spec §4.8 step 2: "once across all namespaces when no filter is given").
func (e *Engine) ListNamespaces(ctx context.Context) ([]string, error) {
	result, err := e.backend.Query(ctx, `?[namespace] := *cie_unit{namespace}`)
	if err != nil {
		return nil, fmt.Errorf("retrieval: list_namespaces: %w", err)
	}
	namespaces := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 1 {
			continue
		}
		namespaces = append(namespaces, asString(row[0]))
	}
	return namespaces, nil
}

// ExpandNamespacePrefix resolves an unqualified namespace into every
// colon-qualified namespace sharing its corpus prefix (Part F decision 2: a
// namespace with no ":" is a prefix filter, e.g. "sock_shop" matches
// "sock_shop:payment" and "sock_shop:catalog"). A namespace that already
// carries a ":" is returned unchanged, since it is already the
// single-source-of-truth qualified form.
func (e *Engine) ExpandNamespacePrefix(ctx context.Context, namespace string) ([]string, error) {
	if strings.Contains(namespace, ":") {
		return []string{namespace}, nil
	}
	all, err := e.ListNamespaces(ctx)
	if err != nil {
		return nil, err
	}
	prefix := namespace + ":"
	var matches []string
	for _, ns := range all {
		if ns == namespace || strings.HasPrefix(ns, prefix) {
			matches = append(matches, ns)
		}
	}
	return matches, nil
}

// GraphOutgoing returns CALLS paths from id up to depth hops (default,
// capped at DefaultMaxDepth), deduplicated by terminal node (spec §4.7).
func (e *Engine) GraphOutgoing(ctx context.Context, namespace, id string, depth int) ([]Path, error) {
	if depth <= 0 || depth > DefaultMaxDepth {
		depth = DefaultMaxDepth
	}

	frontier := [][]Node{{{ID: id}}}
	seenTerminal := make(map[string]bool)
	var paths []Path

	for level := 0; level < depth; level++ {
		var next [][]Node
		for _, path := range frontier {
			last := path[len(path)-1]
			callees, err := e.outgoingOneHop(ctx, namespace, last.ID)
			if err != nil {
				return nil, fmt.Errorf("retrieval: graph_outgoing: %w", err)
			}
			if len(callees) == 0 {
				if !seenTerminal[last.ID] && len(path) > 1 {
					seenTerminal[last.ID] = true
					paths = append(paths, Path{Nodes: path})
				}
				continue
			}
			for _, callee := range callees {
				extended := make([]Node, len(path)+1)
				copy(extended, path)
				extended[len(path)] = callee
				if level == depth-1 || seenTerminal[callee.ID] {
					if !seenTerminal[callee.ID] {
						seenTerminal[callee.ID] = true
						paths = append(paths, Path{Nodes: extended})
					}
					continue
				}
				next = append(next, extended)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return paths, nil
}

func (e *Engine) outgoingOneHop(ctx context.Context, namespace, id string) ([]Node, error) {
	script := fmt.Sprintf(`?[callee_id, name, kind, file_path, line_start] :=
		*cie_calls { namespace, caller_id: id, callee_id },
		*cie_unit { namespace, id: callee_id, name, kind, file_path, line_start },
		namespace = %s, id = %s`, q(namespace), q(id))
	result, err := e.backend.Query(ctx, script)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 5 {
			continue
		}
		nodes = append(nodes, Node{ID: asString(row[0]), Name: asString(row[1]), Kind: asString(row[2]), FilePath: asString(row[3]), LineStart: asInt(row[4])})
	}
	return nodes, nil
}

// GraphIncoming returns the immediate callers of id (spec §4.7).
func (e *Engine) GraphIncoming(ctx context.Context, namespace, id string) ([]Node, error) {
	script := fmt.Sprintf(`?[caller_id, name, kind, file_path, line_start] :=
		*cie_calls { namespace, caller_id, callee_id: id },
		*cie_unit { namespace, id: caller_id, name, kind, file_path, line_start },
		namespace = %s, id = %s`, q(namespace), q(id))
	result, err := e.backend.Query(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("retrieval: graph_incoming: %w", err)
	}
	nodes := make([]Node, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 5 {
			continue
		}
		nodes = append(nodes, Node{ID: asString(row[0]), Name: asString(row[1]), Kind: asString(row[2]), FilePath: asString(row[3]), LineStart: asInt(row[4])})
	}
	return nodes, nil
}

func vecLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", v)
	}
	b.WriteByte(']')
	return b.String()
}

func q(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
