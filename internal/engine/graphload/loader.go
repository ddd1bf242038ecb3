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

// Package graphload is the graph loader (C4): upserts a ParseResult's
// CodeUnits and CONTAINS edges, then resolves CALLS edges by name with the
// tie-break rules in spec §4.4.
package graphload

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/cie-oss/internal/engine/parser"
	"github.com/kraklabs/cie-oss/internal/engine/schema"
	"github.com/kraklabs/cie-oss/pkg/store"
)

// Loader writes parsed units and edges into a Backend.
type Loader struct {
	backend store.Backend
}

// New constructs a Loader bound to backend.
func New(backend store.Backend) *Loader {
	return &Loader{backend: backend}
}

// candidate is an intra-namespace resolution candidate for a callee name.
type candidate struct {
	id, kind, filePath string
}

// Index holds the namespace-wide lookup tables name resolution needs, built
// once per ingestion run (or refreshed per namespace) rather than queried
// per call, since the graph store has no guarantee nodes from earlier in
// the same run are visible to a read issued mid-run (spec §4.4 ordering
// guarantee: nodes fully written before CALLS for that namespace).
type Index struct {
	// byFileAndName maps filePath -> simple name -> unit id, for intra-file
	// resolution (step a).
	byFileAndName map[string]map[string]string
	// byName maps a unit's last dotted name segment -> candidates, for
	// intra-namespace resolution (step b).
	byName map[string][]candidate
}

// NewIndex builds an empty Index.
func NewIndex() *Index {
	return &Index{byFileAndName: make(map[string]map[string]string), byName: make(map[string][]candidate)}
}

// Add registers one file's units into the index. Call once per ParseResult
// before resolving any namespace's CALLS edges.
func (idx *Index) Add(units []parser.CodeUnit) {
	for _, u := range units {
		if u.Kind != parser.KindFunction && u.Kind != parser.KindMethod {
			continue
		}
		if idx.byFileAndName[u.FilePath] == nil {
			idx.byFileAndName[u.FilePath] = make(map[string]string)
		}
		idx.byFileAndName[u.FilePath][lastSegment(u.Name)] = u.ID
		idx.byFileAndName[u.FilePath][u.Name] = u.ID

		idx.byName[lastSegment(u.Name)] = append(idx.byName[lastSegment(u.Name)], candidate{id: u.ID, kind: string(u.Kind), filePath: u.FilePath})
	}
}

// WriteUnits upserts one file's CodeUnits, CONTAINS edges, and IMPORTS rows
// in a single per-file transaction (spec §4.4 failure semantics: a rejected
// batch rolls back only this file's writes and the driver moves on).
// WriteUnits writes no CALLS edges — ResolveCalls writes them in a separate
// pass once every namespace's nodes are durable (the ordering guarantee in
// spec §4.4).
func (l *Loader) WriteUnits(ctx context.Context, namespace string, result *parser.ParseResult) error {
	var b strings.Builder
	for _, u := range result.Units {
		writeUnitUpsert(&b, namespace, u)
	}
	for _, u := range result.Units {
		if u.ParentName == "" {
			continue
		}
		parentID := findParentID(result.Units, u.ParentName)
		if parentID == "" {
			continue
		}
		writeContainsUpsert(&b, namespace, parentID, u.ID)
	}
	for _, imp := range result.Imports {
		writeImportUpsert(&b, namespace, result.FilePath, imp)
	}
	if b.Len() == 0 {
		return nil
	}
	if err := l.backend.Execute(ctx, b.String()); err != nil {
		return fmt.Errorf("graphload: write units for %s: %w", result.FilePath, err)
	}
	return nil
}

// WriteFileRecord upserts one file's cie_file bookkeeping row (SPEC_FULL.md
// Part E.1): path, a representative unit id (the module-level unit, if
// present), language, and a content hash future delta runs compare against
// to skip unchanged files even when git reports them as touched (e.g. mode
// bit changes). moduleID may be empty if result.Units has no module unit.
func (l *Loader) WriteFileRecord(ctx context.Context, namespace, path, moduleID, language, contentHash string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "?[namespace, path, id, language, content_hash] <- [[%s, %s, %s, %s, %s]] :put cie_file {namespace, path => id, language, content_hash}\n",
		q(namespace), q(path), q(moduleID), q(language), q(contentHash))
	if err := l.backend.Execute(ctx, b.String()); err != nil {
		return fmt.Errorf("graphload: write file record for %s: %w", path, err)
	}
	return nil
}

// PurgeFile removes a single file's units, edges, and vector points (used by
// delta ingestion to drop data for a deleted or renamed-away file).
func (l *Loader) PurgeFile(ctx context.Context, namespace, path string) error {
	for _, script := range schema.PurgeFileScripts(namespace, path) {
		if err := l.backend.Execute(ctx, script); err != nil {
			return fmt.Errorf("graphload: purge file %s: %w", path, err)
		}
	}
	return nil
}

// ResolveCalls resolves every unit's unresolved Callees against idx and
// writes the CALLS edges that resolve (spec §4.4 step 4). Unresolvable
// callees (external/stdlib calls) are dropped silently, per spec.
func (l *Loader) ResolveCalls(ctx context.Context, namespace string, units []parser.CodeUnit, idx *Index) error {
	var b strings.Builder
	for _, caller := range units {
		if caller.Kind != parser.KindFunction && caller.Kind != parser.KindMethod {
			continue
		}
		for _, calleeName := range caller.Callees {
			calleeID := resolve(idx, caller, calleeName)
			if calleeID == "" || calleeID == caller.ID {
				continue
			}
			writeCallsUpsert(&b, namespace, caller.ID, calleeID)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	if err := l.backend.Execute(ctx, b.String()); err != nil {
		return fmt.Errorf("graphload: resolve calls for namespace %s: %w", namespace, err)
	}
	return nil
}

// RecomputeEntryPoints re-derives is_entry_point (I5) once every CALLS edge
// for namespace has been written: a unit hinted as an entry point at parse
// time is only really one if nothing in the namespace calls it. Call this
// after ResolveCalls, once per namespace.
func (l *Loader) RecomputeEntryPoints(ctx context.Context, namespace string) error {
	if err := l.backend.Execute(ctx, entryPointRecomputeScript(namespace)); err != nil {
		return fmt.Errorf("graphload: recompute entry points for namespace %s: %w", namespace, err)
	}
	return nil
}

// resolve implements spec §4.4 step 4's (a)/(b)/(c) cascade.
func resolve(idx *Index, caller parser.CodeUnit, calleeName string) string {
	last := lastSegment(calleeName)

	// (a) intra-file resolution by exact name or last dotted segment.
	if byName, ok := idx.byFileAndName[caller.FilePath]; ok {
		if id, ok := byName[calleeName]; ok {
			return id
		}
		if id, ok := byName[last]; ok {
			return id
		}
	}

	// (b) intra-namespace resolution by last dotted name segment, tie-broken.
	candidates := idx.byName[last]
	if len(candidates) == 0 {
		return "" // (c) drop silently: external/stdlib call
	}
	if len(candidates) == 1 {
		return candidates[0].id
	}
	return tieBreak(caller, candidates)
}

// tieBreak applies spec §4.4 step 4(b)'s ordered criteria: same kind as
// caller, then shorter file-path edit distance to the caller's file, then
// lexicographically smallest id.
func tieBreak(caller parser.CodeUnit, candidates []candidate) string {
	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		ci, cj := sorted[i], sorted[j]
		if (ci.kind == string(caller.Kind)) != (cj.kind == string(caller.Kind)) {
			return ci.kind == string(caller.Kind)
		}
		di := levenshtein(ci.filePath, caller.FilePath)
		dj := levenshtein(cj.filePath, caller.FilePath)
		if di != dj {
			return di < dj
		}
		return ci.id < cj.id
	})
	return sorted[0].id
}

func lastSegment(dotted string) string {
	if idx := strings.LastIndex(dotted, "."); idx >= 0 {
		return dotted[idx+1:]
	}
	return dotted
}

func findParentID(units []parser.CodeUnit, parentName string) string {
	for _, u := range units {
		if u.Name == parentName && (u.Kind == parser.KindModule || u.Kind == parser.KindClass || u.Kind == parser.KindInterface) {
			return u.ID
		}
	}
	return ""
}

// levenshtein computes ordinary edit distance, used only for ranking a
// handful of same-name candidates — not performance sensitive.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
