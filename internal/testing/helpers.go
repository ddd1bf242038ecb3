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

package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/kraklabs/cie-oss/internal/engine/schema"
	"github.com/kraklabs/cie-oss/pkg/store"
)

// SetupTestBackend creates an in-memory CIE-OSS backend for testing, schema
// already applied. The backend is closed automatically when t finishes.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    backend := testing.SetupTestBackend(t)
//	    testing.InsertTestUnit(t, backend, "svc:code", "fn1", "DoThing", "function", "x.go", 10, 20)
//	}
func SetupTestBackend(t *testing.T) *store.CozoBackend {
	t.Helper()

	backend, err := store.Open(store.Config{Engine: "mem", DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create test backend: %v", err)
	}

	if err := schema.EnsureSchema(context.Background(), backend); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}

	t.Cleanup(func() {
		_ = backend.Close()
	})

	return backend
}

// q quotes a string as a Datalog literal (Backend.Execute takes no bound
// parameters, so every seeding helper here inlines its values the same way
// internal/engine/graphload's script builder does).
func q(s string) string {
	return fmt.Sprintf("%q", s)
}

// InsertTestUnit writes a minimal cie_unit row for seeding retrieval/graph
// tests, bypassing graphload's CozoScript builder.
func InsertTestUnit(t *testing.T, backend *store.CozoBackend, namespace, id, name, kind, filePath string, lineStart, lineEnd int) {
	t.Helper()

	query := fmt.Sprintf(
		`?[namespace, id, name, kind, language, file_path, line_start, line_end, signature, docstring, is_entry_point, role] <- [[%s, %s, %s, %s, "go", %s, %d, %d, "", "", false, "source"]] :put cie_unit { namespace, id => name, kind, language, file_path, line_start, line_end, signature, docstring, is_entry_point, role }`,
		q(namespace), q(id), q(name), q(kind), q(filePath), lineStart, lineEnd,
	)
	if err := backend.Execute(context.Background(), query); err != nil {
		t.Fatalf("failed to insert test unit: %v", err)
	}
}

// InsertTestContains writes a CONTAINS edge (parent -> child).
func InsertTestContains(t *testing.T, backend *store.CozoBackend, namespace, parentID, childID string) {
	t.Helper()

	query := fmt.Sprintf(`?[namespace, parent_id, child_id] <- [[%s, %s, %s]] :put cie_contains { namespace, parent_id, child_id }`,
		q(namespace), q(parentID), q(childID))
	if err := backend.Execute(context.Background(), query); err != nil {
		t.Fatalf("failed to insert contains edge: %v", err)
	}
}

// InsertTestCalls writes a resolved CALLS edge (caller -> callee).
func InsertTestCalls(t *testing.T, backend *store.CozoBackend, namespace, id, callerID, calleeID string) {
	t.Helper()

	query := fmt.Sprintf(`?[namespace, id, caller_id, callee_id] <- [[%s, %s, %s, %s]] :put cie_calls { namespace, id => caller_id, callee_id }`,
		q(namespace), q(id), q(callerID), q(calleeID))
	if err := backend.Execute(context.Background(), query); err != nil {
		t.Fatalf("failed to insert calls edge: %v", err)
	}
}

// QueryUnits returns every cie_unit row's (id, name) pair for namespace.
func QueryUnits(t *testing.T, backend *store.CozoBackend, namespace string) *store.QueryResult {
	t.Helper()

	query := fmt.Sprintf(`?[id, name] := *cie_unit{namespace, id, name}, namespace = %s`, q(namespace))
	result, err := backend.Query(context.Background(), query)
	if err != nil {
		t.Fatalf("failed to query units: %v", err)
	}
	return result
}
