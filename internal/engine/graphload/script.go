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

package graphload

import (
	"fmt"
	"strings"

	"github.com/kraklabs/cie-oss/internal/engine/parser"
)

// The :put upsert form is used throughout (not :create), since a file may
// be reprocessed across ingestion runs and rows must be overwritten in
// place rather than rejected as duplicates (grounded on CozoDB's
// documented mutation operators in pkg/cozodb).

func writeUnitUpsert(b *strings.Builder, namespace string, u parser.CodeUnit) {
	role := string(u.Role)
	if role == "" {
		role = string(parser.RoleSource)
	}
	fmt.Fprintf(b, "?[namespace, id, name, kind, language, file_path, line_start, line_end, signature, docstring, is_entry_point, role] <- [[%s, %s, %s, %s, %s, %s, %d, %d, %s, %s, %s, %s]] :put cie_unit {namespace, id => name, kind, language, file_path, line_start, line_end, signature, docstring, is_entry_point, role}\n",
		q(namespace), q(u.ID), q(u.Name), q(string(u.Kind)), q(string(u.Language)), q(u.FilePath), u.LineStart, u.LineEnd, q(u.Signature), q(u.Docstring), b32(u.IsEntryPoint), q(role))

	if u.Code != "" {
		fmt.Fprintf(b, "?[namespace, id, code] <- [[%s, %s, %s]] :put cie_unit_code {namespace, id => code}\n", q(namespace), q(u.ID), q(u.Code))
	}
}

func writeContainsUpsert(b *strings.Builder, namespace, parentID, childID string) {
	fmt.Fprintf(b, "?[namespace, parent_id, child_id] <- [[%s, %s, %s]] :put cie_contains {namespace, parent_id, child_id}\n", q(namespace), q(parentID), q(childID))
}

func writeImportUpsert(b *strings.Builder, namespace, filePath string, imp parser.ImportRef) {
	id := namespace + "|" + filePath + "|" + imp.Path
	fmt.Fprintf(b, "?[namespace, id, module_id, import_path, alias, line, file_path] <- [[%s, %s, %s, %s, %s, %d, %s]] :put cie_import {namespace, id => module_id, import_path, alias, line, file_path}\n",
		q(namespace), q(id), q(imp.FromModule), q(imp.Path), q(imp.Alias), imp.Line, q(filePath))
}

func writeCallsUpsert(b *strings.Builder, namespace, callerID, calleeID string) {
	id := callerID + "->" + calleeID
	fmt.Fprintf(b, "?[namespace, id, caller_id, callee_id] <- [[%s, %s, %s, %s]] :put cie_calls {namespace, id => caller_id, callee_id}\n", q(namespace), q(id), q(callerID), q(calleeID))
}

// entryPointRecomputeScript builds the post-ResolveCalls correction for
// is_entry_point (I5): a unit hinted as an entry point at parse time but
// that turns out to have an incoming CALLS edge is not actually an entry
// point, since something else in the namespace calls it directly. The
// `is_entry_point: true` match is a constant filter, not a variable
// binding, so the later `is_entry_point = false` assignment is a fresh
// binding, not a re-unification.
func entryPointRecomputeScript(namespace string) string {
	return fmt.Sprintf(`?[namespace, id, name, kind, language, file_path, line_start, line_end, signature, docstring, is_entry_point, role] :=
    *cie_unit{namespace, id, name, kind, language, file_path, line_start, line_end, signature, docstring, is_entry_point: true, role},
    namespace = %s,
    *cie_calls{namespace, callee_id: id},
    is_entry_point = false
:put cie_unit {namespace, id => name, kind, language, file_path, line_start, line_end, signature, docstring, is_entry_point, role}
`, q(namespace))
}

// q quotes a string as a Datalog literal. CozoDB string literals use
// double quotes with backslash escaping, matching JSON string syntax.
func q(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func b32(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
