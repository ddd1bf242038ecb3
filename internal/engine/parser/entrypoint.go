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

package parser

import (
	"bytes"
	"regexp"
)

// testFilePattern and generatedFilePattern classify a unit's Role
// (SPEC_FULL.md Part E.4) from its file path alone, independent of
// language-specific parsing.
var (
	testFilePattern      = regexp.MustCompile(`(?i)(_test\.go|test\.ts|test\.tsx|test\.js|\.test\.|_test\.py|tests/|__tests__/)`)
	generatedFilePattern = regexp.MustCompile(`(?i)(\.pb\.go|_generated\.go|\.gen\.go|_gen\.go|\.generated\.|/generated/)`)
)

// RoleForFile classifies filePath into source/test/generated. Test takes
// precedence over generated when a path somehow matches both (e.g. a
// generated test fixture), since retrieval's role filter treats "test" as
// the more specific exclusion.
func RoleForFile(filePath string) Role {
	switch {
	case testFilePattern.MatchString(filePath):
		return RoleTest
	case generatedFilePattern.MatchString(filePath):
		return RoleGenerated
	default:
		return RoleSource
	}
}

// handlerRegistrationPattern matches the HTTP handler registration symbols
// named in spec §4.1's entry-point heuristic table: a dotted callee path
// containing .Handle, .HandleFunc, Route, Router, or router.{verb}.
var handlerRegistrationPattern = regexp.MustCompile(`(?i)\.(handle|handlefunc)\b|\brouter\b|\broute\b`)

// javaWebAnnotationPattern matches the minimum Java web-framework
// annotations spec §4.1 names.
var javaWebAnnotationPattern = regexp.MustCompile(`@(RestController|RequestMapping|GetMapping|PostMapping|PutMapping|DeleteMapping)\b`)

// hasHandlerRegistrationHint reports whether name appears as a bare
// identifier on a source line that also looks like an HTTP handler
// registration call, e.g. `mux.Handle("/path", ListOrders)` or
// `router.GET("/x", ListOrders)`. This is a parse-time hint only; I5 makes
// is_entry_point authoritative after CALLS are resolved (driver.go
// re-derives it once a hinted unit has no incoming CALLS edge).
func hasHandlerRegistrationHint(source []byte, name string) bool {
	if name == "" {
		return false
	}
	ident, err := regexp.Compile(`\b` + regexp.QuoteMeta(name) + `\b`)
	if err != nil {
		return false
	}
	for _, line := range bytes.Split(source, []byte("\n")) {
		if handlerRegistrationPattern.Match(line) && ident.Match(line) {
			return true
		}
	}
	return false
}

// hasJavaWebAnnotationHint reports whether the method/class declared at
// lines[lineIdx] (0-based) is preceded (or accompanied, on the same line)
// by one of the recognized Java web-framework annotations. Annotations sit
// directly above their declaration, so scanning stops at the first
// non-annotation, non-blank line above it.
func hasJavaWebAnnotationHint(lines [][]byte, lineIdx int) bool {
	for i := lineIdx; i >= 0 && i > lineIdx-6; i-- {
		if javaWebAnnotationPattern.Match(lines[i]) {
			return true
		}
		if i != lineIdx {
			trimmed := bytes.TrimSpace(lines[i])
			if len(trimmed) > 0 && trimmed[0] != '@' {
				break
			}
		}
	}
	return false
}
