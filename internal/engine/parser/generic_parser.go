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
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kraklabs/cie-oss/internal/engine/schema"
)

// genericParser is the driver of last resort (spec C1's "generic AST
// driver"): it has no language grammar, so it emits a single module-level
// CodeUnit for the whole file and nothing else. This keeps every walked
// file representable in the graph (so CONTAINS/graph traversal never has
// to special-case "file has no units") without inventing syntax knowledge
// this implementation doesn't have.
type genericParser struct{}

// NewGenericParser constructs the extension-less fallback Parser.
func NewGenericParser() Parser { return &genericParser{} }

func (p *genericParser) Language() Language   { return LangUnknown }
func (p *genericParser) Extensions() []string { return nil }

func (p *genericParser) Parse(namespace, filePath string, content []byte) (*ParseResult, error) {
	if !utf8.Valid(content) {
		return &ParseResult{
			FilePath: filePath, Language: LangUnknown, Namespace: namespace,
			Errors: []ParseError{{FilePath: filePath, Message: "not valid UTF-8, skipped", Severity: SeverityWarning}},
		}, nil
	}

	name := moduleUnitName(filePath)
	if trimmed := strings.TrimSuffix(name, filepath.Ext(name)); trimmed != "" {
		name = trimmed
	}
	lineCount := strings.Count(string(content), "\n") + 1

	unit := CodeUnit{
		Namespace: namespace,
		Name:      name,
		Kind:      KindModule,
		Language:  LangUnknown,
		FilePath:  filePath,
		LineStart: 1,
		LineEnd:   lineCount,
		Code:      truncate(string(content), 16*1024),
		Role:      RoleForFile(filePath),
	}
	unit.ID = schema.UnitID(namespace, string(LangUnknown), filePath, string(KindModule), name, 1)

	return &ParseResult{
		FilePath: filePath, Language: LangUnknown, Namespace: namespace,
		Units: []CodeUnit{unit},
	}, nil
}
