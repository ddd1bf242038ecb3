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
)

// Registry dispatches a file to its language Parser by extension (C2). A
// file whose extension is not registered falls back to the generic driver,
// so every file in a walk produces a ParseResult (possibly empty).
type Registry struct {
	byExt   map[string]Parser
	generic Parser
}

// NewRegistry builds the default registry: Go, JavaScript/TypeScript, and
// Java parsers, backed by the generic AST-less driver for everything else.
func NewRegistry() *Registry {
	r := &Registry{
		byExt:   make(map[string]Parser),
		generic: NewGenericParser(),
	}
	r.Register(NewGoParser())
	r.Register(NewJSTSParser(LangJavaScript, []string{".js", ".jsx", ".mjs", ".cjs"}))
	r.Register(NewJSTSParser(LangTypeScript, []string{".ts", ".tsx"}))
	r.Register(NewJavaParser())
	return r
}

// Register adds or replaces the parser claiming p's extensions.
func (r *Registry) Register(p Parser) {
	for _, ext := range p.Extensions() {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// For returns the parser registered for filePath's extension, or the
// generic fallback driver if none claims it.
func (r *Registry) For(filePath string) Parser {
	ext := strings.ToLower(filepath.Ext(filePath))
	if p, ok := r.byExt[ext]; ok {
		return p
	}
	return r.generic
}

// Parse is a convenience that looks up and invokes the right parser.
func (r *Registry) Parse(namespace, filePath string, content []byte) (*ParseResult, error) {
	return r.For(filePath).Parse(namespace, filePath, content)
}

// Supported reports whether filePath has a dedicated (non-generic) parser.
func (r *Registry) Supported(filePath string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(filePath))]
	return ok
}
