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

// Package parser implements the language parsers (C1) and parser registry
// (C2): a tagged-variant AST walk per language producing the uniform
// ParseResult, dispatched by file extension.
package parser

// Kind enumerates the CodeUnit kinds extracted by every parser (spec §3).
type Kind string

const (
	KindModule    Kind = "module"
	KindClass     Kind = "class"
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindInterface Kind = "interface"
)

// Language enumerates the supported source languages.
type Language string

const (
	LangGo         Language = "go"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangJava       Language = "java"
	LangUnknown    Language = "unknown"
)

// Role is a supplementary classification (SPEC_FULL.md Part E.4) layered on
// top of a CodeUnit, used by the retrieval engine to optionally exclude
// test/generated code from results. It does not affect id derivation.
type Role string

const (
	RoleSource    Role = "source"
	RoleTest      Role = "test"
	RoleGenerated Role = "generated"
)

// CodeUnit is a parsed source element with stable, content-addressed
// identity (spec §3, I1).
type CodeUnit struct {
	ID           string
	Namespace    string
	Name         string
	Kind         Kind
	Language     Language
	FilePath     string
	LineStart    int
	LineEnd      int
	ColStart     int
	ColEnd       int
	Signature    string
	Parameters   []string
	Docstring    string
	Code         string
	Callees      []string // unresolved callee names, dotted-path flattened
	IsEntryPoint bool
	ParentName   string // enclosing module/class name, used for CONTAINS (§4.4 step 3)
	Role         Role
}

// ImportRef is a module -> moduleRef reference (spec §3's IMPORTS edge).
type ImportRef struct {
	FromModule string // name of the importing module/file-level unit
	Path       string // raw import path/specifier as written
	Alias      string
	Line       int
}

// ErrorSeverity classifies a ParseError; always non-fatal (spec §4.1, §7).
type ErrorSeverity string

const (
	SeverityWarning ErrorSeverity = "warning"
	SeverityError   ErrorSeverity = "error"
)

// ParseError is a recoverable, per-file diagnostic (spec §7 ParseError kind).
type ParseError struct {
	FilePath string
	Line     int
	Message  string
	Severity ErrorSeverity
}

// ParseResult is the uniform output of every language parser (spec §4.1).
// parse MUST NOT raise for malformed input: errors are returned here, units
// stays empty or partial.
type ParseResult struct {
	FilePath  string
	Language  Language
	Namespace string
	Units     []CodeUnit
	Imports   []ImportRef
	Errors    []ParseError
}

// Parser is the capability set every language variant implements (spec §9:
// "A common Parser capability set ... is polymorphic over the language
// variants", replacing dynamic duck-typed dispatch with an explicit
// interface keyed by the registry on extension/tag).
type Parser interface {
	// Parse produces a ParseResult for one file's contents. It never panics
	// or returns a non-nil error for malformed source; syntax problems are
	// reported via ParseResult.Errors.
	Parse(namespace, filePath string, content []byte) (*ParseResult, error)

	// Language returns the language tag this parser handles.
	Language() Language

	// Extensions returns the file extensions (including the leading dot)
	// this parser claims, e.g. []string{".go"}.
	Extensions() []string
}
