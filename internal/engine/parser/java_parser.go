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
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/kraklabs/cie-oss/internal/engine/schema"
)

// javaParser is a brace-counting, regex-driven extractor rather than an AST
// walk: no tree-sitter grammar for Java is registered here. It claims file/class/method boundaries well enough for CONTAINS/CALLS
// edges and entry-point heuristics; it does not resolve generics or nested
// anonymous classes.
type javaParser struct{}

// NewJavaParser constructs the Java-language variant of Parser.
func NewJavaParser() Parser { return &javaParser{} }

func (p *javaParser) Language() Language   { return LangJava }
func (p *javaParser) Extensions() []string { return []string{".java"} }

var (
	javaPackageRe = regexp.MustCompile(`^\s*package\s+([\w.]+)\s*;`)
	javaImportRe  = regexp.MustCompile(`^\s*import\s+(static\s+)?([\w.*]+)\s*;`)
	javaTypeRe    = regexp.MustCompile(`^\s*(?:@\w+(?:\([^)]*\))?\s*)*(?:public|private|protected|final|abstract|static)?\s*(?:public|private|protected|final|abstract|static)?\s*(class|interface|enum)\s+(\w+)`)
	javaMethodRe  = regexp.MustCompile(`^\s*(?:@\w+(?:\([^)]*\))?\s*)*(?:public|private|protected|static|final|synchronized|abstract|native)\s+(?:(?:public|private|protected|static|final|synchronized|abstract|native)\s+)*(?:[\w<>\[\],. ?]+\s+)?(\w+)\s*\(([^)]*)\)\s*(?:throws\s+[\w, .]+)?\s*[{;]`)
	javaCallRe    = regexp.MustCompile(`\b([\w.]*?(\w+))\s*\(`)
)

func (p *javaParser) Parse(namespace, filePath string, content []byte) (*ParseResult, error) {
	result := &ParseResult{FilePath: filePath, Language: LangJava, Namespace: namespace}
	moduleName := moduleUnitNameJava(filePath)

	moduleUnit := CodeUnit{Name: moduleName, Kind: KindModule, Language: LangJava, FilePath: filePath, LineStart: 1}

	units := []CodeUnit{moduleUnit}
	var imports []ImportRef

	lines := splitLines(content)
	units[0].LineEnd = len(lines)

	type openType struct {
		name     string
		depth    int
		lineStart int
	}
	var typeStack []openType
	depth := 0

	for i, raw := range lines {
		lineNo := i + 1
		line := string(raw)

		if m := javaImportRe.FindStringSubmatch(line); m != nil {
			imports = append(imports, ImportRef{FromModule: moduleName, Path: m[2], Line: lineNo})
		}

		if m := javaTypeRe.FindStringSubmatch(line); m != nil {
			kind := KindClass
			if m[1] == "interface" {
				kind = KindInterface
			}
			name := m[2]
			parent := moduleName
			if len(typeStack) > 0 {
				parent = typeStack[len(typeStack)-1].name
			}
			u := CodeUnit{
				Namespace: namespace, Name: name, Kind: kind, Language: LangJava,
				FilePath: filePath, LineStart: lineNo, ParentName: parent,
				Signature:    strings.TrimSpace(line),
				IsEntryPoint: hasJavaWebAnnotationHint(lines, i),
			}
			units = append(units, u)
			typeStack = append(typeStack, openType{name: name, depth: depth, lineStart: lineNo})
		} else if m := javaMethodRe.FindStringSubmatch(line); m != nil && !isControlKeyword(m[1]) {
			owner := moduleName
			if len(typeStack) > 0 {
				owner = typeStack[len(typeStack)-1].name
			}
			fullName := m[1]
			if owner != moduleName {
				fullName = owner + "." + m[1]
			}
			body := extractJavaBody(lines, i)
			u := CodeUnit{
				Namespace: namespace, Name: fullName, Kind: KindMethod, Language: LangJava,
				FilePath: filePath, LineStart: lineNo, LineEnd: lineNo + len(body) - 1,
				ParentName:   owner,
				Signature:    strings.TrimSpace(line),
				Code:         strings.Join(joinLines(body), "\n"),
				Callees:      extractJavaCallees(body),
				IsEntryPoint: hasJavaWebAnnotationHint(lines, i),
			}
			units = append(units, u)
		}

		depth += strings.Count(line, "{") - strings.Count(line, "}")
		for len(typeStack) > 0 && depth <= typeStack[len(typeStack)-1].depth {
			top := typeStack[len(typeStack)-1]
			for j := range units {
				if units[j].Name == top.name && units[j].LineStart == top.lineStart {
					units[j].LineEnd = lineNo
				}
			}
			typeStack = typeStack[:len(typeStack)-1]
		}
	}

	role := RoleForFile(filePath)
	for i := range units {
		units[i].ID = schema.UnitID(namespace, string(LangJava), filePath, string(units[i].Kind), units[i].Name, units[i].LineStart)
		units[i].Role = role
	}

	result.Units = units
	result.Imports = imports
	return result, nil
}

// isControlKeyword filters Java control-flow constructs that the method
// regex's loose parameter-list shape can mistake for a declaration (e.g.
// "if (x) {" has the same `word (...) {` silhouette as a method).
func isControlKeyword(name string) bool {
	switch name {
	case "if", "for", "while", "switch", "catch", "synchronized", "return":
		return true
	}
	return false
}

// extractJavaBody returns the lines of a brace-delimited block starting at
// startIdx (the declaration line), by brace-depth counting.
func extractJavaBody(lines [][]byte, startIdx int) [][]byte {
	depth := 0
	started := false
	var out [][]byte
	for i := startIdx; i < len(lines); i++ {
		line := lines[i]
		out = append(out, line)
		opens := bytes.Count(line, []byte("{"))
		closes := bytes.Count(line, []byte("}"))
		if opens > 0 {
			started = true
		}
		depth += opens - closes
		if started && depth <= 0 {
			break
		}
		if !started && bytes.Contains(line, []byte(";")) {
			break // method declared without a body (interface/abstract)
		}
	}
	return out
}

func extractJavaCallees(body [][]byte) []string {
	seen := make(map[string]bool)
	var callees []string
	for _, line := range body {
		for _, m := range javaCallRe.FindAllStringSubmatch(string(line), -1) {
			name := m[2]
			if name == "" || isControlKeyword(name) || seen[name] {
				continue
			}
			seen[name] = true
			callees = append(callees, name)
		}
	}
	return callees
}

func splitLines(content []byte) [][]byte {
	var lines [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		b := make([]byte, len(scanner.Bytes()))
		copy(b, scanner.Bytes())
		lines = append(lines, b)
	}
	return lines
}

func joinLines(lines [][]byte) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l)
	}
	return out
}

func moduleUnitNameJava(filePath string) string {
	base := filePath
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.TrimSuffix(base, ".java")
}
