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
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/kraklabs/cie-oss/internal/engine/schema"
)

// goParser walks a Go AST via tree-sitter, the primary backend for this
// language (spec §9: tagged-variant AST walk, not a duck-typed visitor —
// dispatch is a switch on node.Type(), never an interface per node kind).
type goParser struct {
	sitter *sitter.Parser
}

// NewGoParser constructs the Go-language variant of Parser.
func NewGoParser() Parser {
	sp := sitter.NewParser()
	sp.SetLanguage(golang.GetLanguage())
	return &goParser{sitter: sp}
}

func (p *goParser) Language() Language     { return LangGo }
func (p *goParser) Extensions() []string   { return []string{".go"} }

type goWalkCtx struct {
	namespace  string
	filePath   string
	content    []byte
	units      []CodeUnit
	nameToUnit map[string]int // simple name -> index into units, for call resolution
	imports    []ImportRef
	moduleName string
	anonCount  int
}

func (p *goParser) Parse(namespace, filePath string, content []byte) (*ParseResult, error) {
	result := &ParseResult{FilePath: filePath, Language: LangGo, Namespace: namespace}

	tree, err := p.sitter.ParseCtx(context.Background(), nil, content)
	if err != nil {
		result.Errors = append(result.Errors, ParseError{
			FilePath: filePath, Message: fmt.Sprintf("tree-sitter parse: %v", err), Severity: SeverityError,
		})
		return result, nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		result.Errors = append(result.Errors, ParseError{
			FilePath: filePath, Message: "syntax errors present; partial extraction only", Severity: SeverityWarning,
		})
	}

	ctx := &goWalkCtx{
		namespace:  namespace,
		filePath:   filePath,
		content:    content,
		nameToUnit: make(map[string]int),
	}
	ctx.moduleName = moduleUnitName(filePath)

	// Module/file-level unit, the CONTAINS root for this file (spec §4.4 step 3).
	moduleUnit := CodeUnit{
		Name: ctx.moduleName, Kind: KindModule, Language: LangGo, FilePath: filePath,
		LineStart: 1, LineEnd: int(root.EndPoint().Row) + 1,
	}
	moduleUnit.ID = schema.UnitID(namespace, string(LangGo), filePath, string(KindModule), moduleUnit.Name, 1)
	ctx.units = append(ctx.units, moduleUnit)

	p.walk(root, ctx)

	ctx.imports = p.extractImports(root, content, ctx.moduleName)

	role := RoleForFile(filePath)
	for i := range ctx.units {
		u := &ctx.units[i]
		u.ID = schema.UnitID(namespace, string(LangGo), filePath, string(u.Kind), u.Name, u.LineStart)
		u.Role = role
		if u.Kind == KindFunction && u.Name == "main" && u.ParentName == ctx.moduleName {
			u.IsEntryPoint = true
		} else if u.Kind == KindFunction || u.Kind == KindMethod {
			u.IsEntryPoint = hasHandlerRegistrationHint(content, simpleName(u.Name))
		}
	}

	result.Units = ctx.units
	result.Imports = ctx.imports
	return result, nil
}

func (p *goParser) walk(node *sitter.Node, ctx *goWalkCtx) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "function_declaration":
		if u := p.extractFunction(node, ctx); u != nil {
			ctx.nameToUnit[u.Name] = len(ctx.units)
			ctx.units = append(ctx.units, *u)
		}
	case "method_declaration":
		if u := p.extractMethod(node, ctx); u != nil {
			ctx.nameToUnit[simpleName(u.Name)] = len(ctx.units)
			ctx.units = append(ctx.units, *u)
		}
	case "func_literal":
		if u := p.extractFuncLiteral(node, ctx); u != nil {
			ctx.units = append(ctx.units, *u)
		}
	case "type_declaration":
		p.extractTypeDeclaration(node, ctx)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		p.walk(node.Child(i), ctx)
	}
}

func (p *goParser) extractFunction(node *sitter.Node, ctx *goWalkCtx) *CodeUnit {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := text(ctx.content, nameNode)
	sig := p.buildSignature(node, ctx.content, "func "+name)
	u := p.makeUnit(node, ctx, name, KindFunction, sig)
	u.Callees = p.collectCallees(node, ctx.content)
	u.ParentName = ctx.moduleName
	return &u
}

func (p *goParser) extractMethod(node *sitter.Node, ctx *goWalkCtx) *CodeUnit {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	methodName := text(ctx.content, nameNode)
	receiverType := ""
	if recv := node.ChildByFieldName("receiver"); recv != nil {
		receiverType = receiverTypeName(recv, ctx.content)
	}
	fullName := methodName
	if receiverType != "" {
		fullName = receiverType + "." + methodName
	}
	sig := p.buildSignature(node, ctx.content, "func ("+receiverType+") "+methodName)
	u := p.makeUnit(node, ctx, fullName, KindMethod, sig)
	u.Callees = p.collectCallees(node, ctx.content)
	u.ParentName = receiverType
	if u.ParentName == "" {
		u.ParentName = ctx.moduleName
	}
	return &u
}

func (p *goParser) extractFuncLiteral(node *sitter.Node, ctx *goWalkCtx) *CodeUnit {
	ctx.anonCount++
	enclosing := ctx.moduleName
	for i := len(ctx.units) - 1; i >= 0; i-- {
		if ctx.units[i].Kind == KindFunction || ctx.units[i].Kind == KindMethod {
			enclosing = ctx.units[i].Name
			break
		}
	}
	line := int(node.StartPoint().Row) + 1
	name := fmt.Sprintf("%s.$anon_L%d", enclosing, line)
	sig := p.buildSignature(node, ctx.content, "func")
	u := p.makeUnit(node, ctx, name, KindFunction, sig)
	u.Callees = p.collectCallees(node, ctx.content)
	u.ParentName = enclosing
	return &u
}

func (p *goParser) buildSignature(node *sitter.Node, content []byte, prefix string) string {
	var b strings.Builder
	b.WriteString(prefix)
	if tp := node.ChildByFieldName("type_parameters"); tp != nil {
		b.WriteString(text(content, tp))
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		b.WriteString(text(content, params))
	}
	if result := node.ChildByFieldName("result"); result != nil {
		b.WriteString(" ")
		b.WriteString(text(content, result))
	}
	return b.String()
}

func (p *goParser) makeUnit(node *sitter.Node, ctx *goWalkCtx, name string, kind Kind, sig string) CodeUnit {
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	return CodeUnit{
		Namespace: ctx.namespace,
		Name:      name,
		Kind:      kind,
		Language:  LangGo,
		FilePath:  ctx.filePath,
		LineStart: startLine,
		LineEnd:   endLine,
		ColStart:  int(node.StartPoint().Column) + 1,
		ColEnd:    int(node.EndPoint().Column) + 1,
		Signature: sig,
		Code:      truncate(text(ctx.content, node), 16*1024),
	}
}

func (p *goParser) collectCallees(node *sitter.Node, content []byte) []string {
	body := node.ChildByFieldName("body")
	if body == nil {
		for i := 0; i < int(node.ChildCount()); i++ {
			if node.Child(i).Type() == "block" {
				body = node.Child(i)
				break
			}
		}
	}
	if body == nil {
		return nil
	}
	seen := make(map[string]bool)
	var callees []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "call_expression" {
			if fn := n.ChildByFieldName("function"); fn != nil {
				if name := calleeName(fn, content); name != "" && !seen[name] {
					seen[name] = true
					callees = append(callees, name)
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(body)
	return callees
}

func calleeName(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case "identifier":
		return text(content, node)
	case "selector_expression":
		if field := node.ChildByFieldName("field"); field != nil {
			return text(content, field)
		}
	case "index_expression":
		if operand := node.ChildByFieldName("operand"); operand != nil {
			return calleeName(operand, content)
		}
	}
	return ""
}

func (p *goParser) extractTypeDeclaration(node *sitter.Node, ctx *goWalkCtx) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "type_spec":
			p.extractTypeSpec(child, ctx)
		case "type_spec_list":
			for j := 0; j < int(child.ChildCount()); j++ {
				if s := child.Child(j); s.Type() == "type_spec" {
					p.extractTypeSpec(s, ctx)
				}
			}
		}
	}
}

func (p *goParser) extractTypeSpec(node *sitter.Node, ctx *goWalkCtx) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := text(ctx.content, nameNode)
	kind := KindClass
	if typeNode := node.ChildByFieldName("type"); typeNode != nil && typeNode.Type() == "interface_type" {
		kind = KindInterface
	}
	u := p.makeUnit(node, ctx, name, kind, "type "+name)
	u.ParentName = ctx.moduleName
	ctx.units = append(ctx.units, u)
}

func (p *goParser) extractImports(root *sitter.Node, content []byte, moduleName string) []ImportRef {
	var imports []ImportRef
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child.Type() != "import_declaration" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			grand := child.Child(j)
			switch grand.Type() {
			case "import_spec":
				if ref := importSpec(grand, content, moduleName); ref != nil {
					imports = append(imports, *ref)
				}
			case "import_spec_list":
				for k := 0; k < int(grand.ChildCount()); k++ {
					if s := grand.Child(k); s.Type() == "import_spec" {
						if ref := importSpec(s, content, moduleName); ref != nil {
							imports = append(imports, *ref)
						}
					}
				}
			}
		}
	}
	return imports
}

func importSpec(node *sitter.Node, content []byte, moduleName string) *ImportRef {
	pathNode := node.ChildByFieldName("path")
	if pathNode == nil {
		return nil
	}
	path := strings.Trim(text(content, pathNode), `"`)
	alias := ""
	if n := node.ChildByFieldName("name"); n != nil {
		alias = text(content, n)
	}
	return &ImportRef{
		FromModule: moduleName,
		Path:       path,
		Alias:      alias,
		Line:       int(node.StartPoint().Row) + 1,
	}
}

func receiverTypeName(receiver *sitter.Node, content []byte) string {
	for i := 0; i < int(receiver.ChildCount()); i++ {
		child := receiver.Child(i)
		if child.Type() == "parameter_declaration" {
			if t := child.ChildByFieldName("type"); t != nil {
				return baseTypeName(t, content)
			}
		}
	}
	return ""
}

func baseTypeName(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case "pointer_type":
		for i := 0; i < int(node.ChildCount()); i++ {
			if c := node.Child(i); c.Type() != "*" {
				return baseTypeName(c, content)
			}
		}
	case "generic_type":
		if t := node.ChildByFieldName("type"); t != nil {
			return text(content, t)
		}
	case "type_identifier":
		return text(content, node)
	}
	name := text(content, node)
	name = strings.TrimPrefix(name, "*")
	if idx := strings.Index(name, "["); idx > 0 {
		name = name[:idx]
	}
	return name
}

func simpleName(full string) string {
	if idx := strings.LastIndex(full, "."); idx >= 0 {
		return full[idx+1:]
	}
	return full
}

func text(content []byte, node *sitter.Node) string {
	return string(content[node.StartByte():node.EndByte()])
}

func moduleUnitName(filePath string) string {
	base := filePath
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.TrimSuffix(base, ".go")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
