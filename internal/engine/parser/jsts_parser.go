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

package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/kraklabs/cie-oss/internal/engine/schema"
)

// jstsParser handles both JavaScript and TypeScript: the grammars share
// almost every node shape this extraction cares about, so one walker
// variant is parameterized on Language rather than duplicated.
type jstsParser struct {
	lang       Language
	extensions []string
	sitter     *sitter.Parser
}

// NewJSTSParser constructs a JavaScript- or TypeScript-variant Parser,
// selected by lang.
func NewJSTSParser(lang Language, extensions []string) Parser {
	sp := sitter.NewParser()
	if lang == LangTypeScript {
		sp.SetLanguage(typescript.GetLanguage())
	} else {
		sp.SetLanguage(javascript.GetLanguage())
	}
	return &jstsParser{lang: lang, extensions: extensions, sitter: sp}
}

func (p *jstsParser) Language() Language   { return p.lang }
func (p *jstsParser) Extensions() []string { return p.extensions }

type jstsWalkCtx struct {
	namespace  string
	filePath   string
	content    []byte
	units      []CodeUnit
	nameToUnit map[string]int
	moduleName string
	anonCount  int
}

func (p *jstsParser) Parse(namespace, filePath string, content []byte) (*ParseResult, error) {
	result := &ParseResult{FilePath: filePath, Language: p.lang, Namespace: namespace}

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

	ctx := &jstsWalkCtx{namespace: namespace, filePath: filePath, content: content, nameToUnit: make(map[string]int)}
	ctx.moduleName = moduleUnitName(filePath)

	moduleUnit := CodeUnit{Name: ctx.moduleName, Kind: KindModule, Language: p.lang, FilePath: filePath, LineStart: 1, LineEnd: int(root.EndPoint().Row) + 1}
	ctx.units = append(ctx.units, moduleUnit)

	p.walkFunctions(root, ctx)
	p.walkTypes(root, ctx)
	imports := p.extractImports(root, content, ctx.moduleName)

	role := RoleForFile(filePath)
	for i := range ctx.units {
		u := &ctx.units[i]
		u.ID = schema.UnitID(namespace, string(p.lang), filePath, string(u.Kind), u.Name, u.LineStart)
		u.Role = role
		if u.Kind == KindFunction || u.Kind == KindMethod {
			u.IsEntryPoint = hasHandlerRegistrationHint(content, simpleName(u.Name))
		}
	}

	result.Units = ctx.units
	result.Imports = imports
	return result, nil
}

func (p *jstsParser) walkFunctions(node *sitter.Node, ctx *jstsWalkCtx) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "function_declaration":
		if u := p.extractNamedFunction(node, ctx, KindFunction); u != nil {
			ctx.nameToUnit[u.Name] = len(ctx.units)
			ctx.units = append(ctx.units, *u)
		}
	case "variable_declarator":
		name := node.ChildByFieldName("name")
		value := node.ChildByFieldName("value")
		if name != nil && value != nil {
			switch value.Type() {
			case "arrow_function", "function_expression", "function":
				u := p.makeUnit(node, ctx, text(ctx.content, name), KindFunction, signatureFor(value, ctx.content))
				u.Callees = p.collectCallees(value, ctx.content)
				u.ParentName = ctx.moduleName
				ctx.nameToUnit[u.Name] = len(ctx.units)
				ctx.units = append(ctx.units, u)
			}
		}
	case "method_definition":
		if u := p.extractMethod(node, ctx); u != nil {
			ctx.nameToUnit[u.Name] = len(ctx.units)
			ctx.units = append(ctx.units, *u)
		}
	case "method_signature", "function_signature":
		if u := p.extractNamedFunction(node, ctx, KindMethod); u != nil {
			ctx.units = append(ctx.units, *u)
		}
	case "arrow_function":
		parent := node.Parent()
		if parent == nil || parent.Type() != "variable_declarator" {
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
			u := p.makeUnit(node, ctx, name, KindFunction, signatureFor(node, ctx.content))
			u.Callees = p.collectCallees(node, ctx.content)
			u.ParentName = enclosing
			ctx.units = append(ctx.units, u)
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		p.walkFunctions(node.Child(i), ctx)
	}
}

func (p *jstsParser) extractNamedFunction(node *sitter.Node, ctx *jstsWalkCtx, kind Kind) *CodeUnit {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := text(ctx.content, nameNode)
	u := p.makeUnit(node, ctx, name, kind, signatureFor(node, ctx.content))
	u.Callees = p.collectCallees(node, ctx.content)
	u.ParentName = ctx.moduleName
	return &u
}

func (p *jstsParser) extractMethod(node *sitter.Node, ctx *jstsWalkCtx) *CodeUnit {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	methodName := text(ctx.content, nameNode)
	owner := enclosingClassName(node, ctx.content)
	fullName := methodName
	if owner != "" {
		fullName = owner + "." + methodName
	}
	u := p.makeUnit(node, ctx, fullName, KindMethod, signatureFor(node, ctx.content))
	u.Callees = p.collectCallees(node, ctx.content)
	u.ParentName = owner
	if u.ParentName == "" {
		u.ParentName = ctx.moduleName
	}
	return &u
}

func enclosingClassName(node *sitter.Node, content []byte) string {
	for n := node.Parent(); n != nil; n = n.Parent() {
		if n.Type() == "class_declaration" || n.Type() == "class" {
			if name := n.ChildByFieldName("name"); name != nil {
				return text(content, name)
			}
		}
	}
	return ""
}

func signatureFor(node *sitter.Node, content []byte) string {
	var b strings.Builder
	if params := node.ChildByFieldName("parameters"); params != nil {
		b.WriteString(text(content, params))
	}
	if rtype := node.ChildByFieldName("return_type"); rtype != nil {
		b.WriteString(" ")
		b.WriteString(text(content, rtype))
	}
	return b.String()
}

func (p *jstsParser) makeUnit(node *sitter.Node, ctx *jstsWalkCtx, name string, kind Kind, sig string) CodeUnit {
	return CodeUnit{
		Namespace: ctx.namespace,
		Name:      name,
		Kind:      kind,
		Language:  p.lang,
		FilePath:  ctx.filePath,
		LineStart: int(node.StartPoint().Row) + 1,
		LineEnd:   int(node.EndPoint().Row) + 1,
		ColStart:  int(node.StartPoint().Column) + 1,
		ColEnd:    int(node.EndPoint().Column) + 1,
		Signature: sig,
		Code:      truncate(text(ctx.content, node), 16*1024),
	}
}

func (p *jstsParser) collectCallees(node *sitter.Node, content []byte) []string {
	body := node.ChildByFieldName("body")
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
				if name := jsCalleeName(fn, content); name != "" && !seen[name] {
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

func jsCalleeName(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case "identifier":
		return text(content, node)
	case "member_expression":
		if prop := node.ChildByFieldName("property"); prop != nil {
			return text(content, prop)
		}
	}
	return ""
}

func (p *jstsParser) walkTypes(node *sitter.Node, ctx *jstsWalkCtx) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "interface_declaration":
		if u := p.extractTypeNode(node, ctx, KindInterface); u != nil {
			ctx.units = append(ctx.units, *u)
		}
	case "class_declaration":
		if u := p.extractTypeNode(node, ctx, KindClass); u != nil {
			ctx.units = append(ctx.units, *u)
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		p.walkTypes(node.Child(i), ctx)
	}
}

func (p *jstsParser) extractTypeNode(node *sitter.Node, ctx *jstsWalkCtx, kind Kind) *CodeUnit {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := text(ctx.content, nameNode)
	u := p.makeUnit(node, ctx, name, kind, string(kind)+" "+name)
	u.ParentName = ctx.moduleName
	return &u
}

func (p *jstsParser) extractImports(root *sitter.Node, content []byte, moduleName string) []ImportRef {
	var imports []ImportRef
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "import_statement" {
			var pathStr, alias string
			for i := 0; i < int(n.ChildCount()); i++ {
				c := n.Child(i)
				if c.Type() == "string" {
					pathStr = strings.Trim(text(content, c), `"'`)
				}
				if c.Type() == "import_clause" {
					alias = text(content, c)
				}
			}
			if pathStr != "" {
				imports = append(imports, ImportRef{FromModule: moduleName, Path: pathStr, Alias: alias, Line: int(n.StartPoint().Row) + 1})
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return imports
}
