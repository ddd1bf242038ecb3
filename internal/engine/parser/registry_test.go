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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DispatchesByExtension(t *testing.T) {
	r := NewRegistry()

	cases := map[string]Language{
		"main.go":       LangGo,
		"index.js":      LangJavaScript,
		"component.jsx": LangJavaScript,
		"app.ts":        LangTypeScript,
		"app.tsx":       LangTypeScript,
		"Main.java":     LangJava,
	}
	for path, want := range cases {
		assert.Equal(t, want, r.For(path).Language(), "path %s", path)
		assert.True(t, r.Supported(path), "path %s", path)
	}
}

func TestRegistry_FallsBackToGenericForUnclaimedExtensions(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, LangUnknown, r.For("README.md").Language())
	assert.False(t, r.Supported("README.md"))
	assert.False(t, r.Supported("Makefile"))
}

func TestRegistry_ExtensionMatchIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, LangGo, r.For("main.GO").Language())
}

func TestRegistry_Parse_UsesDispatchedParser(t *testing.T) {
	r := NewRegistry()

	result, err := r.Parse("svc:code", "notes.txt", []byte("hello"))
	require.NoError(t, err)
	require.Len(t, result.Units, 1)
	assert.Equal(t, KindModule, result.Units[0].Kind)
	assert.Equal(t, LangUnknown, result.Units[0].Language)
}

type stubParser struct{ exts []string }

func (s *stubParser) Language() Language   { return LangUnknown }
func (s *stubParser) Extensions() []string { return s.exts }
func (s *stubParser) Parse(namespace, filePath string, content []byte) (*ParseResult, error) {
	return &ParseResult{FilePath: filePath, Language: LangUnknown, Namespace: namespace}, nil
}

func TestRegistry_Register_OverridesExistingExtension(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubParser{exts: []string{".go"}})
	assert.Equal(t, LangUnknown, r.For("main.go").Language())
}
