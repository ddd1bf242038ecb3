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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenericParser_EmitsOneModuleUnitPerFile(t *testing.T) {
	p := NewGenericParser()
	result, err := p.Parse("svc:code", "docs/notes.txt", []byte("line one\nline two\nline three"))
	require.NoError(t, err)
	require.Len(t, result.Units, 1)

	u := result.Units[0]
	assert.Equal(t, "notes", u.Name)
	assert.Equal(t, KindModule, u.Kind)
	assert.Equal(t, LangUnknown, u.Language)
	assert.Equal(t, 1, u.LineStart)
	assert.Equal(t, 3, u.LineEnd)
	assert.NotEmpty(t, u.ID)
	assert.Empty(t, result.Errors)
}

func TestGenericParser_RejectsInvalidUTF8(t *testing.T) {
	p := NewGenericParser()
	result, err := p.Parse("svc:code", "bin/blob.dat", []byte{0xff, 0xfe, 0x00, 0x80})
	require.NoError(t, err)
	assert.Empty(t, result.Units)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, SeverityWarning, result.Errors[0].Severity)
}

func TestGenericParser_TruncatesCodeAt16KB(t *testing.T) {
	p := NewGenericParser()
	huge := strings.Repeat("a", 20*1024)
	result, err := p.Parse("svc:code", "big.txt", []byte(huge))
	require.NoError(t, err)
	require.Len(t, result.Units, 1)
	assert.Len(t, result.Units[0].Code, 16*1024)
}

func TestGenericParser_LanguageAndExtensions(t *testing.T) {
	p := NewGenericParser()
	assert.Equal(t, LangUnknown, p.Language())
	assert.Nil(t, p.Extensions())
}

func TestTruncate_NoOpWhenUnderLimit(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 100))
}
