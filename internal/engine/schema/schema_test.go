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

package schema

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	statements []string
	failOn     func(stmt string) error
}

func (f *fakeExecutor) Execute(_ context.Context, script string) error {
	f.statements = append(f.statements, script)
	if f.failOn != nil {
		return f.failOn(script)
	}
	return nil
}

func TestEnsureSchema_RunsEveryRelationAndIndex(t *testing.T) {
	ex := &fakeExecutor{}
	require.NoError(t, EnsureSchema(context.Background(), ex))
	assert.Len(t, ex.statements, len(relations)+len(indexes))

	joined := strings.Join(ex.statements, "\n")
	for _, rel := range []string{"cie_unit", "cie_unit_code", "cie_unit_embedding", "cie_contains", "cie_calls", "cie_import", "cie_file", "cie_project_meta"} {
		assert.Contains(t, joined, rel)
	}
}

func TestEnsureSchema_ToleratesAlreadyExists(t *testing.T) {
	ex := &fakeExecutor{failOn: func(stmt string) error {
		return errors.New("relation cie_unit already exists")
	}}
	assert.NoError(t, EnsureSchema(context.Background(), ex))
}

func TestEnsureSchema_PropagatesOtherErrors(t *testing.T) {
	ex := &fakeExecutor{failOn: func(stmt string) error {
		return errors.New("disk full")
	}}
	assert.Error(t, EnsureSchema(context.Background(), ex))
}

func TestEnsureVectorIndex_DefaultsDimWhenNonPositive(t *testing.T) {
	ex := &fakeExecutor{}
	require.NoError(t, EnsureVectorIndex(context.Background(), ex, 0))
	require.Len(t, ex.statements, 1)
	assert.Contains(t, ex.statements[0], "dim: 1536")
}

func TestPurgeScripts_ScopesEveryStatementToNamespace(t *testing.T) {
	scripts := PurgeScripts("svc:code")
	require.Len(t, scripts, 8)
	for _, s := range scripts {
		assert.Contains(t, s, `namespace = "svc:code"`)
		assert.Contains(t, s, ":rm ")
	}
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, isAlreadyExists(errors.New("Relation 'cie_unit' already exists")))
	assert.False(t, isAlreadyExists(errors.New("disk full")))
}
