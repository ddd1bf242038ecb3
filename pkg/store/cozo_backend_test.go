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

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemBackend(t *testing.T) *CozoBackend {
	t.Helper()
	backend, err := Open(Config{Engine: "mem", DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestOpen_DefaultsEngineAndDataDir(t *testing.T) {
	backend, err := Open(Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer backend.Close()
	assert.NotNil(t, backend)
}

func TestOpen_CreatesMissingDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	backend, err := Open(Config{Engine: "mem", DataDir: dir})
	require.NoError(t, err)
	defer backend.Close()
}

func TestExecuteAndQuery_RoundTripsData(t *testing.T) {
	backend := openMemBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Execute(ctx, `:create greeting { id: String => text: String }`))
	require.NoError(t, backend.Execute(ctx, `?[id, text] <- [["a", "hello"]] :put greeting { id => text }`))

	result, err := backend.Query(ctx, `?[id, text] := *greeting{id, text}`)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "a", result.Rows[0][0])
	assert.Equal(t, "hello", result.Rows[0][1])
}

func TestQuery_OnClosedBackendErrors(t *testing.T) {
	backend := openMemBackend(t)
	require.NoError(t, backend.Close())

	_, err := backend.Query(context.Background(), `?[x] := x = 1`)
	assert.Error(t, err)
}

func TestExecute_OnClosedBackendErrors(t *testing.T) {
	backend := openMemBackend(t)
	require.NoError(t, backend.Close())

	err := backend.Execute(context.Background(), `:create foo { id: String }`)
	assert.Error(t, err)
}

func TestClose_IsIdempotent(t *testing.T) {
	backend := openMemBackend(t)
	require.NoError(t, backend.Close())
	assert.NoError(t, backend.Close())
}

func TestQuery_RespectsCanceledContext(t *testing.T) {
	backend := openMemBackend(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := backend.Query(ctx, `?[x] := x = 1`)
	assert.Error(t, err)
}

func TestFromNamedRows_RoundTripsToNamedRows(t *testing.T) {
	result := &QueryResult{Headers: []string{"id", "name"}, Rows: [][]any{{"1", "a"}}}
	nr := result.ToNamedRows()
	back := FromNamedRows(nr)
	assert.Equal(t, result.Headers, back.Headers)
	assert.Equal(t, result.Rows, back.Rows)
}
