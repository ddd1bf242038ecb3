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

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cie-oss/pkg/store"
)

type metaBackend struct {
	queryFunc func(script string) (*store.QueryResult, error)
	scripts   []string
}

func (b *metaBackend) Query(_ context.Context, script string) (*store.QueryResult, error) {
	if b.queryFunc != nil {
		return b.queryFunc(script)
	}
	return &store.QueryResult{}, nil
}

func (b *metaBackend) Execute(_ context.Context, script string) error {
	b.scripts = append(b.scripts, script)
	return nil
}

func (b *metaBackend) Close() error { return nil }

func TestGetProjectMeta_ReturnsNilWhenNoRows(t *testing.T) {
	backend := &metaBackend{}
	meta, err := GetProjectMeta(context.Background(), backend, "svc:code")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestGetProjectMeta_ParsesRowFields(t *testing.T) {
	backend := &metaBackend{queryFunc: func(string) (*store.QueryResult, error) {
		return &store.QueryResult{
			Headers: []string{"last_indexed_sha", "last_committed_index", "updated_at"},
			Rows:    [][]any{{"deadbeef", int64(3), int64(1700000000)}},
		}, nil
	}}

	meta, err := GetProjectMeta(context.Background(), backend, "svc:code")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "svc:code", meta.Namespace)
	assert.Equal(t, "deadbeef", meta.LastIndexedSHA)
	assert.Equal(t, uint64(3), meta.LastCommittedIndex)
	assert.Equal(t, int64(1700000000), meta.UpdatedAt.Unix())
}

func TestSetProjectMeta_WritesExpectedScript(t *testing.T) {
	backend := &metaBackend{}
	meta := &ProjectMeta{
		Namespace:          "svc:code",
		LastIndexedSHA:     "deadbeef",
		LastCommittedIndex: 5,
		UpdatedAt:          time.Unix(1700000000, 0),
	}

	require.NoError(t, SetProjectMeta(context.Background(), backend, meta))
	require.Len(t, backend.scripts, 1)
	script := backend.scripts[0]
	assert.Contains(t, script, "cie_project_meta")
	assert.Contains(t, script, "svc:code")
	assert.Contains(t, script, "deadbeef")
}
