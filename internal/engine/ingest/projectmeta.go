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
	"fmt"
	"time"

	"github.com/kraklabs/cie-oss/pkg/store"
)

// ProjectMeta is one namespace's lightweight indexing state (SPEC_FULL.md
// Part E.5), stored in cie_project_meta rather than a side-channel manifest
// file so `cie-oss status` can read it with the same backend as everything
// else.
type ProjectMeta struct {
	Namespace          string
	LastIndexedSHA     string
	LastCommittedIndex uint64
	UpdatedAt          time.Time
}

// GetProjectMeta retrieves namespace's metadata. Returns (nil, nil) if the
// namespace has never completed an ingestion run.
func GetProjectMeta(ctx context.Context, backend store.Backend, namespace string) (*ProjectMeta, error) {
	script := fmt.Sprintf(`?[last_indexed_sha, last_committed_index, updated_at] :=
		*cie_project_meta { namespace, last_indexed_sha, last_committed_index, updated_at },
		namespace = %q`, namespace)

	result, err := backend.Query(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("ingest: query project meta: %w", err)
	}
	if len(result.Rows) == 0 {
		return nil, nil
	}
	row := result.Rows[0]
	if len(row) < 3 {
		return nil, fmt.Errorf("ingest: unexpected project meta row: %v", row)
	}

	meta := &ProjectMeta{Namespace: namespace, LastIndexedSHA: asString(row[0])}
	meta.LastCommittedIndex = asUint64(row[1])
	meta.UpdatedAt = time.Unix(asInt64(row[2]), 0)
	return meta, nil
}

// SetProjectMeta upserts namespace's metadata after a completed run.
func SetProjectMeta(ctx context.Context, backend store.Backend, meta *ProjectMeta) error {
	script := fmt.Sprintf(`?[namespace, last_indexed_sha, last_committed_index, updated_at] <- [[%q, %q, %d, %d]]
:put cie_project_meta { namespace => last_indexed_sha, last_committed_index, updated_at }`,
		meta.Namespace, meta.LastIndexedSHA, meta.LastCommittedIndex, meta.UpdatedAt.Unix())
	if err := backend.Execute(ctx, script); err != nil {
		return fmt.Errorf("ingest: set project meta: %w", err)
	}
	return nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func asUint64(v any) uint64 {
	n := asInt64(v)
	if n < 0 {
		return 0
	}
	return uint64(n)
}
