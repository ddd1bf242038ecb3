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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsGitRepository_FalseForNonGitDir(t *testing.T) {
	assert.False(t, IsGitRepository(t.TempDir()))
}

func TestIsGitRepository_TrueAfterInit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package sample\n")
	initGitRepo(t, root)
	assert.True(t, IsGitRepository(root))
}

func TestDetectDelta_ReportsAddedModifiedDeletedRenamed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package sample\n\nfunc A() {}\n")
	writeFile(t, root, "b.go", "package sample\n\nfunc B() {}\n")
	writeFile(t, root, "c.go", "package sample\n\nfunc C() {}\n")
	initGitRepo(t, root)
	baseSHA, err := HeadSHA(root)
	require.NoError(t, err)

	writeFile(t, root, "a.go", "package sample\n\nfunc A() int { return 1 }\n")
	writeFile(t, root, "d.go", "package sample\n\nfunc D() {}\n")
	require.NoError(t, os.Remove(filepath.Join(root, "c.go")))
	require.NoError(t, os.Rename(filepath.Join(root, "b.go"), filepath.Join(root, "b2.go")))
	commitAll(t, root, "mixed changes")

	delta, err := DetectDelta(root, baseSHA, "")
	require.NoError(t, err)

	assert.Contains(t, delta.Added, "d.go")
	assert.Contains(t, delta.Modified, "a.go")
	assert.Contains(t, delta.Deleted, "c.go")
	assert.Equal(t, "b2.go", delta.Renamed["b.go"])

	assert.ElementsMatch(t, []string{"a.go", "b2.go", "d.go"}, delta.ChangedPaths())
	assert.ElementsMatch(t, []string{"b.go", "c.go"}, delta.RemovedPaths())
	assert.True(t, delta.HasChanges())
}

func TestDetectDelta_EmptyBaseReportsWholeTreeAsAdded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package sample\n")
	initGitRepo(t, root)

	delta, err := DetectDelta(root, "", "")
	require.NoError(t, err)
	assert.Contains(t, delta.Added, "a.go")
}

func TestFilterDelta_DropsExcludedPaths(t *testing.T) {
	delta := &GitDelta{
		Added:    []string{"a.go", "vendor/lib/x.go"},
		Modified: []string{"node_modules/pkg/index.js"},
		Deleted:  []string{"b.go"},
		Renamed:  map[string]string{"old.go": "vendor/new.go"},
	}
	filtered := FilterDelta(delta, []string{"vendor/**", "node_modules/**"})

	assert.Equal(t, []string{"a.go"}, filtered.Added)
	assert.Empty(t, filtered.Modified)
	assert.Equal(t, []string{"b.go", "old.go"}, filtered.Deleted)
	assert.Contains(t, filtered.Deleted, "old.go")
	assert.Empty(t, filtered.Renamed)
}

func TestHeadSHA_ReturnsCurrentCommit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package sample\n")
	initGitRepo(t, root)

	sha, err := HeadSHA(root)
	require.NoError(t, err)
	assert.Len(t, sha, 40)
}
