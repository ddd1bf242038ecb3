// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListProjects_ReturnsSubdirectoryNames(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "proj-a"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "proj-b"), 0o755))

	projects, err := ListProjects(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"proj-a", "proj-b"}, projects)
}

func TestListProjects_IgnoresRegularFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "proj-a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray-file"), []byte("x"), 0o644))

	projects, err := ListProjects(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"proj-a"}, projects)
}

func TestListProjects_MissingRootReturnsEmptyNotError(t *testing.T) {
	projects, err := ListProjects(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestDefaultDataRoot_NestsUnderCieOssData(t *testing.T) {
	root, err := DefaultDataRoot()
	require.NoError(t, err)
	assert.Contains(t, root, filepath.Join(".cie-oss", "data"))
}
