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
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cie-oss/internal/engine/embedding"
	"github.com/kraklabs/cie-oss/internal/engine/parser"
	"github.com/kraklabs/cie-oss/internal/engine/vectorload"
	"github.com/kraklabs/cie-oss/pkg/store"
)

type recordingBackend struct {
	mu      sync.Mutex
	scripts []string
}

func (r *recordingBackend) Query(_ context.Context, _ string) (*store.QueryResult, error) {
	return &store.QueryResult{}, nil
}

func (r *recordingBackend) Execute(_ context.Context, script string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts = append(r.scripts, script)
	return nil
}

func (r *recordingBackend) Close() error { return nil }

func (r *recordingBackend) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scripts)
}

func newTestDriver(backend store.Backend) *Driver {
	registry := parser.NewRegistry()
	vectors := vectorload.New(backend, embedding.NewMockProvider(4))
	return New(backend, registry, vectors, nil)
}

func TestDriver_Run_WalksParsesAndResolvesCallsAcrossFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package sample\n\nfunc Helper() int { return 1 }\n")
	writeFile(t, root, "b.go", "package sample\n\nfunc UseHelper() int { return Helper() }\n")

	backend := &recordingBackend{}
	driver := newTestDriver(backend)

	result, err := driver.Run(context.Background(), Config{Root: root, Namespace: "svc:code", Workers: 2}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesWalked)
	assert.Equal(t, 2, result.FilesParsed)
	assert.Equal(t, 0, result.ParseErrors)
	assert.Greater(t, result.UnitsWritten, 0)
	assert.Greater(t, backend.count(), 0)
}

func TestDriver_Run_TreatsInvalidUTF8AsParsedWithNoUnits(t *testing.T) {
	// Invalid-UTF8 content never fails parsing (parser.Parser.Parse never
	// returns an error for malformed input, per its contract); it produces
	// a ParseResult with a warning and zero units, not a FileError.
	root := t.TempDir()
	writeFile(t, root, "ok.go", "package sample\n\nfunc Fine() {}\n")
	writeFile(t, root, "blob.dat", string([]byte{0xff, 0xfe, 0x00, 0x80}))

	backend := &recordingBackend{}
	driver := newTestDriver(backend)

	result, err := driver.Run(context.Background(), Config{Root: root, Namespace: "svc:code", Workers: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesWalked)
	assert.Equal(t, 2, result.FilesParsed)
	assert.Equal(t, 0, result.ParseErrors)
	assert.Empty(t, result.FileErrors)
}

func TestDriver_Run_ReportsProgressForEveryFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package sample\n\nfunc A() {}\n")
	writeFile(t, root, "b.go", "package sample\n\nfunc B() {}\n")

	backend := &recordingBackend{}
	driver := newTestDriver(backend)

	progress := make(chan Progress, 8)
	_, err := driver.Run(context.Background(), Config{Root: root, Namespace: "svc:code", Workers: 2}, progress)
	require.NoError(t, err)
	close(progress)

	var seen int
	for p := range progress {
		seen++
		assert.Equal(t, 2, p.Total)
	}
	assert.Equal(t, 2, seen)
}

func TestDriver_Run_TreatsUnreadableRootAsEmptyWalk(t *testing.T) {
	backend := &recordingBackend{}
	driver := newTestDriver(backend)

	result, err := driver.Run(context.Background(), Config{Root: "/nonexistent/does/not/exist", Namespace: "svc:code"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.FilesWalked)
}

func TestDriver_Run_WithCheckpointDirResumesWithoutReprocessing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package sample\n\nfunc A() {}\n")
	writeFile(t, root, "b.go", "package sample\n\nfunc B() {}\n")
	checkpointDir := t.TempDir()

	backend := &recordingBackend{}
	driver := newTestDriver(backend)
	cfg := Config{Root: root, Namespace: "svc:code", Workers: 1, CheckpointDir: checkpointDir}

	first, err := driver.Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.FilesParsed)
	assert.Equal(t, 0, first.FilesSkippedCheckpoint)

	// A completed run clears its checkpoint, so a second run over the same
	// unchanged tree reprocesses everything rather than skipping it all.
	second, err := driver.Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, second.FilesParsed)
	assert.Equal(t, 0, second.FilesSkippedCheckpoint)
}

func TestDriver_Run_SkipsPathsAlreadyInAPriorCheckpoint(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package sample\n\nfunc A() {}\n")
	writeFile(t, root, "b.go", "package sample\n\nfunc B() {}\n")
	checkpointDir := t.TempDir()

	manager := NewCheckpointManager(checkpointDir)
	require.NoError(t, manager.Save(&Checkpoint{Namespace: "svc:code", ProcessedPaths: []string{"a.go"}}))

	backend := &recordingBackend{}
	driver := newTestDriver(backend)

	result, err := driver.Run(context.Background(), Config{Root: root, Namespace: "svc:code", Workers: 1, CheckpointDir: checkpointDir}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesParsed)
	assert.Equal(t, 1, result.FilesSkippedCheckpoint)
}

func runGit(t *testing.T, root string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = root
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func initGitRepo(t *testing.T, root string) {
	t.Helper()
	runGit(t, root, "init", "-q")
	runGit(t, root, "config", "user.email", "test@example.com")
	runGit(t, root, "config", "user.name", "Test")
	commitAll(t, root, "initial")
}

func commitAll(t *testing.T, root, message string) {
	t.Helper()
	runGit(t, root, "add", "-A")
	runGit(t, root, "commit", "-q", "-m", message)
}

func TestDriver_Run_WithSinceSHARestrictsToChangedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package sample\n\nfunc A() {}\n")
	writeFile(t, root, "b.go", "package sample\n\nfunc B() {}\n")
	initGitRepo(t, root)

	baseSHA, err := HeadSHA(root)
	require.NoError(t, err)

	writeFile(t, root, "b.go", "package sample\n\nfunc B() int { return 2 }\n")
	writeFile(t, root, "c.go", "package sample\n\nfunc C() {}\n")
	commitAll(t, root, "modify b, add c")

	backend := &recordingBackend{}
	driver := newTestDriver(backend)

	result, err := driver.Run(context.Background(), Config{Root: root, Namespace: "svc:code", Workers: 1, SinceSHA: baseSHA}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesParsed, "only b.go (modified) and c.go (added) should be reprocessed")
}

func TestDriver_Run_WithSinceSHAPurgesDeletedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package sample\n\nfunc A() {}\n")
	writeFile(t, root, "b.go", "package sample\n\nfunc B() {}\n")
	initGitRepo(t, root)

	baseSHA, err := HeadSHA(root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))
	commitAll(t, root, "delete b")

	backend := &recordingBackend{}
	driver := newTestDriver(backend)

	result, err := driver.Run(context.Background(), Config{Root: root, Namespace: "svc:code", Workers: 1, SinceSHA: baseSHA}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesPurged)
}
