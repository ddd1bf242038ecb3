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
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// emptyTreeSHA is git's well-known empty-tree object, used as the base when
// no prior SHA has been indexed (the whole tree is then reported as added).
const emptyTreeSHA = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// GitDelta is the set of file changes between two commits (SPEC_FULL.md
// Part E.1). Renamed maps old path -> new path; a rename's old path is not
// also listed in Deleted.
type GitDelta struct {
	BaseSHA  string
	HeadSHA  string
	Added    []string
	Modified []string
	Deleted  []string
	Renamed  map[string]string
}

// HasChanges reports whether the delta touched any file at all.
func (d *GitDelta) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Modified) > 0 || len(d.Deleted) > 0 || len(d.Renamed) > 0
}

// ChangedPaths returns every path that needs (re)parsing: additions,
// modifications, and a rename's new path.
func (d *GitDelta) ChangedPaths() []string {
	paths := make([]string, 0, len(d.Added)+len(d.Modified)+len(d.Renamed))
	paths = append(paths, d.Added...)
	paths = append(paths, d.Modified...)
	for _, newPath := range d.Renamed {
		paths = append(paths, newPath)
	}
	sort.Strings(paths)
	return paths
}

// RemovedPaths returns every path whose previously indexed data must be
// purged: deletions and a rename's old path.
func (d *GitDelta) RemovedPaths() []string {
	paths := append([]string{}, d.Deleted...)
	for oldPath := range d.Renamed {
		paths = append(paths, oldPath)
	}
	sort.Strings(paths)
	return paths
}

// DetectDelta shells out to git diff --name-status -M (rename detection) to
// find what changed between baseSHA and headSHA in repoRoot. An empty
// baseSHA compares against git's empty tree, so every tracked file reports
// as added (first-time ingestion of a git-tracked repo). An empty headSHA
// defaults to HEAD.
func DetectDelta(repoRoot, baseSHA, headSHA string) (*GitDelta, error) {
	if headSHA == "" {
		headSHA = "HEAD"
	}
	resolvedHead, err := resolveGitRef(repoRoot, headSHA)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve head ref %s: %w", headSHA, err)
	}

	resolvedBase := emptyTreeSHA
	if baseSHA != "" {
		resolvedBase, err = resolveGitRef(repoRoot, baseSHA)
		if err != nil {
			return nil, fmt.Errorf("ingest: resolve base ref %s: %w", baseSHA, err)
		}
	}

	cmd := exec.Command("git", "diff", "--name-status", "-M", resolvedBase, resolvedHead)
	cmd.Dir = repoRoot
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("ingest: git diff: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("ingest: git diff: %w", err)
	}

	delta := &GitDelta{BaseSHA: resolvedBase, HeadSHA: resolvedHead, Renamed: make(map[string]string)}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}
		status := parts[0]
		switch status[0] {
		case 'A':
			delta.Added = append(delta.Added, parts[1])
		case 'M':
			delta.Modified = append(delta.Modified, parts[1])
		case 'D':
			delta.Deleted = append(delta.Deleted, parts[1])
		case 'R':
			if len(parts) >= 3 {
				delta.Renamed[parts[1]] = parts[2]
			}
		case 'C':
			if len(parts) >= 3 {
				delta.Added = append(delta.Added, parts[2])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: parse git diff output: %w", err)
	}

	sort.Strings(delta.Added)
	sort.Strings(delta.Modified)
	sort.Strings(delta.Deleted)
	return delta, nil
}

// resolveGitRef resolves a git ref (branch, tag, HEAD, SHA) to a commit SHA,
// unless ref is already the well-known empty-tree SHA.
func resolveGitRef(repoRoot, ref string) (string, error) {
	if ref == emptyTreeSHA {
		return ref, nil
	}
	cmd := exec.Command("git", "rev-parse", ref)
	cmd.Dir = repoRoot
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git rev-parse %s: %s", ref, string(exitErr.Stderr))
		}
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// HeadSHA returns repoRoot's current HEAD commit SHA.
func HeadSHA(repoRoot string) (string, error) {
	return resolveGitRef(repoRoot, "HEAD")
}

// IsGitRepository reports whether repoRoot is inside a git working tree.
func IsGitRepository(repoRoot string) bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = repoRoot
	return cmd.Run() == nil
}

// FilterDelta drops changed paths matched by excludeGlobs, mirroring the
// same exclusion rules a full Walk would apply, so a delta run's file set
// stays consistent with a full run's.
func FilterDelta(delta *GitDelta, excludeGlobs []string) *GitDelta {
	filtered := &GitDelta{BaseSHA: delta.BaseSHA, HeadSHA: delta.HeadSHA, Renamed: make(map[string]string)}
	keep := func(path string) bool { return !matchesAny(path, excludeGlobs) }

	for _, p := range delta.Added {
		if keep(p) {
			filtered.Added = append(filtered.Added, p)
		}
	}
	for _, p := range delta.Modified {
		if keep(p) {
			filtered.Modified = append(filtered.Modified, p)
		}
	}
	for _, p := range delta.Deleted {
		if keep(p) {
			filtered.Deleted = append(filtered.Deleted, p)
		}
	}
	for oldPath, newPath := range delta.Renamed {
		switch {
		case keep(newPath):
			filtered.Renamed[oldPath] = newPath
		case keep(oldPath):
			filtered.Deleted = append(filtered.Deleted, oldPath)
		}
	}
	return filtered
}
