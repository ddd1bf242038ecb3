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

// Package ingest is the ingestion driver (C6): walks a source tree for the
// one namespace a run is given, and runs each file through parse -> graph write ->
// embed + vector write with a bounded worker pool.
package ingest

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// DefaultExcludeGlobs matches the lineage's default exclude set: VCS
// metadata, dependency/vendor directories, and build output.
var DefaultExcludeGlobs = []string{
	".git/**", "node_modules/**", "vendor/**", "dist/**", "build/**",
	"**/*.min.js", "**/testdata/**",
}

// DefaultMaxFileSize bounds how large a single file may be before it is
// skipped (spec's ingestion driver has no explicit cap, but a runaway
// generated file should not stall one worker indefinitely).
const DefaultMaxFileSize = 2 << 20 // 2 MiB

// WalkFile is one discovered source file awaiting parse.
type WalkFile struct {
	RelPath  string
	AbsPath  string
	Size     int64
}

// Walk walks root, returning every regular file not matched by
// excludeGlobs and not exceeding maxFileSize.
func Walk(root string, excludeGlobs []string, maxFileSize int64) ([]WalkFile, error) {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	var files []WalkFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // permission errors etc: skip, never fatal
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && matchesAny(rel, excludeGlobs) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesAny(rel, excludeGlobs) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if info.Size() > maxFileSize {
			return nil
		}
		files = append(files, WalkFile{RelPath: rel, AbsPath: path, Size: info.Size()})
		return nil
	})
	return files, err
}

// matchesAny reports whether rel matches any of globs (dir/** and *.ext
// forms cover the exclude patterns this driver actually needs; a full
// glob-matching engine is not warranted for a bounded, internal
// exclude-list use case).
func matchesAny(rel string, globs []string) bool {
	for _, g := range globs {
		if matchesGlob(rel, g) {
			return true
		}
	}
	return false
}

func matchesGlob(path, pattern string) bool {
	pattern = filepath.ToSlash(pattern)

	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimPrefix(strings.TrimSuffix(pattern, "/**"), "**/")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
		parts := strings.Split(path, "/")
		for i := range parts {
			sub := strings.Join(parts[i:], "/")
			if sub == prefix || strings.HasPrefix(sub, prefix+"/") {
				return true
			}
		}
		return false
	}

	if strings.HasPrefix(pattern, "**/") {
		suffix := pattern[3:]
		if ok, _ := filepath.Match(suffix, filepath.Base(path)); ok {
			return true
		}
		return strings.HasSuffix(path, "/"+suffix) || path == suffix
	}

	if ok, _ := filepath.Match(pattern, path); ok {
		return true
	}
	return strings.HasSuffix(path, "/"+pattern)
}
