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

// Package schema is the schema & ID layer (C9): deterministic CodeUnit ids,
// the graph relation shapes, and namespace purge.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// UnitID derives the content-addressed id of a CodeUnit (I1, P7).
//
// id = sha256(namespace|language|file_path|kind|name|line_start), hex-encoded.
// The signature, docstring, and code body are deliberately excluded so that
// id stability survives unrelated parser improvements to those fields.
func UnitID(namespace, language, filePath, kind, name string, lineStart int) string {
	norm := normalizePath(filePath)
	idStr := fmt.Sprintf("%s|%s|%s|%s|%s|%d", namespace, language, norm, kind, name, lineStart)
	hash := sha256.Sum256([]byte(idStr))
	return hex.EncodeToString(hash[:16]) // 32 hex chars, within spec's 16-32 range
}

// FileID derives a stable id for a source file within a namespace.
func FileID(namespace, filePath string) string {
	norm := normalizePath(filePath)
	idStr := fmt.Sprintf("%s|%s", namespace, norm)
	hash := sha256.Sum256([]byte(idStr))
	return hex.EncodeToString(hash[:16])
}

// normalizePath normalizes a file path for consistent id generation across
// platforms: strips a leading "./", cleans redundant separators, converts
// backslashes to forward slashes, and drops a leading slash.
func normalizePath(path string) string {
	if len(path) >= 2 && path[0:2] == "./" {
		path = path[2:]
	}
	path = filepath.Clean(path)
	path = strings.ReplaceAll(filepath.ToSlash(path), "\\", "/")
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return path
}
