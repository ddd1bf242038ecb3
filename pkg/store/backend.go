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

// Package store provides the storage backend abstraction shared by the
// graph loader (C4), vector loader (C5), and retrieval engine (C7): every
// component talks to Backend, never to a concrete database client
// directly (spec §9: "explicit context-carried handles, not a package-level
// singleton DB client").
package store

import (
	"context"

	cozo "github.com/kraklabs/cie-oss/pkg/cozodb"
)

// Backend is the storage abstraction every higher-level component depends
// on. A single embedded CozoDB instance serves as both the graph store and
// the vector store (spec §2: "vector points may be colocated with or
// external to the graph store").
type Backend interface {
	// Query executes a read-only Datalog query.
	Query(ctx context.Context, script string) (*QueryResult, error)

	// Execute runs a Datalog mutation. Implements schema.Executor.
	Execute(ctx context.Context, script string) error

	// Close releases the backend's resources.
	Close() error
}

// QueryResult is a Datalog query result: a header row plus value rows.
type QueryResult struct {
	Headers []string
	Rows    [][]any
}

// ToNamedRows converts QueryResult to the CozoDB wire shape.
func (r *QueryResult) ToNamedRows() cozo.NamedRows {
	return cozo.NamedRows{Headers: r.Headers, Rows: r.Rows}
}

// FromNamedRows converts a CozoDB result into a QueryResult.
func FromNamedRows(nr cozo.NamedRows) *QueryResult {
	return &QueryResult{Headers: nr.Headers, Rows: nr.Rows}
}
