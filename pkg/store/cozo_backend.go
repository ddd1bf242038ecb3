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
	"fmt"
	"os"
	"path/filepath"
	"sync"

	cozo "github.com/kraklabs/cie-oss/pkg/cozodb"

	"github.com/kraklabs/cie-oss/internal/engine/schema"
)

// CozoBackend implements Backend using a local, embedded CozoDB instance.
// It is the only backend this implementation ships (spec's abstract graph
// and vector store interfaces are both satisfied by the same handle, per
// §2), but it is never reached except through the Backend interface so a
// remote/pooled backend can be substituted without touching callers.
type CozoBackend struct {
	db     *cozo.CozoDB
	mu     sync.RWMutex
	closed bool
}

// Config configures the embedded CozoDB backend.
type Config struct {
	// DataDir is where CozoDB stores its data. Defaults to
	// ~/.cie-oss/data/<project_id>.
	DataDir string

	// Engine is the CozoDB storage engine: "mem", "sqlite", or "rocksdb".
	// Defaults to "rocksdb".
	Engine string

	// ProjectID namespaces the default data directory; it is unrelated to
	// the Namespace used for multi-tenant rows (a project may host several
	// namespaces).
	ProjectID string
}

// Open creates or opens the embedded CozoDB backend at Config.DataDir.
func Open(cfg Config) (*CozoBackend, error) {
	if cfg.Engine == "" {
		cfg.Engine = "rocksdb"
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".cie-oss", "data")
		if cfg.ProjectID != "" {
			cfg.DataDir = filepath.Join(cfg.DataDir, cfg.ProjectID)
		}
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := cozo.New(cfg.Engine, cfg.DataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("open cozodb: %w", err)
	}
	return &CozoBackend{db: &db}, nil
}

// Query executes a read-only Datalog query. CozoDB errors are returned
// wrapped ("query: ...") without further classification.
func (b *CozoBackend) Query(ctx context.Context, script string) (*QueryResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("backend is closed")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.db.RunReadOnly(script, nil)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return FromNamedRows(result), nil
}

// Execute runs a Datalog mutation. Satisfies schema.Executor.
func (b *CozoBackend) Execute(ctx context.Context, script string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("backend is closed")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if _, err := b.db.Run(script, nil); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (b *CozoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.db.Close()
	return nil
}

var _ schema.Executor = (*CozoBackend)(nil)
