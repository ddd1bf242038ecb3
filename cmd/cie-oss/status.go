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

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie-oss/internal/engine/ingest"
	cieerrors "github.com/kraklabs/cie-oss/internal/errors"
	"github.com/kraklabs/cie-oss/internal/ui"
	"github.com/kraklabs/cie-oss/pkg/store"
)

// statusResult is the project status, rendered as text or JSON.
type statusResult struct {
	ProjectID          string    `json:"project_id"`
	Namespace          string    `json:"namespace"`
	DataDir            string    `json:"data_dir"`
	Indexed            bool      `json:"indexed"`
	Units              int       `json:"units"`
	Embeddings         int       `json:"embeddings"`
	CallEdges          int       `json:"call_edges"`
	Contains           int       `json:"contains_edges"`
	Imports            int       `json:"import_edges"`
	Files              int       `json:"files"`
	LastIndexedSHA     string    `json:"last_indexed_sha,omitempty"`
	LastCommittedIndex uint64    `json:"last_committed_index,omitempty"`
	LastIndexedAt      time.Time `json:"last_indexed_at,omitempty"`
	Error              string    `json:"error,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// runStatus reports indexed-entity counts for the current project.
func runStatus(args []string, configPath string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie-oss status [options]

Shows local project status: how much of the repository has been indexed.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadProjectConfig(configPath)
	if err != nil {
		cieerrors.FatalError(err, *jsonOutput)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = cfg.ProjectID
	}
	dir, err := dataDir(cfg.ProjectID)
	if err != nil {
		cieerrors.FatalError(cieerrors.NewInternalError("cannot determine data directory", err.Error(), "", err), *jsonOutput)
	}

	result := &statusResult{ProjectID: cfg.ProjectID, Namespace: namespace, DataDir: dir, Timestamp: time.Now()}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		result.Indexed = false
		result.Error = "project not indexed yet. Run 'cie-oss ingest' first."
		renderStatus(result, *jsonOutput)
		return
	}

	backend, err := openBackend(cfg, true)
	if err != nil {
		result.Error = err.Error()
		renderStatus(result, *jsonOutput)
		os.Exit(1)
	}
	defer backend.Close()

	result.Indexed = true
	ctx := context.Background()
	result.Units = countRows(ctx, backend, "cie_unit", "id", namespace)
	result.Embeddings = countRows(ctx, backend, "cie_unit_embedding", "id", namespace)
	result.CallEdges = countRows(ctx, backend, "cie_calls", "id", namespace)
	result.Contains = countRows(ctx, backend, "cie_contains", "child_id", namespace)
	result.Imports = countRows(ctx, backend, "cie_import", "id", namespace)
	result.Files = countRows(ctx, backend, "cie_file", "path", namespace)

	if meta, err := ingest.GetProjectMeta(ctx, backend, namespace); err != nil {
		ui.Warningf("could not read project metadata: %v", err)
	} else if meta != nil {
		result.LastIndexedSHA = meta.LastIndexedSHA
		result.LastCommittedIndex = meta.LastCommittedIndex
		result.LastIndexedAt = meta.UpdatedAt
	}

	renderStatus(result, *jsonOutput)
}

// countRows counts rows in relation scoped to namespace, keyed on pkField.
// Returns 0 on any query failure rather than aborting status reporting.
func countRows(ctx context.Context, backend store.Backend, relation, pkField, namespace string) int {
	script := fmt.Sprintf("?[count(%s)] := *%s{namespace, %s}, namespace = %q", pkField, relation, pkField, namespace)
	result, err := backend.Query(ctx, script)
	if err != nil || len(result.Rows) == 0 || len(result.Rows[0]) == 0 {
		return 0
	}
	switch v := result.Rows[0][0].(type) {
	case float64:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func renderStatus(r *statusResult, jsonOutput bool) {
	if jsonOutput {
		writeJSON(r)
		return
	}
	ui.Header("cie-oss Project Status")
	fmt.Printf("%s %s\n", ui.Label("Project ID:"), r.ProjectID)
	fmt.Printf("%s %s\n", ui.Label("Namespace: "), r.Namespace)
	fmt.Printf("%s %s\n", ui.Label("Data Dir:  "), ui.DimText(r.DataDir))
	fmt.Println()
	if !r.Indexed {
		ui.Warning(r.Error)
		return
	}
	ui.SubHeader("Entities:")
	fmt.Printf("  Units:      %s\n", ui.CountText(r.Units))
	fmt.Printf("  Embeddings: %s\n", ui.CountText(r.Embeddings))
	fmt.Printf("  Calls:      %s\n", ui.CountText(r.CallEdges))
	fmt.Printf("  Contains:   %s\n", ui.CountText(r.Contains))
	fmt.Printf("  Imports:    %s\n", ui.CountText(r.Imports))
	fmt.Printf("  Files:      %s\n", ui.CountText(r.Files))
	if r.LastIndexedSHA != "" {
		fmt.Println()
		ui.SubHeader("Last Ingestion:")
		fmt.Printf("  Commit:  %s\n", r.LastIndexedSHA)
		fmt.Printf("  Run #:   %d\n", r.LastCommittedIndex)
		fmt.Printf("  When:    %s\n", r.LastIndexedAt.Format(time.RFC3339))
	}
	if r.Error != "" {
		ui.Warningf("%s", r.Error)
	}
}
