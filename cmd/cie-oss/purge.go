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

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie-oss/internal/engine/schema"
	cieerrors "github.com/kraklabs/cie-oss/internal/errors"
)

// runPurge deletes every row carrying a namespace (spec §4.9, S5), or the
// whole project data directory with --all.
//
// Flags:
//   - --yes: confirm the destructive operation (required)
//   - --namespace: namespace to purge (default: project namespace)
//   - --all: delete the entire project data directory instead of one namespace
func runPurge(args []string, configPath string) {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	confirm := fs.Bool("yes", false, "Confirm the purge (required)")
	namespace := fs.String("namespace", "", "Namespace to purge (default: project namespace)")
	all := fs.Bool("all", false, "Delete the entire project data directory")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie-oss purge [options]

Deletes indexed data for a namespace, or the whole project with --all.

WARNING: This operation is destructive and cannot be undone!

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if !*confirm {
		fmt.Fprintln(os.Stderr, "Error: you must pass --yes to confirm the purge")
		os.Exit(1)
	}

	cfg, err := loadProjectConfig(configPath)
	if err != nil {
		cieerrors.FatalError(err, false)
	}

	dir, err := dataDir(cfg.ProjectID)
	if err != nil {
		cieerrors.FatalError(cieerrors.NewInternalError("cannot determine data directory", err.Error(), "", err), false)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		fmt.Printf("No local data found for project %s\n", cfg.ProjectID)
		return
	}

	if *all {
		fmt.Printf("Deleting all data for project %s (%s)...\n", cfg.ProjectID, dir)
		if err := os.RemoveAll(dir); err != nil {
			cieerrors.FatalError(cieerrors.NewPermissionError("failed to delete project data", err.Error(), "check directory permissions", err), false)
		}
		fmt.Println("Purge complete.")
		return
	}

	ns := *namespace
	if ns == "" {
		ns = cfg.Namespace
	}
	if ns == "" {
		ns = cfg.ProjectID
	}

	backend, err := openBackend(cfg, true)
	if err != nil {
		cieerrors.FatalError(err, false)
	}
	defer backend.Close()

	ctx := context.Background()
	fmt.Printf("Purging namespace %q...\n", ns)
	for _, stmt := range schema.PurgeScripts(ns) {
		if err := backend.Execute(ctx, stmt); err != nil {
			cieerrors.FatalError(cieerrors.NewDatabaseError("purge failed partway through", err.Error(), "re-run 'cie-oss purge --yes' to finish cleanup", err), false)
		}
	}
	fmt.Println("Purge complete.")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  cie-oss ingest    Reindex the project")
}
