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
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie-oss/internal/config"
	cieerrors "github.com/kraklabs/cie-oss/internal/errors"
)

// runInit writes a fresh .cie-oss/project.yaml under the current directory,
// named after it unless --project-id overrides the default.
func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	projectID := fs.String("project-id", "", "Project id (default: current directory name)")
	force := fs.Bool("force", false, "Overwrite an existing project.yaml")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie-oss init [options]

Creates .cie-oss/project.yaml with default (offline, mock) settings. Edit
the file afterwards to point at a real embedding/LLM provider.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cieerrors.FatalError(cieerrors.NewInternalError("cannot determine current directory", err.Error(), "", err), false)
	}

	id := *projectID
	if id == "" {
		id = filepath.Base(cwd)
	}

	path := config.ConfigPath(cwd)
	if _, err := os.Stat(path); err == nil && !*force {
		cieerrors.FatalError(cieerrors.NewConfigError(
			"project.yaml already exists",
			path,
			"pass --force to overwrite it",
			nil,
		), false)
	}

	cfg := config.DefaultConfig(id)
	if err := config.Save(cfg, path); err != nil {
		cieerrors.FatalError(cieerrors.NewConfigError("cannot write project.yaml", err.Error(), "check directory permissions", err), false)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Printf("Project ID: %s\n", id)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  cie-oss ingest    Index the current repository")
	fmt.Println("  cie-oss query \"...\"    Ask a question once indexed")
}
