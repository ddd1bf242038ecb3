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

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie-oss/internal/bootstrap"
	cieerrors "github.com/kraklabs/cie-oss/internal/errors"
	"github.com/kraklabs/cie-oss/internal/ui"
)

// runProjects lists every project with local data, independent of the
// current directory's .cie-oss/project.yaml.
func runProjects(args []string, _ string) {
	fs := flag.NewFlagSet("projects", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie-oss projects [options]

Lists project IDs that have local data under ~/.cie-oss/data, regardless
of the current directory.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	root, err := bootstrap.DefaultDataRoot()
	if err != nil {
		cieerrors.FatalError(cieerrors.NewInternalError("cannot determine data directory", err.Error(), "", err), *jsonOutput)
	}

	ids, err := bootstrap.ListProjects(root)
	if err != nil {
		cieerrors.FatalError(cieerrors.NewInternalError("cannot list projects", err.Error(), "", err), *jsonOutput)
	}

	if *jsonOutput {
		writeJSON(map[string]any{"projects": ids})
		return
	}

	if len(ids) == 0 {
		ui.Info("no local projects found")
		return
	}
	ui.Header("Local Projects")
	for _, id := range ids {
		fmt.Println(id)
	}
}
