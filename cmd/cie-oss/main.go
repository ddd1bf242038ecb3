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

// Package main implements the cie-oss CLI: a polyglot code-intelligence
// pipeline driving ingestion (C6) and query (C8) against a local, embedded
// store.
//
// Usage:
//
//	cie-oss init                     Create .cie-oss/project.yaml
//	cie-oss ingest [--root PATH]     Walk, parse, and index a repository
//	cie-oss status [--json]          Show project status
//	cie-oss query <question>         Ask a question over the indexed code
//	cie-oss purge --yes              Delete all indexed data for the project
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie-oss/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to .cie-oss/project.yaml (default: ./.cie-oss/project.yaml)")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `cie-oss - Code Intelligence Engine CLI

Usage:
  cie-oss <command> [options]

Commands:
  init      Create .cie-oss/project.yaml configuration
  ingest    Walk, parse, and index the repository
  status    Show project status
  query     Ask a question over the indexed code
  purge     Delete all indexed data for the project (destructive!)
  projects  List local projects with indexed data

Global Options:
  --config      Path to .cie-oss/project.yaml
  --version     Show version and exit
  --no-color    Disable colored output

Examples:
  cie-oss init
  cie-oss ingest
  cie-oss status --json
  cie-oss query "what does the retrieval engine do?"
  cie-oss purge --yes

Data Storage:
  Data is stored locally in ~/.cie-oss/data/<project_id>/

Environment Variables:
  CIE_EMBEDDING_API_KEY   Embedding provider API key override
  CIE_LLM_API_KEY         LLM provider API key override
  OPENAI_API_KEY          Fallback for an "openai" provider
  ANTHROPIC_API_KEY       Fallback for an "anthropic" provider

`)
	}

	flag.Parse()
	ui.InitColors(*noColor)

	if *showVersion {
		fmt.Printf("cie-oss version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs)
	case "ingest":
		runIngest(cmdArgs, *configPath)
	case "status":
		runStatus(cmdArgs, *configPath)
	case "query":
		runQuery(cmdArgs, *configPath)
	case "purge":
		runPurge(cmdArgs, *configPath)
	case "projects":
		runProjects(cmdArgs, *configPath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
