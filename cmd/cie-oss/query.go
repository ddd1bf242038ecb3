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
	"log/slog"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie-oss/internal/contract"
	"github.com/kraklabs/cie-oss/internal/engine/orchestrator"
	"github.com/kraklabs/cie-oss/internal/engine/retrieval"
	cieerrors "github.com/kraklabs/cie-oss/internal/errors"
	"github.com/kraklabs/cie-oss/pkg/llm"
)

// runQuery asks a natural-language question over the indexed code via the
// query orchestrator (C8).
//
// Flags:
//   - --namespace: code namespace(s) to search, comma-separated (default: project namespace)
//   - --doc-namespace: documentation namespace to search (default: none)
//   - --k-code, --k-doc, --m-graph, --budget-chars: orchestrator.Config tuning
//   - --no-llm: return the assembled context without calling an LLM
//   - --timeout: overall query timeout
//   - --json: output the result as JSON
func runQuery(args []string, configPath string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	namespaces := fs.String("namespace", "", "Comma-separated code namespaces to search (default: project namespace). An unqualified namespace (no \":\") matches every namespace sharing its corpus prefix.")
	allNamespaces := fs.Bool("all-namespaces", false, "Search across every indexed namespace instead of just the project namespace")
	docNamespace := fs.String("doc-namespace", "", "Documentation namespace to search (default: none)")
	kCode := fs.Int("k-code", 0, "Top-k code hits per namespace (default: orchestrator default)")
	kDoc := fs.Int("k-doc", 0, "Top-k doc hits (default: orchestrator default)")
	mGraph := fs.Int("m-graph", 0, "Top hits to expand with CALLS edges (default: orchestrator default)")
	budgetChars := fs.Int("budget-chars", 0, "Context character budget (default: orchestrator default)")
	noLLM := fs.Bool("no-llm", false, "Return the assembled context without calling an LLM")
	excludeRoles := fs.String("exclude-roles", "", "Comma-separated unit roles to drop from code retrieval (e.g. \"test,generated\")")
	timeout := fs.Duration("timeout", 60*time.Second, "Query timeout")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie-oss query [options] <question>

Embeds the question, retrieves relevant code (and documentation, if
configured), assembles a bounded context, and optionally asks the
configured LLM to answer.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: question argument required")
		fs.Usage()
		os.Exit(1)
	}
	question := strings.Join(fs.Args(), " ")
	if v := contract.ValidateQuestion(question); !v.OK {
		cieerrors.FatalError(cieerrors.NewInputError("invalid question", v.Message, "shorten the question and try again"), *jsonOutput)
	}

	cfg, err := loadProjectConfig(configPath)
	if err != nil {
		cieerrors.FatalError(err, *jsonOutput)
	}

	backend, err := openBackend(cfg, true)
	if err != nil {
		cieerrors.FatalError(err, *jsonOutput)
	}
	defer backend.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	embedProv, err := embeddingProvider(cfg, logger)
	if err != nil {
		cieerrors.FatalError(err, *jsonOutput)
	}

	var llmProv llm.Provider
	if !*noLLM && cfg.LLM.Enabled {
		llmProv, err = llm.NewProvider(llm.ProviderConfig{
			Type:         cfg.LLM.Provider,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.Model,
			APIKey:       cfg.LLM.APIKey,
		})
		if err != nil {
			cieerrors.FatalError(cieerrors.NewConfigError("cannot construct LLM provider", err.Error(), "check the llm.provider setting in project.yaml", err), *jsonOutput)
		}
	}

	eng := retrieval.New(backend, embedProv)
	orch := orchestrator.New(eng, llmProv, logger)

	runCfg := orchestrator.DefaultConfig()
	runCfg.UseLLM = !*noLLM && cfg.LLM.Enabled
	runCfg.DocNamespace = *docNamespace
	switch {
	case *namespaces != "":
		runCfg.Namespaces = strings.Split(*namespaces, ",")
	case *allNamespaces:
		runCfg.Namespaces = nil // orchestrator searches every known namespace once
	default:
		ns := cfg.Namespace
		if ns == "" {
			ns = cfg.ProjectID
		}
		runCfg.Namespaces = []string{ns}
	}
	if *kCode > 0 {
		runCfg.KCode = *kCode
	}
	if *kDoc > 0 {
		runCfg.KDoc = *kDoc
	}
	if *mGraph > 0 {
		runCfg.MGraph = *mGraph
	}
	if *budgetChars > 0 {
		runCfg.BudgetChars = *budgetChars
	}
	if *excludeRoles != "" {
		runCfg.ExcludeRoles = strings.Split(*excludeRoles, ",")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := orch.Run(ctx, question, runCfg)
	if err != nil {
		cieerrors.FatalError(cieerrors.NewInternalError("query failed", err.Error(), "", err), *jsonOutput)
	}

	if *jsonOutput {
		writeJSON(result)
		return
	}
	printQueryResult(result)
}

func printQueryResult(r *orchestrator.Result) {
	if r.AnsweredByLLM {
		fmt.Println(r.Answer)
		fmt.Println()
	}
	fmt.Println("--- Context ---")
	for i, d := range r.Context.DocSnippets {
		fmt.Printf("[doc %d] %s (score %.3f)\n", i+1, d.Title, d.Score)
	}
	for i, cs := range r.Context.CodeSnippets {
		fmt.Printf("[code %d] %s: %s:%d (score %.3f)\n  %s\n", i+1, cs.Namespace, cs.FilePath, cs.LineStart, cs.Score, cs.Signature)
	}
	for _, e := range r.Context.CallEdges {
		fmt.Printf("%s -> %s\n", e.Caller, e.Callee)
	}
	if r.Context.Truncated {
		fmt.Println("\n(context truncated to fit the character budget)")
	}
}
