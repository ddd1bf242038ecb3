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

// Package orchestrator implements the query orchestrator (C8): embed a
// question, fan out to the retrieval engine, assemble a bounded context, and
// call an LLM over it.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/cie-oss/internal/engine/metrics"
	"github.com/kraklabs/cie-oss/internal/engine/retrieval"
	"github.com/kraklabs/cie-oss/pkg/llm"
)

// Config tunes one Run (spec §6: query(question, {namespace, k_code, k_doc,
// budget_chars, use_llm})).
type Config struct {
	Namespaces   []string // code namespaces to search; empty searches every known namespace once
	DocNamespace string   // documentation namespace, searched separately; empty disables it
	KCode        int
	KDoc         int
	MGraph       int // top code hits to expand with graph_outgoing/graph_incoming
	BudgetChars  int
	UseLLM       bool
	ExcludeRoles []string // unit roles ("test", "generated") to drop from code retrieval
}

// DefaultConfig matches spec §6's stated defaults.
func DefaultConfig() Config {
	return Config{KCode: 10, KDoc: 3, MGraph: 3, BudgetChars: 12000, UseLLM: true}
}

// DocSnippet is one documentation hit in the assembled context.
type DocSnippet struct {
	Title   string
	Excerpt string
	Score   float64
}

// CodeSnippet is one code hit in the assembled context.
type CodeSnippet struct {
	Namespace   string
	FilePath    string
	LineStart   int
	Signature   string
	CodeExcerpt string
	Score       float64
}

// CallEdge is one CALLS edge surfaced for the top hits.
type CallEdge struct {
	Caller string
	Callee string
}

// Context is the LLM prompt contract payload (spec §6).
type Context struct {
	Question            string
	DocSnippets         []DocSnippet
	CodeSnippets        []CodeSnippet
	CallEdges           []CallEdge
	CrossNamespaceEdges []CallEdge
	Truncated           bool
}

// Result is what Run returns: the LLM's answer (if the LLM step ran) and the
// raw context it was given (spec §7: "if the LLM call failed, the context is
// still returned").
type Result struct {
	Answer        string
	AnsweredByLLM bool
	Context       Context
}

// Orchestrator wires a retrieval engine and an LLM provider into the query
// path (C8).
type Orchestrator struct {
	retrieval *retrieval.Engine
	llmProv   llm.Provider
	logger    *slog.Logger
}

// New constructs an Orchestrator. llmProv may be nil; Run then behaves as if
// cfg.UseLLM were false regardless of the caller's setting.
func New(eng *retrieval.Engine, llmProv llm.Provider, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{retrieval: eng, llmProv: llmProv, logger: logger}
}

// Run executes one query: embed -> retrieve -> assemble bounded context ->
// call LLM -> return (spec §4.8). Every step observes ctx; a cancellation
// short-circuits the remaining steps and Run returns whatever context was
// assembled so far alongside ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, question string, cfg Config) (*Result, error) {
	metrics.InitOrchestrator()
	start := time.Now()
	metrics.IncQueries()
	defer func() { metrics.ObserveQuery(time.Since(start).Seconds()) }()

	if cfg.KCode <= 0 {
		cfg.KCode = DefaultConfig().KCode
	}
	if cfg.KDoc <= 0 {
		cfg.KDoc = DefaultConfig().KDoc
	}
	if cfg.MGraph <= 0 {
		cfg.MGraph = DefaultConfig().MGraph
	}
	if cfg.BudgetChars <= 0 {
		cfg.BudgetChars = DefaultConfig().BudgetChars
	}

	result := &Result{Context: Context{Question: question}}

	retrievalStart := time.Now()
	if cfg.DocNamespace != "" {
		hits, err := o.retrieval.VectorSearch(ctx, question, cfg.DocNamespace, cfg.KDoc)
		if err != nil {
			metrics.IncRetrievalErrors()
			o.logger.Warn("orchestrator.retrieval.doc_search.failed", "err", err)
		} else {
			for _, h := range hits {
				result.Context.DocSnippets = append(result.Context.DocSnippets, DocSnippet{
					Title:   h.Payload.Name,
					Excerpt: h.Payload.CodeExcerpt,
					Score:   h.Score,
				})
			}
		}
	}
	if ctx.Err() != nil {
		metrics.ObserveRetrieval(time.Since(retrievalStart).Seconds())
		return result, ctx.Err()
	}

	namespaces := o.resolveNamespaces(ctx, cfg.Namespaces)
	var codeHits []retrieval.Hit
	for _, ns := range namespaces {
		if ctx.Err() != nil {
			break
		}
		hits, err := o.retrieval.VectorSearch(ctx, question, ns, cfg.KCode, cfg.ExcludeRoles...)
		if err != nil {
			metrics.IncRetrievalErrors()
			o.logger.Warn("orchestrator.retrieval.code_search.failed", "namespace", ns, "err", err)
			continue
		}
		codeHits = append(codeHits, hits...)
	}
	sort.Slice(codeHits, func(i, j int) bool { return codeHits[i].Score > codeHits[j].Score })
	metrics.ObserveRetrieval(time.Since(retrievalStart).Seconds())
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	top := codeHits
	if len(top) > cfg.MGraph {
		top = top[:cfg.MGraph]
	}
	seenCaller := make(map[string]bool)
	for _, hit := range top {
		if ctx.Err() != nil {
			break
		}
		outPaths, err := o.retrieval.GraphOutgoing(ctx, hit.Payload.Namespace, hit.OriginalID, retrieval.DefaultMaxDepth)
		if err != nil {
			metrics.IncRetrievalErrors()
			o.logger.Warn("orchestrator.retrieval.graph_outgoing.failed", "id", hit.OriginalID, "err", err)
		} else {
			for _, p := range outPaths {
				for i := 0; i < len(p.Nodes)-1; i++ {
					edge := CallEdge{Caller: p.Nodes[i].ID, Callee: p.Nodes[i+1].ID}
					key := edge.Caller + "->" + edge.Callee
					if !seenCaller[key] {
						seenCaller[key] = true
						result.Context.CallEdges = append(result.Context.CallEdges, edge)
					}
				}
			}
		}
		inNodes, err := o.retrieval.GraphIncoming(ctx, hit.Payload.Namespace, hit.OriginalID)
		if err != nil {
			metrics.IncRetrievalErrors()
			o.logger.Warn("orchestrator.retrieval.graph_incoming.failed", "id", hit.OriginalID, "err", err)
			continue
		}
		for _, n := range inNodes {
			edge := CallEdge{Caller: n.ID, Callee: hit.OriginalID}
			key := edge.Caller + "->" + edge.Callee
			if !seenCaller[key] {
				seenCaller[key] = true
				result.Context.CallEdges = append(result.Context.CallEdges, edge)
			}
		}
	}

	// Cross-namespace CALLS edges: a future-safe hook (spec §4.8 step 4).
	// No component currently derives these at the application layer, so it
	// returns empty rather than querying.
	result.Context.CrossNamespaceEdges = crossNamespaceEdges(ctx, codeHits)

	for _, h := range codeHits {
		result.Context.CodeSnippets = append(result.Context.CodeSnippets, CodeSnippet{
			Namespace:   h.Payload.Namespace,
			FilePath:    h.Payload.FilePath,
			LineStart:   h.Payload.LineStart,
			Signature:   h.Payload.Signature,
			CodeExcerpt: h.Payload.CodeExcerpt,
			Score:       h.Score,
		})
	}

	truncated := applyBudget(&result.Context, cfg.BudgetChars)
	result.Context.Truncated = truncated
	if truncated {
		metrics.IncContextTruncated()
	}

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if !cfg.UseLLM || o.llmProv == nil {
		return result, nil
	}

	llmStart := time.Now()
	answer, err := o.callLLM(ctx, question, result.Context)
	metrics.ObserveLLM(time.Since(llmStart).Seconds())
	if err != nil {
		metrics.IncLLMErrors()
		o.logger.Warn("orchestrator.llm.call.failed", "err", err)
		return result, nil
	}
	result.Answer = answer
	result.AnsweredByLLM = true
	return result, nil
}

// resolveNamespaces turns the caller's requested namespaces into the
// concrete, colon-qualified set to search (spec §4.8 step 2, Part F
// decision 2): empty means search once across every known namespace; an
// unqualified entry (no ":") expands to every namespace sharing its corpus
// prefix; a qualified entry is used as-is.
func (o *Orchestrator) resolveNamespaces(ctx context.Context, requested []string) []string {
	if len(requested) == 0 {
		all, err := o.retrieval.ListNamespaces(ctx)
		if err != nil {
			metrics.IncRetrievalErrors()
			o.logger.Warn("orchestrator.retrieval.list_namespaces.failed", "err", err)
			return nil
		}
		return all
	}
	var resolved []string
	for _, ns := range requested {
		matches, err := o.retrieval.ExpandNamespacePrefix(ctx, ns)
		if err != nil {
			metrics.IncRetrievalErrors()
			o.logger.Warn("orchestrator.retrieval.expand_namespace.failed", "namespace", ns, "err", err)
			continue
		}
		resolved = append(resolved, matches...)
	}
	return resolved
}

// crossNamespaceEdges is a future-safe hook for CALLS edges whose endpoints
// lie in different namespaces, derived at the application layer (e.g. HTTP
// client wrappers). Unimplemented; returns empty.
func crossNamespaceEdges(_ context.Context, _ []retrieval.Hit) []CallEdge {
	return nil
}

// applyBudget keeps code snippets in descending-score order, accumulating
// character length, and drops the remainder (the lowest-scoring tail) once
// budgetChars would be exceeded (spec §4.8/§7). The single highest-scoring
// snippet is always kept so the context is never emptied outright. Reports
// whether anything was dropped.
func applyBudget(c *Context, budgetChars int) bool {
	sort.Slice(c.CodeSnippets, func(i, j int) bool { return c.CodeSnippets[i].Score > c.CodeSnippets[j].Score })

	running := 0
	for _, d := range c.DocSnippets {
		running += len(d.Excerpt)
	}

	kept := make([]CodeSnippet, 0, len(c.CodeSnippets))
	for i, cs := range c.CodeSnippets {
		if i > 0 && running+len(cs.CodeExcerpt) > budgetChars {
			break
		}
		kept = append(kept, cs)
		running += len(cs.CodeExcerpt)
	}
	truncated := len(kept) < len(c.CodeSnippets)
	c.CodeSnippets = kept
	return truncated
}

func (o *Orchestrator) callLLM(ctx context.Context, question string, c Context) (string, error) {
	systemPrompt := "You are a code intelligence assistant. Answer the question in prose, citing documentation and code snippets by their index (e.g. [doc 1], [code 2])."
	userPrompt := renderPrompt(question, c)
	messages := llm.BuildChatMessages(systemPrompt, userPrompt)
	resp, err := o.llmProv.Chat(ctx, llm.ChatRequest{Messages: messages})
	if err != nil {
		return "", fmt.Errorf("orchestrator: llm chat: %w", err)
	}
	return resp.Message.Content, nil
}

func renderPrompt(question string, c Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)

	if len(c.DocSnippets) > 0 {
		b.WriteString("Documentation snippets:\n")
		for i, d := range c.DocSnippets {
			fmt.Fprintf(&b, "[doc %d] %s (score %.3f)\n%s\n\n", i+1, d.Title, d.Score, d.Excerpt)
		}
	}

	if len(c.CodeSnippets) > 0 {
		b.WriteString("Code snippets:\n")
		for i, cs := range c.CodeSnippets {
			fmt.Fprintf(&b, "[code %d] %s: %s:%d (score %.3f)\n%s\n%s\n\n", i+1, cs.Namespace, cs.FilePath, cs.LineStart, cs.Score, cs.Signature, cs.CodeExcerpt)
		}
	}

	if len(c.CallEdges) > 0 {
		b.WriteString("CALLS edges:\n")
		for _, e := range c.CallEdges {
			fmt.Fprintf(&b, "%s -> %s\n", e.Caller, e.Callee)
		}
		b.WriteString("\n")
	}

	if len(c.CrossNamespaceEdges) > 0 {
		b.WriteString("Cross-namespace edges:\n")
		for _, e := range c.CrossNamespaceEdges {
			fmt.Fprintf(&b, "%s -> %s\n", e.Caller, e.Callee)
		}
	}

	return b.String()
}
