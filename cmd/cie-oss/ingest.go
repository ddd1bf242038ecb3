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
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie-oss/internal/contract"
	"github.com/kraklabs/cie-oss/internal/engine/ingest"
	"github.com/kraklabs/cie-oss/internal/engine/parser"
	"github.com/kraklabs/cie-oss/internal/engine/schema"
	"github.com/kraklabs/cie-oss/internal/engine/vectorload"
	cieerrors "github.com/kraklabs/cie-oss/internal/errors"
	"github.com/kraklabs/cie-oss/internal/ui"
)

// runIngest executes the ingestion driver (C6) over the current repository.
//
// Flags:
//   - --root: repository root to walk (default: current directory)
//   - --workers: worker pool size (default: ingest.DefaultWorkers)
//   - --debug: enable debug logging
//   - --metrics-addr: HTTP address for Prometheus metrics (empty to disable)
//   - --incremental: reindex only files changed since the namespace's last run
//   - --since: reindex only files changed since an explicit git ref
//   - --checkpoint-dir: persist resumable progress under this directory
func runIngest(args []string, configPath string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	root := fs.String("root", "", "Repository root to index (default: current directory)")
	workers := fs.Int("workers", ingest.DefaultWorkers, "Number of parallel ingestion workers")
	debug := fs.Bool("debug", false, "Enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	jsonOutput := fs.Bool("json", false, "Output the result summary as JSON")
	incremental := fs.Bool("incremental", false, "Only reindex files changed since the namespace's last recorded commit")
	since := fs.String("since", "", "Only reindex files changed since this git commit/ref (implies --incremental)")
	checkpointDir := fs.String("checkpoint-dir", "", "Directory for resumable-run checkpoints (empty disables checkpointing)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie-oss ingest [options]

Walks the repository, parses every supported source file, and writes the
resulting code graph and embeddings to the local database.

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

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("ingest.shutdown.signal", "signal", sig.String())
		cancel()
	}()

	repoRoot := *root
	if repoRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			cieerrors.FatalError(cieerrors.NewInternalError("cannot determine current directory", err.Error(), "", err), *jsonOutput)
		}
		repoRoot = cwd
	}

	backend, err := openBackend(cfg, false)
	if err != nil {
		cieerrors.FatalError(err, *jsonOutput)
	}
	defer backend.Close()

	if err := schema.EnsureSchema(ctx, backend); err != nil {
		cieerrors.FatalError(cieerrors.NewDatabaseError("cannot initialize schema", err.Error(), "", err), *jsonOutput)
	}

	embedProv, err := embeddingProvider(cfg, logger)
	if err != nil {
		cieerrors.FatalError(err, *jsonOutput)
	}
	if err := schema.EnsureVectorIndex(ctx, backend, embedProv.Dimension()); err != nil {
		logger.Warn("ingest.hnsw.init.failed", "err", err)
	}

	registry := parser.NewRegistry()
	vectors := vectorload.New(backend, embedProv)
	driver := ingest.New(backend, registry, vectors, logger)

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = cfg.ProjectID
	}

	quiet := *jsonOutput || *debug
	var bar *progressbar.ProgressBar
	progressCh := make(chan ingest.Progress, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progressCh {
			if !quiet {
				if bar == nil && p.Total > 0 {
					bar = newIngestProgressBar(p.Total)
				}
				if bar != nil {
					_ = bar.Add(1)
				}
			}
			if p.Err != nil {
				logger.Warn("ingest.file.failed", "path", p.Path, "err", p.Err)
			}
		}
	}()

	maxFileSize := cfg.Indexing.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = int64(contract.SoftLimitBytes())
	}

	sinceSHA := *since
	if sinceSHA == "" && *incremental {
		if meta, merr := ingest.GetProjectMeta(ctx, backend, namespace); merr != nil {
			logger.Warn("ingest.incremental.meta_lookup_failed", "err", merr)
		} else if meta != nil {
			sinceSHA = meta.LastIndexedSHA
		}
		if sinceSHA == "" {
			logger.Info("ingest.incremental.no_prior_run", "namespace", namespace)
		}
	}

	result, err := driver.Run(ctx, ingest.Config{
		Root:          repoRoot,
		Namespace:     namespace,
		ExcludeGlobs:  append(append([]string{}, ingest.DefaultExcludeGlobs...), cfg.Indexing.Exclude...),
		MaxFileSize:   maxFileSize,
		Workers:       *workers,
		SinceSHA:      sinceSHA,
		CheckpointDir: *checkpointDir,
	}, progressCh)
	close(progressCh)
	<-done
	if bar != nil {
		_ = bar.Finish()
	}

	if err != nil {
		cieerrors.FatalError(cieerrors.NewInternalError("ingestion failed", err.Error(), "", err), *jsonOutput)
	}

	if *jsonOutput {
		printIngestJSON(result)
	} else {
		printIngestResult(result)
	}
}

func newIngestProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("indexing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
	)
}

func printIngestResult(r *ingest.Result) {
	fmt.Println()
	ui.Header("Ingestion Complete")
	fmt.Printf("Files Walked:    %d\n", r.FilesWalked)
	fmt.Printf("Files Parsed:    %d\n", r.FilesParsed)
	fmt.Printf("Parse Errors:    %d\n", r.ParseErrors)
	fmt.Printf("Units Written:   %d\n", r.UnitsWritten)
	fmt.Printf("Calls Resolved:  %d\n", r.CallsResolved)
	fmt.Printf("Embeds Skipped:  %d\n", r.EmbedSkipped)
	fmt.Printf("Duration:        %s\n", r.Duration)
	if r.FilesPurged > 0 {
		fmt.Printf("Files Purged:    %d\n", r.FilesPurged)
	}
	if r.FilesSkippedCheckpoint > 0 {
		fmt.Printf("Skipped (ckpt):  %d\n", r.FilesSkippedCheckpoint)
	}
	if len(r.FileErrors) > 0 {
		fmt.Println("\nFile Errors:")
		for _, fe := range r.FileErrors {
			fmt.Printf("  %s: %v\n", fe.Path, fe.Err)
		}
	}
}

func printIngestJSON(r *ingest.Result) {
	type fileErrorJSON struct {
		Path string `json:"path"`
		Err  string `json:"error"`
	}
	fileErrs := make([]fileErrorJSON, len(r.FileErrors))
	for i, fe := range r.FileErrors {
		fileErrs[i] = fileErrorJSON{Path: fe.Path, Err: fe.Err.Error()}
	}
	writeJSON(map[string]any{
		"files_walked":             r.FilesWalked,
		"files_parsed":             r.FilesParsed,
		"parse_errors":             r.ParseErrors,
		"units_written":            r.UnitsWritten,
		"calls_resolved":           r.CallsResolved,
		"embed_skipped":            r.EmbedSkipped,
		"duration_ms":              r.Duration.Milliseconds(),
		"file_errors":              fileErrs,
		"files_purged":             r.FilesPurged,
		"files_skipped_checkpoint": r.FilesSkippedCheckpoint,
	})
}
