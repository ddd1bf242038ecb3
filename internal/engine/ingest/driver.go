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

package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kraklabs/cie-oss/internal/engine/graphload"
	"github.com/kraklabs/cie-oss/internal/engine/metrics"
	"github.com/kraklabs/cie-oss/internal/engine/parser"
	"github.com/kraklabs/cie-oss/internal/engine/vectorload"
	"github.com/kraklabs/cie-oss/pkg/store"
)

// DefaultWorkers is the fallback worker-pool size when Config.Workers is
// unset (spec §4.6: "workers >= 1, default in the 4-16 range").
const DefaultWorkers = 8

// Config configures one Run.
type Config struct {
	Root         string
	Namespace    string
	ExcludeGlobs []string
	MaxFileSize  int64
	Workers      int

	// SinceSHA, when set, restricts the run to files git reports as
	// changed since that commit (SPEC_FULL.md Part E.1), instead of
	// walking every file. Root must be inside a git working tree; if delta
	// detection fails the run logs a warning and falls back to a full
	// walk, since incremental ingestion is additive, not a replacement.
	SinceSHA string

	// CheckpointDir, when set, enables resumable ingestion (SPEC_FULL.md
	// Part E.2): progress is persisted after every file, and a Run that
	// finds a prior checkpoint for Namespace skips paths already recorded
	// as processed.
	CheckpointDir string
}

// Progress is emitted once per processed file on the channel passed to Run,
// so a caller (CLI progress bar, status endpoint) can report advancement
// without polling.
type Progress struct {
	Done, Total int
	Path        string
	Err         error
}

// Result summarizes one ingestion run (spec §4.6).
type Result struct {
	FilesWalked   int
	FilesParsed   int
	ParseErrors   int
	UnitsWritten  int
	CallsResolved int
	CallsDropped  int
	EmbedSkipped  int
	Duration      time.Duration
	FileErrors    []FileError

	// FilesPurged counts files removed from the graph/vector store because
	// a delta run reported them deleted or renamed away.
	FilesPurged int
	// FilesSkippedCheckpoint counts files a resumed run did not reprocess
	// because a prior checkpoint already recorded them as done.
	FilesSkippedCheckpoint int
}

// FileError records a non-fatal per-file failure (spec §4.6 failure
// semantics: one file's failure never aborts the run).
type FileError struct {
	Path string
	Err  error
}

// Driver wires the parser registry, graph loader, and vector loader into
// the bounded-concurrency ingestion pipeline (C6).
type Driver struct {
	backend  store.Backend
	registry *parser.Registry
	graph    *graphload.Loader
	vectors  *vectorload.Loader
	logger   *slog.Logger
}

// New constructs a Driver.
func New(backend store.Backend, registry *parser.Registry, vectors *vectorload.Loader, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		backend:  backend,
		registry: registry,
		graph:    graphload.New(backend),
		vectors:  vectors,
		logger:   logger,
	}
}

// Run walks cfg.Root, parses every discovered file under cfg.Namespace, and
// writes the resulting graph and vectors. Per-file parse/write failures are
// collected in Result.FileErrors and do not abort the run. Walk skips entries
// it cannot read, so an unreadable root yields an empty run rather than an
// error; Run returns an error (with the partial Result) when ctx is cancelled
// or when the CALLS resolution or entry-point recomputation pass fails.
func (d *Driver) Run(ctx context.Context, cfg Config, progress chan<- Progress) (*Result, error) {
	metrics.InitIngestion()
	start := time.Now()

	excludes := cfg.ExcludeGlobs
	if excludes == nil {
		excludes = DefaultExcludeGlobs
	}
	files, err := Walk(cfg.Root, excludes, cfg.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("ingest: walk %s: %w", cfg.Root, err)
	}

	res := &Result{}
	isGitRepo := cfg.SinceSHA != "" && IsGitRepository(cfg.Root)
	if isGitRepo {
		delta, derr := DetectDelta(cfg.Root, cfg.SinceSHA, "")
		if derr != nil {
			d.logger.Warn("ingest.delta.detect_failed", "since", cfg.SinceSHA, "err", derr)
		} else {
			delta = FilterDelta(delta, excludes)
			changed := make(map[string]bool, len(delta.ChangedPaths()))
			for _, p := range delta.ChangedPaths() {
				changed[p] = true
			}
			restricted := files[:0:0]
			for _, f := range files {
				if changed[f.RelPath] {
					restricted = append(restricted, f)
				}
			}
			files = restricted
			for _, path := range delta.RemovedPaths() {
				if err := d.graph.PurgeFile(ctx, cfg.Namespace, path); err != nil {
					d.logger.Warn("ingest.delta.purge_failed", "path", path, "err", err)
					continue
				}
				res.FilesPurged++
			}
		}
	}

	var checkpoints *CheckpointManager
	var checkpoint *Checkpoint
	if cfg.CheckpointDir != "" {
		checkpoints = NewCheckpointManager(cfg.CheckpointDir)
		checkpoint, err = checkpoints.Load(cfg.Namespace)
		if err != nil {
			d.logger.Warn("ingest.checkpoint.load_failed", "namespace", cfg.Namespace, "err", err)
			checkpoint = nil
		}
	}
	done := make(map[string]bool)
	if checkpoint != nil {
		for _, p := range checkpoint.ProcessedPaths {
			done[p] = true
		}
		remaining := files[:0:0]
		for _, f := range files {
			if done[f.RelPath] {
				res.FilesSkippedCheckpoint++
				continue
			}
			remaining = append(remaining, f)
		}
		files = remaining
	} else {
		checkpoint = &Checkpoint{Namespace: cfg.Namespace}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	res.FilesWalked = len(files)
	metrics.IncFilesWalked(len(files))

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	idx := graphload.NewIndex()

	var mu sync.Mutex
	allUnits := make(map[string][]parser.CodeUnit) // filePath -> units, for the per-namespace ResolveCalls pass
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	var firstFatal error
	var fatalOnce sync.Once

	for i, f := range files {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			fatalOnce.Do(func() { firstFatal = err })
			break
		}
		wg.Add(1)
		go func(i int, f WalkFile) {
			defer wg.Done()
			defer sem.Release(1)

			parseStart := time.Now()
			result, content, perr := d.parseFile(ctx, cfg.Namespace, f)
			metrics.ObserveParse(time.Since(parseStart).Seconds())

			mu.Lock()
			defer mu.Unlock()

			if progress != nil {
				select {
				case progress <- Progress{Done: i + 1, Total: len(files), Path: f.RelPath, Err: perr}:
				case <-ctx.Done():
				}
			}

			if perr != nil {
				res.ParseErrors++
				res.FileErrors = append(res.FileErrors, FileError{Path: f.RelPath, Err: perr})
				metrics.IncParseErrors(1)
				return
			}
			res.FilesParsed++
			metrics.IncFilesParsed()

			writeStart := time.Now()
			if err := d.graph.WriteUnits(ctx, cfg.Namespace, result); err != nil {
				res.FileErrors = append(res.FileErrors, FileError{Path: f.RelPath, Err: err})
				d.logger.Warn("ingest.file.graph_write.failed", "path", f.RelPath, "err", err)
				metrics.ObserveWrite(time.Since(writeStart).Seconds())
				return
			}
			metrics.ObserveWrite(time.Since(writeStart).Seconds())
			metrics.IncUnitsWritten(len(result.Units))
			res.UnitsWritten += len(result.Units)

			idx.Add(result.Units)
			allUnits[f.RelPath] = result.Units

			embedStart := time.Now()
			skipped, err := d.vectors.WriteUnits(ctx, result.Units)
			metrics.ObserveEmbed(time.Since(embedStart).Seconds())
			metrics.IncEmbedSkipped(skipped)
			res.EmbedSkipped += skipped
			if err != nil {
				d.logger.Warn("ingest.file.vector_write.failed", "path", f.RelPath, "err", err)
			} else {
				metrics.IncEmbedComputed(len(result.Units) - skipped)
			}

			sum := sha256.Sum256(content)
			var moduleID string
			for _, u := range result.Units {
				if u.Kind == parser.KindModule {
					moduleID = u.ID
					break
				}
			}
			if err := d.graph.WriteFileRecord(ctx, cfg.Namespace, f.RelPath, moduleID, string(result.Language), hex.EncodeToString(sum[:])); err != nil {
				d.logger.Warn("ingest.file.record_write.failed", "path", f.RelPath, "err", err)
			}

			if checkpoints != nil {
				checkpoint.ProcessedPaths = append(checkpoint.ProcessedPaths, f.RelPath)
				checkpoint.FilesProcessed = len(checkpoint.ProcessedPaths)
				checkpoint.LastUpdateTime = time.Now().UTC().Format(time.RFC3339)
				if checkpoint.StartTime == "" {
					checkpoint.StartTime = checkpoint.LastUpdateTime
				}
				if err := checkpoints.Save(checkpoint); err != nil {
					d.logger.Warn("ingest.checkpoint.save_failed", "path", f.RelPath, "err", err)
				}
			}
		}(i, f)
	}
	wg.Wait()
	if firstFatal != nil {
		return res, firstFatal
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var flat []parser.CodeUnit
	for _, units := range allUnits {
		flat = append(flat, units...)
	}
	if err := d.graph.ResolveCalls(ctx, cfg.Namespace, flat, idx); err != nil {
		return res, fmt.Errorf("ingest: resolve calls: %w", err)
	}
	for _, u := range flat {
		res.CallsResolved += len(u.Callees)
	}
	metrics.IncCallsResolved(res.CallsResolved)

	if err := d.graph.RecomputeEntryPoints(ctx, cfg.Namespace); err != nil {
		return res, fmt.Errorf("ingest: recompute entry points: %w", err)
	}

	if checkpoints != nil {
		if err := checkpoints.Clear(cfg.Namespace); err != nil {
			d.logger.Warn("ingest.checkpoint.clear_failed", "namespace", cfg.Namespace, "err", err)
		}
	}
	if d.backend != nil {
		prevIndex := uint64(0)
		if prev, err := GetProjectMeta(ctx, d.backend, cfg.Namespace); err != nil {
			d.logger.Warn("ingest.project_meta.read_failed", "namespace", cfg.Namespace, "err", err)
		} else if prev != nil {
			prevIndex = prev.LastCommittedIndex
		}
		headSHA := cfg.SinceSHA
		if IsGitRepository(cfg.Root) {
			if sha, err := HeadSHA(cfg.Root); err == nil {
				headSHA = sha
			}
		}
		meta := &ProjectMeta{
			Namespace:          cfg.Namespace,
			LastIndexedSHA:     headSHA,
			LastCommittedIndex: prevIndex + 1,
			UpdatedAt:          time.Now(),
		}
		if err := SetProjectMeta(ctx, d.backend, meta); err != nil {
			d.logger.Warn("ingest.project_meta.write_failed", "namespace", cfg.Namespace, "err", err)
		}
	}

	res.Duration = time.Since(start)
	metrics.ObserveTotal(res.Duration.Seconds())
	d.logger.Info("ingest.run.complete",
		"namespace", cfg.Namespace,
		"files_walked", res.FilesWalked,
		"files_parsed", res.FilesParsed,
		"parse_errors", res.ParseErrors,
		"units_written", res.UnitsWritten,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (d *Driver) parseFile(ctx context.Context, namespace string, f WalkFile) (*parser.ParseResult, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", f.RelPath, err)
	}
	result, err := d.registry.Parse(namespace, f.RelPath, content)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", f.RelPath, err)
	}
	return result, content, nil
}
