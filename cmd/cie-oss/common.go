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
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kraklabs/cie-oss/internal/config"
	"github.com/kraklabs/cie-oss/internal/engine/embedding"
	"github.com/kraklabs/cie-oss/internal/engine/schema"
	cieerrors "github.com/kraklabs/cie-oss/internal/errors"
	"github.com/kraklabs/cie-oss/internal/output"
	"github.com/kraklabs/cie-oss/pkg/store"
)

// writeJSON encodes v as indented JSON to stdout, the standard format for
// every --json command mode.
func writeJSON(v any) {
	if err := output.JSON(v); err != nil {
		output.JSONError(err)
	}
}

// loadProjectConfig resolves configPath (defaulting to ./.cie-oss/project.yaml
// under the current directory) and loads it, surfacing a structured
// ExitConfig error if the project has not been initialized yet.
func loadProjectConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, cieerrors.NewInternalError("cannot determine current directory", err.Error(), "retry from a directory you have access to", err)
		}
		configPath = config.ConfigPath(cwd)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, cieerrors.NewConfigError(
			"no project configuration found",
			fmt.Sprintf("could not read %s", configPath),
			"run 'cie-oss init' first",
			err,
		)
	}
	return cfg, nil
}

// dataDir returns the embedded store's data directory for a project.
func dataDir(projectID string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cie-oss", "data", projectID), nil
}

// openBackend opens (and, if mustExist is false, creates) the embedded
// store backing cfg's project, returning a structured ExitDatabase error on
// failure.
func openBackend(cfg *config.Config, mustExist bool) (store.Backend, error) {
	dir, err := dataDir(cfg.ProjectID)
	if err != nil {
		return nil, cieerrors.NewInternalError("cannot determine data directory", err.Error(), "", err)
	}
	if mustExist {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, cieerrors.NewNotFoundError(
				fmt.Sprintf("project %q has not been indexed yet", cfg.ProjectID),
				fmt.Sprintf("%s does not exist", dir),
				"run 'cie-oss ingest' first",
			)
		}
	}
	backend, err := store.Open(store.Config{DataDir: dir, ProjectID: cfg.ProjectID})
	if err != nil {
		return nil, cieerrors.NewDatabaseError(
			"cannot open the local database",
			err.Error(),
			"check that no other cie-oss process is using this project, or run 'cie-oss purge --yes'",
			err,
		)
	}
	return backend, nil
}

// embeddingProvider builds the embedding.Provider configured in cfg,
// wrapped in the content-addressed cache (spec §4.3).
func embeddingProvider(cfg *config.Config, logger *slog.Logger) (embedding.Provider, error) {
	prov, err := embedding.New(cfg.Embedding.Provider, cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.APIKey, schema.EmbeddingDim, logger)
	if err != nil {
		return nil, cieerrors.NewConfigError(
			"cannot construct embedding provider",
			err.Error(),
			fmt.Sprintf("check the embedding.provider setting (%q) in project.yaml", cfg.Embedding.Provider),
			err,
		)
	}
	return embedding.NewCachedProvider(prov), nil
}
