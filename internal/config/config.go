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

// Package config loads and saves the per-project YAML configuration read by
// the CLI (spec §6's driver CLI/API): project id, default namespace prefix,
// embedding/LLM provider settings, and indexing excludes.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EmbeddingConfig configures the embedding client (C3).
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "ollama", "openai", or "mock"
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// LLMConfig configures the query orchestrator's optional LLM step (C8).
type LLMConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Provider  string `yaml:"provider,omitempty"` // "ollama", "openai", "anthropic", or "mock"
	BaseURL   string `yaml:"base_url,omitempty"`
	Model     string `yaml:"model,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
}

// IndexingConfig configures the ingestion driver (C6).
type IndexingConfig struct {
	BatchTarget int      `yaml:"batch_target,omitempty"` // workers per Config.Workers
	MaxFileSize int64    `yaml:"max_file_size,omitempty"`
	Exclude     []string `yaml:"exclude,omitempty"`
}

// Config is the on-disk project configuration (`.cie-oss/project.yaml`).
type Config struct {
	ProjectID string `yaml:"project_id"`
	Namespace string `yaml:"namespace"` // default namespace prefix for ingest/query

	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Indexing  IndexingConfig  `yaml:"indexing"`
}

const (
	configDirName  = ".cie-oss"
	configFileName = "project.yaml"
)

// ConfigDir returns the project's config directory under cwd.
func ConfigDir(cwd string) string {
	return filepath.Join(cwd, configDirName)
}

// ConfigPath returns the project's config file path under cwd.
func ConfigPath(cwd string) string {
	return filepath.Join(ConfigDir(cwd), configFileName)
}

// DefaultConfig returns a Config with the defaults a fresh project starts
// with: mock embedding (always works offline) and LLM disabled.
func DefaultConfig(projectID string) *Config {
	return &Config{
		ProjectID: projectID,
		Namespace: projectID,
		Embedding: EmbeddingConfig{Provider: "mock"},
		LLM:       LLMConfig{Enabled: false, Provider: "mock"},
		Indexing:  IndexingConfig{BatchTarget: 8, MaxFileSize: 2 << 20},
	}
}

// Load reads and parses the config file at path. Environment variables
// override file values for secrets, matching the embedding/LLM provider
// constructors' own os.Getenv fallback convention.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Save writes cfg to path as YAML, creating the parent directory if needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("config: create dir for %s: %w", path, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CIE_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("CIE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if cfg.Embedding.APIKey == "" {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Embedding.Provider == "openai" {
			cfg.Embedding.APIKey = v
		}
	}
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}
