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

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, configDirName, configFileName)

	cfg := DefaultConfig("myproject")
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.Model = "nomic-embed-text"
	cfg.LLM.Enabled = true
	cfg.LLM.Provider = "openai"
	cfg.LLM.Model = "gpt-4o-mini"

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "myproject", loaded.ProjectID)
	assert.Equal(t, "ollama", loaded.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", loaded.Embedding.Model)
	assert.True(t, loaded.LLM.Enabled)
	assert.Equal(t, "gpt-4o-mini", loaded.LLM.Model)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnvOverrides_PrefersExplicitCIEVarsOverProviderSpecific(t *testing.T) {
	t.Setenv("CIE_LLM_API_KEY", "explicit-key")
	t.Setenv("OPENAI_API_KEY", "openai-key")

	cfg := DefaultConfig("p")
	cfg.LLM.Provider = "openai"
	applyEnvOverrides(cfg)

	assert.Equal(t, "explicit-key", cfg.LLM.APIKey)
}

func TestApplyEnvOverrides_FallsBackToProviderSpecificVar(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")

	cfg := DefaultConfig("p")
	cfg.LLM.Provider = "anthropic"
	applyEnvOverrides(cfg)

	assert.Equal(t, "anthropic-key", cfg.LLM.APIKey)
}

func TestDefaultConfig_UsesMockProvidersOffline(t *testing.T) {
	cfg := DefaultConfig("p")
	assert.Equal(t, "mock", cfg.Embedding.Provider)
	assert.False(t, cfg.LLM.Enabled)
}

func TestConfigPath_NestsUnderConfigDir(t *testing.T) {
	path := ConfigPath("/tmp/project")
	assert.Equal(t, filepath.Join("/tmp/project", ".cie-oss", "project.yaml"), path)
}
