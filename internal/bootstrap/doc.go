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

// Package bootstrap discovers locally-indexed cie-oss projects.
//
// Project creation and opening go through internal/config and pkg/store
// directly (see cmd/cie-oss's loadProjectConfig/openBackend); this package
// only answers "what projects already have data on this machine", backing
// the 'cie-oss projects' command.
//
//	root, _ := bootstrap.DefaultDataRoot()
//	projects, err := bootstrap.ListProjects(root)
//	for _, id := range projects {
//	    fmt.Println(id)
//	}
package bootstrap
