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

// Package testing provides shared test helpers for the engine and storage
// packages: an in-memory backend with schema already applied, plus thin
// seeding/query helpers for the graph relations (spec §3) so package tests
// don't each hand-roll CozoScript literals.
//
// # Quick Start
//
//	func TestMyFeature(t *testing.T) {
//	    backend := testing.SetupTestBackend(t)
//	    testing.InsertTestUnit(t, backend, "svc:code", "fn1", "DoThing", "function", "x.go", 10, 20)
//	    result := testing.QueryUnits(t, backend, "svc:code")
//	    require.Len(t, result.Rows, 1)
//	}
package testing
