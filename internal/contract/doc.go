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

// Package contract provides validation constants and utilities shared by
// the ingestion driver (C6) and query orchestrator (C8).
//
// # Size Limits
//
// Ingestion enforces a soft per-file size limit to prevent a single huge
// file from dominating a worker, and the query path rejects questions
// beyond a fixed length before they ever reach the embedding client:
//
//	// Default per-file limit is 64 MiB
//	limit := contract.SoftLimitBytes()
//
//	// Validate a question before embedding it
//	result := contract.ValidateQuestion(question)
//	if !result.OK {
//	    log.Printf("Validation failed: %s", result.Message)
//	}
//
// # Configuration via Environment
//
// The soft limit can be adjusted via the CIE_SOFT_LIMIT_BYTES environment
// variable. This is useful for environments with limited memory or when
// indexing repositories with unusually large generated files:
//
//	export CIE_SOFT_LIMIT_BYTES=33554432  # 32 MiB
//
// If the environment variable is not set or invalid, the default limit
// of 64 MiB (DefaultSoftLimitBytes) is used.
//
// # Constants
//
// The package exports these constants:
//
//   - DefaultSoftLimitBytes: Baseline per-file soft limit (64 MiB)
//   - QuestionMaxBytes: Maximum length for a query question (4096 bytes)
package contract
