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

// Package metrics exposes Prometheus instrumentation for the ingestion
// driver (C6) and query orchestrator (C8).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type ingestionMetrics struct {
	once sync.Once

	filesWalked    prometheus.Counter
	filesParsed    prometheus.Counter
	parseErrors    prometheus.Counter
	unitsWritten   prometheus.Counter
	callsResolved  prometheus.Counter
	callsDropped   prometheus.Counter
	embedComputed  prometheus.Counter
	embedSkipped   prometheus.Counter
	embedRetries   prometheus.Counter

	parseDuration  prometheus.Histogram
	embedDuration  prometheus.Histogram
	writeDuration  prometheus.Histogram
	totalDuration  prometheus.Histogram
}

type orchestratorMetrics struct {
	once sync.Once

	queriesTotal    prometheus.Counter
	retrievalErrors prometheus.Counter
	llmErrors       prometheus.Counter
	contextTruncated prometheus.Counter

	retrievalDuration prometheus.Histogram
	llmDuration       prometheus.Histogram
	queryDuration     prometheus.Histogram
}

var (
	ing ingestionMetrics
	orc orchestratorMetrics
)

var buckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// InitIngestion registers the ingestion-stage collectors. Idempotent.
func InitIngestion() {
	ing.once.Do(func() {
		ing.filesWalked = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_ing_files_walked_total", Help: "Archivos descubiertos durante el recorrido del árbol"})
		ing.filesParsed = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_ing_files_parsed_total", Help: "Archivos parseados correctamente"})
		ing.parseErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_ing_parse_errors_total", Help: "Errores de parseo por archivo"})
		ing.unitsWritten = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_ing_units_written_total", Help: "CodeUnits escritos en el grafo"})
		ing.callsResolved = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_ing_calls_resolved_total", Help: "Aristas CALLS resueltas"})
		ing.callsDropped = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_ing_calls_dropped_total", Help: "Llamadas sin resolver (externas o stdlib)"})
		ing.embedComputed = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_ing_embeddings_computed_total", Help: "Embeddings calculados"})
		ing.embedSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_ing_embeddings_skipped_total", Help: "Unidades omitidas de vectorización"})
		ing.embedRetries = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_ing_embeddings_retries_total", Help: "Reintentos del proveedor de embeddings"})

		ing.parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "cie_ing_parse_seconds", Help: "Duración de parseo por archivo", Buckets: buckets})
		ing.embedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "cie_ing_embed_seconds", Help: "Duración de vectorización por lote", Buckets: buckets})
		ing.writeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "cie_ing_write_seconds", Help: "Duración de escritura en el grafo", Buckets: buckets})
		ing.totalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "cie_ing_total_seconds", Help: "Duración total de una ejecución de ingestión", Buckets: buckets})

		prometheus.MustRegister(
			ing.filesWalked, ing.filesParsed, ing.parseErrors, ing.unitsWritten,
			ing.callsResolved, ing.callsDropped,
			ing.embedComputed, ing.embedSkipped, ing.embedRetries,
			ing.parseDuration, ing.embedDuration, ing.writeDuration, ing.totalDuration,
		)
	})
}

// InitOrchestrator registers the query-orchestration collectors. Idempotent.
func InitOrchestrator() {
	orc.once.Do(func() {
		orc.queriesTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_qry_queries_total", Help: "Consultas procesadas"})
		orc.retrievalErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_qry_retrieval_errors_total", Help: "Errores durante la recuperación"})
		orc.llmErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_qry_llm_errors_total", Help: "Errores del proveedor LLM"})
		orc.contextTruncated = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_qry_context_truncated_total", Help: "Consultas cuyo contexto fue recortado por presupuesto"})

		orc.retrievalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "cie_qry_retrieval_seconds", Help: "Duración de la fase de recuperación", Buckets: buckets})
		orc.llmDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "cie_qry_llm_seconds", Help: "Duración de la llamada al LLM", Buckets: buckets})
		orc.queryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "cie_qry_total_seconds", Help: "Duración total de una consulta", Buckets: buckets})

		prometheus.MustRegister(
			orc.queriesTotal, orc.retrievalErrors, orc.llmErrors, orc.contextTruncated,
			orc.retrievalDuration, orc.llmDuration, orc.queryDuration,
		)
	})
}

func IncFilesWalked(n int)   { ing.filesWalked.Add(float64(n)) }
func IncFilesParsed()        { ing.filesParsed.Inc() }
func IncParseErrors(n int)   { ing.parseErrors.Add(float64(n)) }
func IncUnitsWritten(n int)  { ing.unitsWritten.Add(float64(n)) }
func IncCallsResolved(n int) { ing.callsResolved.Add(float64(n)) }
func IncCallsDropped(n int)  { ing.callsDropped.Add(float64(n)) }
func IncEmbedComputed(n int) { ing.embedComputed.Add(float64(n)) }
func IncEmbedSkipped(n int)  { ing.embedSkipped.Add(float64(n)) }
func IncEmbedRetries()       { ing.embedRetries.Inc() }

func ObserveParse(seconds float64) { ing.parseDuration.Observe(seconds) }
func ObserveEmbed(seconds float64) { ing.embedDuration.Observe(seconds) }
func ObserveWrite(seconds float64) { ing.writeDuration.Observe(seconds) }
func ObserveTotal(seconds float64) { ing.totalDuration.Observe(seconds) }

func IncQueries()           { orc.queriesTotal.Inc() }
func IncRetrievalErrors()   { orc.retrievalErrors.Inc() }
func IncLLMErrors()         { orc.llmErrors.Inc() }
func IncContextTruncated()  { orc.contextTruncated.Inc() }

func ObserveRetrieval(seconds float64) { orc.retrievalDuration.Observe(seconds) }
func ObserveLLM(seconds float64)       { orc.llmDuration.Observe(seconds) }
func ObserveQuery(seconds float64)     { orc.queryDuration.Observe(seconds) }
