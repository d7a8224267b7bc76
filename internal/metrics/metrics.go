// Package metrics holds the Prometheus counters tabula maintains.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Evaluation results.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultCircular = "circular"
)

var (
	FormulaEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_formula_evaluations_total",
			Help: "Number of formula evaluations, by kind (row, summary) and result.",
		},
		[]string{"kind", "result"},
	)
	SchemaChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_schema_changes_total",
			Help: "Number of successful schema mutations, by operation.",
		},
		[]string{"op"},
	)
	StorageDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_storage_degraded_total",
			Help: "Schema-evolution operations the storage engine could not perform and that were tolerated.",
		},
		[]string{"op"},
	)
	RowMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_row_mutations_total",
			Help: "Number of row inserts, updates and deletes.",
		},
		[]string{"op"},
	)
)

// WriteTextfile writes the default registry in the Prometheus text format,
// for pickup by a node-exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}
