// Package metrics holds the Prometheus collectors for ingest, the enrichment
// worker and reconciliation. Commands are short-lived, so collectors are
// exported to a node_exporter textfile at exit rather than served.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ListingsIngested counts ProcessListing outcomes: queued, existing, promoted, unprocessable.
	ListingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propenrich_listings_ingested_total",
			Help: "Listings passed through ingest, by outcome",
		},
		[]string{"outcome"},
	)

	// WorkerBatches counts worker runs by result: ran, or the skip reason.
	WorkerBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propenrich_worker_batches_total",
			Help: "Worker batch runs, by result",
		},
		[]string{"result"},
	)

	// EnrichmentOutcomes counts per-address worker outcomes.
	EnrichmentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propenrich_enrichment_outcomes_total",
			Help: "Addresses processed by the worker, by resulting status and reason",
		},
		[]string{"status", "reason"},
	)

	LookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "propenrich_lookup_duration_seconds",
			Help:    "Duration of owner lookup API calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LookupRequests counts lookup calls by result: success, failure, rejected.
	LookupRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propenrich_lookup_requests_total",
			Help: "Owner lookup API calls, by result",
		},
		[]string{"result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "propenrich_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// ReconcileChanges counts rows changed (or that would change in a dry run)
	// by operation: backfill, repair_update, repair_insert, orphan_delete, reset, rehash.
	ReconcileChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propenrich_reconcile_changes_total",
			Help: "Rows changed by reconciliation, by operation and mode",
		},
		[]string{"operation", "mode"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "propenrich_queue_rows",
			Help: "Enrichment state rows by status, as of the last stats run",
		},
		[]string{"status"},
	)
)

// RecordLookup records one lookup call.
func RecordLookup(result string, d time.Duration) {
	LookupRequests.WithLabelValues(result).Inc()
	LookupDuration.Observe(d.Seconds())
}

// Mode returns the mode label for a dry-run flag.
func Mode(live bool) string {
	if live {
		return "live"
	}
	return "dry_run"
}

// WriteTextfile writes every registered collector to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
