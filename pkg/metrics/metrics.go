// Package metrics documents the Prometheus metrics exposed by the
// ingestion pipeline. Metrics are defined in their owning packages via
// promauto to keep registration next to the code that updates them; this
// package is the single reference for what exists.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the registerer all pipeline metrics attach to.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - geoharvest_requests_total{host, status} (Counter): Requests by host and HTTP status
//   - geoharvest_request_duration_seconds{host} (Histogram): Request duration by host
//   - geoharvest_errors_total{class} (Counter): Failures by taxonomy class
//   - geoharvest_retries_total{class} (Counter): Retry attempts by error class
//   - geoharvest_retry_exhausted_total{class} (Counter): Requests that exhausted retries
//
// Backpressure Metrics (pkg/backpressure):
//   - geoharvest_backpressure_waits_total{host} (Counter): Requests delayed by penalty windows
//   - geoharvest_backpressure_wait_seconds (Histogram): Penalty wait durations
//
// Probe Cache Metrics (pkg/cache):
//   - geoharvest_probe_cache_hits_total (Counter): Probe metadata served from cache
//   - geoharvest_probe_cache_misses_total (Counter): Probe metadata fetched fresh
//   - geoharvest_probe_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pagination Metrics (pkg/pagination):
//   - geoharvest_strategy_selected_total{strategy} (Counter): Strategy selections, fallbacks included
//   - geoharvest_batches_total{strategy, outcome} (Counter): Batches by strategy and outcome
//   - geoharvest_identifiers_discovered_total{source} (Counter): Unique identifiers discovered
//
// Validation Metrics (pkg/sr, pkg/geometry):
//   - geoharvest_sr_validations_total{outcome} (Counter): SR validation outcomes per batch
//   - geoharvest_geometry_discarded_total{type} (Counter): Records dropped by reconciliation
//
// Run Metrics (pkg/ingest):
//   - geoharvest_sources_total{outcome} (Counter): Sources by run outcome
//   - geoharvest_source_duration_seconds{source} (Histogram): Wall time per source
//   - geoharvest_records_accepted_total{source} (Counter): Records delivered to the sink
//   - geoharvest_records_rejected_total{source, reason} (Counter): Records rejected
//
// Example Prometheus Queries:
//
//   # Batch failure rate
//   sum(rate(geoharvest_batches_total{outcome="failed"}[5m])) /
//   sum(rate(geoharvest_batches_total[5m]))
//
//   # P95 request latency per host
//   histogram_quantile(0.95, rate(geoharvest_request_duration_seconds_bucket[5m]))
//
//   # Rejection breakdown
//   sum by (reason) (rate(geoharvest_records_rejected_total[15m]))
//
//   # Probe cache hit rate
//   sum(rate(geoharvest_probe_cache_hits_total[5m])) /
//   (sum(rate(geoharvest_probe_cache_hits_total[5m])) + sum(rate(geoharvest_probe_cache_misses_total[5m])))
