// Package metrics exposes the Prometheus registry shared by batch-fetcher.
// Metrics are defined with promauto in the packages that own them (fetch,
// cache, server); this package serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every batch-fetcher metric is registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Scheduling (pkg/fetch):
//   - batchfetch_fetches_total{status} (Counter): Network fetches by success/failed
//   - batchfetch_fetch_duration_seconds (Histogram): Network fetch latency
//   - batchfetch_fetched_bytes_total (Counter): Response bytes received
//   - batchfetch_inflight (Gauge): Tasks holding a governor slot
//   - batchfetch_queue_depth (Gauge): Tasks waiting in the global queue
//   - batchfetch_batches_total{result} (Counter): Finished batches by succeeded/failed/aborted
//   - batchfetch_queue_anomalies_total (Counter): Queue/batch bookkeeping drift
//
// Cache (pkg/cache):
//   - batchfetch_cache_hits_total{tier} (Counter): Hits by store/file
//   - batchfetch_cache_misses_total (Counter): Lookups that fell through to the network
//   - batchfetch_cache_writes_total{tier} (Counter): Write-backs and backfills by tier
//   - batchfetch_cache_errors_total{operation} (Counter): Cache operation errors
//   - batchfetch_cache_slot_entries{slot} (Gauge): Entries held per slot
//
// HTTP API (pkg/server):
//   - batchfetch_http_requests_total{route, code} (Counter): API requests
//
// Example Prometheus Queries:
//
//   # Cache hit rate
//   sum(rate(batchfetch_cache_hits_total[5m])) /
//   (sum(rate(batchfetch_cache_hits_total[5m])) + sum(rate(batchfetch_cache_misses_total[5m])))
//
//   # Saturation of the governor
//   batchfetch_inflight
//
//   # Failed batch ratio
//   rate(batchfetch_batches_total{result="failed"}[15m]) / rate(batchfetch_batches_total[15m])
//
//   # P95 fetch latency
//   histogram_quantile(0.95, rate(batchfetch_fetch_duration_seconds_bucket[5m]))
