// Package metrics provides the Prometheus handler for the
// archive cache. All metrics are defined in their respective packages
// (client, cache, warmup) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves every metric registered with the default Prometheus
// registerer (promauto) in the text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - examcache_requests_total{class, source} (Counter): Intercepted requests by asset class
//     (shell, metadata, payload, unhandled) and source (cache, network, offline, passthrough)
//   - examcache_request_duration_seconds{class} (Histogram): Request duration by asset class
//   - examcache_network_errors_total{class, error_class} (Counter): Failed origin fetches by
//     error class (client, server, timeout, network)
//
// Cache Metrics (pkg/cache):
//   - examcache_cache_hits_total{namespace} (Counter): Cache hits by namespace kind
//   - examcache_cache_misses_total{namespace} (Counter): Cache misses by namespace kind
//   - examcache_evictions_total (Counter): Payload entries evicted by budget enforcement
//   - examcache_payload_bytes (Gauge): Current payload namespace size in bytes
//   - examcache_payload_entries (Gauge): Current payload namespace entry count
//   - examcache_cache_errors_total{operation} (Counter): Swallowed cache operation errors
//
// Warm-up Metrics (pkg/warmup):
//   - examcache_warmup_fetches_total{result} (Counter): Shell manifest fetches by result (ok, failed)
//
// Example Prometheus Queries:
//
//   # Payload Hit Rate
//   sum(rate(examcache_cache_hits_total{namespace="payload"}[5m])) /
//   (sum(rate(examcache_cache_hits_total{namespace="payload"}[5m])) +
//    sum(rate(examcache_cache_misses_total{namespace="payload"}[5m])))
//
//   # Offline Metadata Responses
//   rate(examcache_requests_total{class="metadata", source="offline"}[5m])
//
//   # Budget Headroom
//   examcache_payload_bytes / (200 * 1024 * 1024)
//
//   # P95 Metadata Latency
//   histogram_quantile(0.95, rate(examcache_request_duration_seconds_bucket{class="metadata"}[5m]))
