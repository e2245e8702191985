package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by namespace kind (shell, metadata, payload)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examcache_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"namespace"},
	)

	// CacheMisses tracks cache misses by namespace kind
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examcache_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"namespace"},
	)

	// Evictions tracks payload entries removed by budget enforcement
	Evictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examcache_evictions_total",
			Help: "Total number of entries evicted by budget enforcement",
		},
	)

	// PayloadBytes tracks the payload namespace size in bytes
	PayloadBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "examcache_payload_bytes",
			Help: "Current size of the payload namespace in bytes",
		},
	)

	// PayloadEntries tracks the payload namespace entry count
	PayloadEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "examcache_payload_entries",
			Help: "Current number of entries in the payload namespace",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examcache_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "open", "get", "put", "delete", "drop", "evict"
	)
)
