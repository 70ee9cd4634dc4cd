package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by tier
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchfetch_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"tier"}, // "store", "file"
	)

	// CacheMisses tracks lookups that missed every consulted tier
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batchfetch_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheWrites tracks writes and backfills by tier
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchfetch_cache_writes_total",
			Help: "Total number of cache writes",
		},
		[]string{"tier"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchfetch_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "load", "save", "clear", "file_read", "file_write", "decode"
	)

	// SlotEntries tracks the number of entries held by each loaded slot
	SlotEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batchfetch_cache_slot_entries",
			Help: "Current number of entries in a loaded cache slot",
		},
		[]string{"slot"},
	)
)
