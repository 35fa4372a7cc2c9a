package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks probe-cache hits.
	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geoharvest_probe_cache_hits_total",
			Help: "Total number of probe cache hits",
		},
	)

	// cacheMisses tracks probe-cache misses.
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geoharvest_probe_cache_misses_total",
			Help: "Total number of probe cache misses",
		},
	)

	// cacheErrors tracks cache operation errors.
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoharvest_probe_cache_errors_total",
			Help: "Total number of probe cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
