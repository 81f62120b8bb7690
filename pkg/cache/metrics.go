package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup results recorded by Get.
const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultExpired = "expired"
	resultInvalid = "invalid"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_cache_lookups_total",
		Help: "Repository cache reads by result",
	}, []string{"result"}) // hit, miss, expired, invalid

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_cache_errors_total",
		Help: "Redis errors by operation",
	}, []string{"operation"}) // get, set, delete

	entryBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_cache_entry_bytes",
		Help:    "Size of encoded cache entries written",
		Buckets: prometheus.ExponentialBuckets(128, 2, 6),
	})
)
