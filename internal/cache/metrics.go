package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anacache_cache_reads_total",
		Help: "Value reads by observed state",
	}, []string{"state"})

	cacheInvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anacache_cache_invalidations_total",
		Help: "Invalidations by reason",
	}, []string{"reason"})

	cacheFlushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anacache_cache_flushes_total",
		Help: "Number of slots moved to FLUSHED",
	})

	cacheCommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anacache_cache_commits_total",
		Help: "Writable copy commits by result",
	}, []string{"result"})

	cacheReplacementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anacache_cache_replacements_total",
		Help: "Entries replaced after a modification stamp mismatch",
	})

	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "anacache_cache_entries",
		Help: "Entries held by all stores",
	})
)

// readCounters avoids a label lookup on every read.
var readCounters [len(stateNames)]prometheus.Counter

func init() {
	for i, name := range stateNames {
		readCounters[i] = cacheReadsTotal.WithLabelValues(name)
	}
}

func observeRead(s State) {
	if int(s) < len(readCounters) {
		readCounters[s].Inc()
	}
}
