// Package metrics wraps the Prometheus client used to instrument the
// worker fleet: package-level collectors registered once, cheap
// package-level helper functions at call sites.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ScansClaimed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wowminimaps_scans_claimed_total",
		Help: "Scans claimed by this worker, by terminal state.",
	}, []string{"state"})

	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wowminimaps_scan_duration_seconds",
		Help:    "Wall-clock duration of a completed scan.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	TilesMaterialized = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wowminimaps_tiles_materialized_total",
		Help: "Base-level tiles fetched, decoded, and re-encoded by C4.",
	})

	LODTilesSynthesized = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wowminimaps_lod_tiles_synthesized_total",
		Help: "Synthetic LOD tiles composited by C5.",
	})

	TileQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wowminimaps_tile_queue_depth",
		Help: "Current depth of the bounded tile-write queue.",
	})

	RateLimiterWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wowminimaps_ratelimiter_wait_seconds",
		Help:    "Time spent waiting for a rate-limiter token before a resolver fetch.",
		Buckets: prometheus.DefBuckets,
	})
)

// Register registers every collector with reg. Called once from cmd/
// entrypoints; tests that exercise metrics-emitting code paths use a
// fresh prometheus.NewRegistry() so repeated test runs don't collide on
// the default global registry.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		ScansClaimed, ScanDuration, TilesMaterialized, LODTilesSynthesized,
		TileQueueDepth, RateLimiterWaitSeconds,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
