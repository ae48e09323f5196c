package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	sourceCache          = "cache"
	sourceNetwork        = "network"
	sourceCachedFallback = "cached_fallback"
	sourceLocalFallback  = "local_fallback"
	sourceRemoteFallback = "remote_fallback"
	sourceNone           = "none"
)

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "placement_engine_resolutions_total",
		Help: "Placement resolutions by kind, serving source and outcome",
	}, []string{"kind", "source", "outcome"})

	resolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "placement_engine_resolution_duration_seconds",
		Help:    "Time to resolve a placement",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"kind"})

	fallbackRungsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "placement_engine_fallback_rungs_total",
		Help: "Fallback rungs attempted, by rung and result",
	}, []string{"rung", "result"})

	timeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "placement_engine_timeouts_total",
		Help: "Network resolutions that hit the caller timeout, by checkpoint state",
	}, []string{"checkpoint"})

	segmentRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "placement_engine_segment_retries_total",
		Help: "Candidate fetches retried after a segment hash mismatch",
	})
)
