package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	calculationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricing",
		Name:      "calculations_total",
		Help:      "Price calculations by service and outcome",
	}, []string{"service", "outcome"})

	calculationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pricing",
		Name:      "calculation_duration_seconds",
		Help:      "End-to-end calculation latency including the audit append",
		Buckets:   prometheus.DefBuckets,
	})

	ruleSnapshotSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pricing",
		Name:      "rule_snapshot_size",
		Help:      "Number of active rules in the current snapshot",
	})

	ruleSnapshotVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pricing",
		Name:      "rule_snapshot_version",
		Help:      "Monotonic version of the current rule snapshot",
	})

	quoteCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricing",
		Name:      "quote_cache_requests_total",
		Help:      "Quote cache lookups by result",
	}, []string{"result"})
)
