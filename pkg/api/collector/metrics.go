package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conformoor",
		Subsystem: "collector",
		Name:      "fetch_failures_total",
		Help:      "Number of failed collection attempts per ref.",
	}, []string{"ref"})

	snapshotsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conformoor",
		Subsystem: "collector",
		Name:      "snapshots_upserted_total",
		Help:      "Number of snapshot rows written per ref.",
	}, []string{"ref"})

	conformanceGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "conformoor",
		Subsystem: "collector",
		Name:      "conformance_percent",
		Help:      "Latest conformance percentage per ref.",
	}, []string{"ref"})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "conformoor",
		Subsystem: "collector",
		Name:      "pass_duration_seconds",
		Help:      "Duration of full collection passes.",
		Buckets:   prometheus.DefBuckets,
	})
)
