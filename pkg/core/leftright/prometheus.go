package leftright

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics for monitoring service.
var (
	// publishDuration prometheus metric.
	publishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Help:      "Time spent publishing a batch, including reader drain and replay",
			Name:      "publish_duration_seconds",
			Namespace: "lrmpt",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)
	// drainWait prometheus metric.
	drainWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Help:      "Time spent waiting for readers of the previous copy",
			Name:      "drain_wait_seconds",
			Namespace: "lrmpt",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
	)
	// publishedTotal prometheus metric.
	publishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of completed publishes",
			Name:      "published_total",
			Namespace: "lrmpt",
		},
	)
	// replayedOps prometheus metric.
	replayedOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of operations replayed on the stale copy",
			Name:      "replayed_operations_total",
			Namespace: "lrmpt",
		},
	)
	// resyncs prometheus metric.
	resyncs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of stale copy resynchronizations after failed replay",
			Name:      "resyncs_total",
			Namespace: "lrmpt",
		},
	)
	// registeredReaders prometheus metric.
	registeredReaders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Help:      "Number of registered read handles",
			Name:      "registered_readers",
			Namespace: "lrmpt",
		},
	)
	// pendingOps prometheus metric.
	pendingOps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Help:      "Number of operations applied to the back copy and not yet published",
			Name:      "pending_operations",
			Namespace: "lrmpt",
		},
	)
)

func init() {
	prometheus.MustRegister(
		publishDuration,
		drainWait,
		publishedTotal,
		replayedOps,
		resyncs,
		registeredReaders,
		pendingOps,
	)
}

func updatePublishMetrics(start time.Time, drain time.Duration) {
	publishDuration.Observe(time.Since(start).Seconds())
	drainWait.Observe(drain.Seconds())
	publishedTotal.Inc()
}

func updatePendingOpsMetric(n int) {
	pendingOps.Set(float64(n))
}
