package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for scheduling and fetching.
var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchfetch_fetches_total",
		Help: "Total network fetches by status",
	}, []string{"status"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchfetch_fetch_duration_seconds",
		Help:    "Network fetch duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	fetchBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchfetch_fetched_bytes_total",
		Help: "Total response bytes received from the network",
	})

	inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "batchfetch_inflight",
		Help: "Tasks currently holding a governor slot",
	})

	queueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "batchfetch_queue_depth",
		Help: "Tasks waiting in the global queue",
	})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchfetch_batches_total",
		Help: "Total finished batches by result",
	}, []string{"result"})

	queueAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchfetch_queue_anomalies_total",
		Help: "Queue entries or counters that disagreed with batch bookkeeping",
	})
)
