package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesTotal tracks finished batches per policy and overall status
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchfetch_batches_total",
			Help: "Total number of finished batches",
		},
		[]string{"policy", "status"},
	)

	// OutcomesTotal tracks handle outcomes per policy
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchfetch_outcomes_total",
			Help: "Total number of handle outcomes",
		},
		[]string{"policy", "result"},
	)

	// FetchAttemptsTotal tracks individual fetch calls
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchfetch_fetch_attempts_total",
			Help: "Total number of fetch attempts",
		},
		[]string{"result"},
	)

	// FetchLatency tracks single attempt latency
	FetchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batchfetch_fetch_latency_seconds",
			Help:    "Fetch attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// BatchDuration tracks wall time of whole batches
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batchfetch_batch_duration_seconds",
			Help:    "Batch duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"policy"},
	)

	// LastBatchStatus is 1 for the status of the most recent batch, 0 otherwise
	LastBatchStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batchfetch_last_batch_status",
			Help: "Status of the most recent batch",
		},
		[]string{"status"},
	)

	// DBConnectionPoolUsage tracks open connections as a share of the pool limit
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batchfetch_db_pool_usage_percent",
			Help: "Database connection pool usage in percent",
		},
	)
)
