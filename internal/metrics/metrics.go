package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weather_pipeline_cycles_total",
		Help: "Total number of ingestion cycles run.",
	})

	CyclesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weather_pipeline_cycles_skipped_total",
		Help: "Total number of scheduled triggers skipped because a cycle was still running.",
	})

	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_pipeline_fetch_failures_total",
		Help: "Total number of fetch failures, labelled by category.",
	}, []string{"category"})

	NormalizeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_pipeline_normalize_failures_total",
		Help: "Total number of normalization failures, labelled by category.",
	}, []string{"category"})

	RecordsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_pipeline_records_published_total",
		Help: "Total number of records delivered to the sink, labelled by category.",
	}, []string{"category"})

	RecordsDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weather_pipeline_records_dead_lettered_total",
		Help: "Total number of records that exhausted sink delivery retries.",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "weather_pipeline_cycle_duration_seconds",
		Help:    "End-to-end ingestion cycle duration in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	})
)
