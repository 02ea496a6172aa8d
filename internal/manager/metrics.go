package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdserver",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Pipeline cache lookups by result",
		},
		[]string{"result"},
	)

	pipelineLoads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sdserver",
			Subsystem: "cache",
			Name:      "loads_total",
			Help:      "Pipelines constructed",
		},
	)

	pipelineEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sdserver",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Pipelines evicted or unloaded",
		},
	)

	cachedModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sdserver",
			Subsystem: "cache",
			Name:      "models",
			Help:      "Pipelines currently cached",
		},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sdserver",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Time holding the device per request",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"result"},
	)

	imagesGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sdserver",
			Subsystem: "generation",
			Name:      "images_total",
			Help:      "Images returned to clients",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sdserver",
			Subsystem: "admission",
			Name:      "queue_depth",
			Help:      "Requests waiting for or holding the device",
		},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdserver",
			Subsystem: "admission",
			Name:      "backpressure_total",
			Help:      "Requests rejected while waiting for the device",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(cacheLookups, pipelineLoads, pipelineEvictions, cachedModels,
		generationDuration, imagesGenerated, queueDepth, backpressureTotal)
}
