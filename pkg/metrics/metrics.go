// Package metrics holds the Prometheus collectors exported by postergen.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "postergen"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"method", "route"},
	)

	// Pipeline stages: refine, suggest, synthesize, composite, persist.
	PipelineStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_total",
			Help:      "Pipeline stage executions by outcome",
		},
		[]string{"stage", "outcome"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{.05, .25, 1, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	PostersGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "posters_generated_total",
			Help:      "Total number of poster candidates returned to callers",
		},
	)
)

// ObserveStage records one stage execution. outcome is "ok" or an error kind.
func ObserveStage(stage, outcome string, started time.Time) {
	PipelineStageTotal.WithLabelValues(stage, outcome).Inc()
	PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route, status string, took time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
