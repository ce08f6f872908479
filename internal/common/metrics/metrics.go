// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_completed_total",
			Help: "Total number of completed pipeline runs",
		},
		[]string{"final_decision"},
	)

	PipelineRunsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_failed_total",
			Help: "Total number of failed pipeline runs",
		},
		[]string{"error_code"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Duration of stage processing in seconds",
		},
		[]string{"stage"},
	)

	StageDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_degraded_total",
			Help: "Number of stages that completed on their degraded fallback path",
		},
		[]string{"stage", "reason"},
	)

	ClarificationsPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clarifications_pending",
			Help: "Number of pending clarification questions per applicant bucket",
		},
		[]string{"state"},
	)
)
