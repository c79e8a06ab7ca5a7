// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_jobs_consumed_total",
			Help: "Total number of application jobs delivered to the worker",
		},
	)

	JobOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_job_outcomes_total",
			Help: "Terminal outcomes of processed application jobs",
		},
		[]string{"outcome"},
	)

	JobsRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_jobs_requeued_total",
			Help: "Total number of failed jobs re-enqueued for another attempt",
		},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_job_duration_seconds",
			Help:    "Duration of application job processing in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	ClassifierDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_classifier_decisions_total",
			Help: "Eligibility classifier decisions by result",
		},
		[]string{"result"},
	)

	AutomationSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_automation_steps_total",
			Help: "Form automation steps by chosen action",
		},
		[]string{"action"},
	)

	AICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_ai_calls_total",
			Help: "AI model invocations by purpose and status",
		},
		[]string{"purpose", "status"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_browser_sessions_active",
			Help: "Number of live per-user browser contexts",
		},
	)
)
