package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
	apiErrorsTotal       *prometheus.CounterVec
	pipelineStagesTotal  *prometheus.CounterVec
	pipelineRunSeconds   *prometheus.HistogramVec
	submissionsRejected  *prometheus.CounterVec
	notificationsSent    *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
	analyticsCacheTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the portal.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gema_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		pipelineStagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_pipeline_stage_total",
			Help: "Submission pipeline stage results by outcome.",
		}, []string{"stage", "outcome"})

		pipelineRunSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gema_pipeline_run_seconds",
			Help:    "Duration of complete submission pipeline runs.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"final_state"})

		submissionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_submissions_rejected_total",
			Help: "Submissions rejected during intake validation.",
		}, []string{"reason"})

		notificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_notifications_sent_total",
			Help: "Notifications delivered per kind and channel.",
		}, []string{"kind", "channel"})

		notificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_notification_failures_total",
			Help: "Notifications that failed or panicked per kind and channel.",
		}, []string{"kind", "channel"})

		analyticsCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_analytics_cache_total",
			Help: "Analytics overview cache lookups by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			pipelineStagesTotal,
			pipelineRunSeconds,
			submissionsRejected,
			notificationsSent,
			notificationFailures,
			analyticsCacheTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// PipelineStages counts stage results labelled by stage and outcome.
func PipelineStages() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineStagesTotal
}

// PipelineDuration observes complete pipeline runs.
func PipelineDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return pipelineRunSeconds
}

// SubmissionsRejected counts intake rejections by validation kind.
func SubmissionsRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsRejected
}

// NotificationsSent counts delivered notifications.
func NotificationsSent() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsSent
}

// NotificationFailures counts swallowed notification failures.
func NotificationFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationFailures
}

// AnalyticsCache counts analytics cache hits and misses.
func AnalyticsCache() *prometheus.CounterVec {
	RegisterMetrics()
	return analyticsCacheTotal
}
