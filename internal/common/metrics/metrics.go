// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total number of chat completion requests by stage and status",
		},
		[]string{"stage", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "llm_request_duration_seconds",
			Help: "Duration of chat completion requests in seconds",
		},
		[]string{"stage"},
	)

	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total tokens consumed by chat completion requests",
		},
		[]string{"stage", "kind"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "analysis_stage_duration_seconds",
			Help: "Duration of analysis stage execution in seconds",
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_stage_failures_total",
			Help: "Total number of failed stage executions",
		},
		[]string{"stage", "error_code"},
	)

	AgentIterations = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_iterations_per_run",
			Help:    "Number of research iterations used per analysis run",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		},
		[]string{"approach"},
	)

	DatasetQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_queries_total",
			Help: "Total number of dataset queries by status",
		},
		[]string{"status"},
	)

	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_cache_requests_total",
			Help: "Completion cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)
