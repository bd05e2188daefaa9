// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InferenceAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_attempts_total",
			Help: "Total number of inference attempts by model",
		},
		[]string{"model"},
	)

	InferenceRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_retries_total",
			Help: "Total number of delayed inference retries by model",
		},
		[]string{"model"},
	)

	InferenceModelFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inference_model_fallbacks_total",
			Help: "Total number of switches to a fallback model",
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Duration of pipeline stage processing in seconds",
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_failures_total",
			Help: "Total number of stage failures by error code",
		},
		[]string{"stage", "error_code"},
	)

	RetrievalFallbackHops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_fallback_hops_total",
			Help: "Total number of retrieval fallback transitions by method",
		},
		[]string{"from", "to"},
	)

	CleaningChunksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cleaning_chunks_processed_total",
			Help: "Total number of CSV chunks cleaned",
		},
	)

	CleaningRowsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cleaning_rows_removed_total",
			Help: "Total number of duplicate rows removed during cleaning",
		},
	)
)
