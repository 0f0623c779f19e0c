package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "firstday"

var (
	// llmRequestDuration measures generation call latency per provider/model.
	llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Duration of LLM API requests in seconds",
			// Buckets for typical LLM latencies: 0.5s - 60s
			Buckets: []float64{0.5, 1, 2, 3, 5, 7, 10, 15, 20, 30, 45, 60},
		},
		[]string{"provider", "model", "status"},
	)

	llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total number of LLM API requests",
		},
		[]string{"provider", "model", "status"},
	)

	llmTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total number of tokens used for LLM requests",
		},
		[]string{"provider", "model", "type"},
	)

	llmRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Total number of retry attempts for LLM requests",
		},
		[]string{"provider", "model"},
	)
)

const (
	statusSuccess   = "success"
	statusError     = "error"
	tokenTypePrompt = "prompt"
	tokenTypeCompl  = "completion"
)

// RecordRequest records the outcome of one generation call.
func RecordRequest(provider, model string, durationSeconds float64, success bool, promptTokens, completionTokens int) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	llmRequestDuration.WithLabelValues(provider, model, status).Observe(durationSeconds)
	llmRequestsTotal.WithLabelValues(provider, model, status).Inc()

	if success {
		if promptTokens > 0 {
			llmTokensTotal.WithLabelValues(provider, model, tokenTypePrompt).Add(float64(promptTokens))
		}
		if completionTokens > 0 {
			llmTokensTotal.WithLabelValues(provider, model, tokenTypeCompl).Add(float64(completionTokens))
		}
	}
}

// RecordRetry records one retry attempt.
func RecordRetry(provider, model string) {
	llmRetriesTotal.WithLabelValues(provider, model).Inc()
}
