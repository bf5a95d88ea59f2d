// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SessionsActive tracks debate sessions currently held in memory.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "debate_sessions_active",
			Help: "Number of debate sessions in memory",
		},
	)

	// SessionsTotal tracks sessions created.
	SessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debate_sessions_total",
			Help: "Total debate sessions created",
		},
	)

	// TurnsTotal tracks transcript turns appended, by speaker.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_turns_total",
			Help: "Total transcript turns appended",
		},
		[]string{"agent"},
	)

	// SessionsReaped tracks sessions evicted by the idle reaper.
	SessionsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debate_sessions_reaped_total",
			Help: "Sessions evicted after the idle threshold",
		},
	)

	// FlushesTotal tracks durable-store flushes by outcome.
	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_flushes_total",
			Help: "Conversation persistence flushes",
		},
		[]string{"status"},
	)

	// LLMRequestDuration tracks completion latency by provider and agent.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Completion request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"provider", "agent", "status"},
	)

	// LLMTokensTotal tracks tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total completion tokens processed",
		},
		[]string{"provider", "direction"},
	)

	// LLMFallbacksTotal tracks primary-provider failures that triggered the
	// secondary provider.
	LLMFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_fallbacks_total",
			Help: "Completions retried on the secondary provider",
		},
		[]string{"primary"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMRequest records metrics for one completion call.
func RecordLLMRequest(provider, agent, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(provider, agent, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
