// Package observability exposes the worker's Prometheus metrics.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects job, loop, model, tool and delivery metrics.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	registry.SetObserver(metrics)
type Metrics struct {
	// JobsTotal counts jobs by final status.
	// Labels: status (processed|duplicate|failed|invalid|delivery_failed)
	JobsTotal *prometheus.CounterVec

	// LoopOutcomes counts tool-calling loop results.
	// Labels: outcome (answered|iteration_limit|fatal_error)
	LoopOutcomes *prometheus.CounterVec

	// LoopIterations records how many model calls each loop used.
	LoopIterations prometheus.Histogram

	// ModelRequestDuration measures chat completion latency in seconds.
	// Labels: status (success|error)
	ModelRequestDuration *prometheus.HistogramVec

	// ToolExecutions counts tool calls.
	// Labels: tool, result (ok|validation_error|business_rule|system_error)
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// DeliveryFailures counts replies that could not be delivered.
	DeliveryFailures prometheus.Counter

	// HTTPRequests counts requests served by the HTTP surface.
	// Labels: method, path, status_code
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_jobs_total",
				Help: "Total number of jobs by final status",
			},
			[]string{"status"},
		),

		LoopOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_loop_outcomes_total",
				Help: "Total number of tool-calling loop runs by outcome",
			},
			[]string{"outcome"},
		),

		LoopIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agent_loop_iterations",
				Help:    "Number of model calls per tool-calling loop run",
				Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
			},
		),

		ModelRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_model_request_duration_seconds",
				Help:    "Duration of model requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"status"},
		),

		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_tool_executions_total",
				Help: "Total number of tool executions by tool and result",
			},
			[]string{"tool", "result"},
		),

		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_tool_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool"},
		),

		DeliveryFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_delivery_failures_total",
				Help: "Total number of replies that failed to be delivered",
			},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_http_requests_total",
				Help: "Total number of HTTP requests by method, path and status code",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

func (m *Metrics) ObserveTool(name, outcome string, elapsed time.Duration) {
	m.ToolExecutions.WithLabelValues(name, outcome).Inc()
	m.ToolDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveModel(success bool, elapsed time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ModelRequestDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveLoop(outcome string, iterations int) {
	m.LoopOutcomes.WithLabelValues(outcome).Inc()
	m.LoopIterations.Observe(float64(iterations))
}

func (m *Metrics) ObserveJob(status string) {
	m.JobsTotal.WithLabelValues(status).Inc()
	if status == "delivery_failed" {
		m.DeliveryFailures.Inc()
	}
}

func (m *Metrics) ObserveHTTP(method, path string, statusCode int) {
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
}
