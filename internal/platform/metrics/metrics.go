// Package metrics holds the Prometheus collectors shared by the worker and the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "goxec_commands_received_total",
			Help: "Total number of commands handed to the dispatcher",
		},
	)

	StaleDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "goxec_commands_stale_total",
			Help: "Commands dropped because their timeout elapsed before processing",
		},
	)

	Outcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goxec_outcomes_total",
			Help: "Processed commands by outcome kind",
		},
		[]string{"kind"}, // value, timeout, exception, compile_failure, internal_error
	)

	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goxec_publish_failures_total",
			Help: "Results that could not be published",
		},
		[]string{"stage"}, // serialize, emit
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goxec_execution_duration_ms",
			Help:    "Wall-clock duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"phase"}, // compile, execute, total
	)

	ProcessorTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "goxec_processor_time_ms",
			Help:    "CPU time consumed by executed code in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)

	MemoryAllocated = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "goxec_memory_allocated_kb",
			Help:    "Memory allocated per execution in KB",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144},
		},
	)

	ActiveExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "goxec_active_executions",
			Help: "Number of commands currently being processed",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "goxec_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiter",
		},
	)

	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goxec_gateway_submissions_total",
			Help: "Gateway requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)
)
