package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the centralized Prometheus metrics registry for an agentcore
// process: turn/model-call throughput and latency, tool execution and
// approval-pipeline outcomes, background task concurrency, and RPC traffic.
type Metrics struct {
	// TurnCounter counts completed conversation turns.
	// Labels: provider, model, status (completed|error|cancelled)
	TurnCounter *prometheus.CounterVec

	// ModelRequestDuration measures model provider call latency in seconds.
	// Labels: provider, model
	ModelRequestDuration *prometheus.HistogramVec

	// ModelTokensUsed tracks token consumption.
	// Labels: provider, model, kind (input|output|cache_read|cache_creation)
	ModelTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error|timeout)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ApprovalDecisionCounter counts approval pipeline outcomes.
	// Labels: decision (approve|approve_once|approve_all|deny|edit), source (cache|interactive|policy)
	ApprovalDecisionCounter *prometheus.CounterVec

	// SandboxDenialCounter counts tool executions rejected by the sandbox.
	// Labels: tool_name, backend
	SandboxDenialCounter *prometheus.CounterVec

	// BackgroundTasksActive is a gauge of running+queued background tasks.
	// Labels: concurrency_key, state (running|queued)
	BackgroundTasksActive *prometheus.GaugeVec

	// RPCRequestDuration measures JSON-RPC request handling latency.
	// Labels: method, status (ok|error)
	RPCRequestDuration *prometheus.HistogramVec

	// RPCRequestCounter counts JSON-RPC requests.
	// Labels: method, status (ok|error)
	RPCRequestCounter *prometheus.CounterVec

	// RalphCircuitTrips counts Ralph supervisor circuit-breaker trips.
	// Labels: reason (zero_change|repeated_error|output_decline)
	RalphCircuitTrips *prometheus.CounterVec
}

// NewMetrics registers and returns the metrics set using the given registerer.
// Pass prometheus.DefaultRegisterer for process-wide metrics, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions across test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore", Name: "turns_total", Help: "Completed conversation turns.",
		}, []string{"provider", "model", "status"}),

		ModelRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentcore", Name: "model_request_duration_seconds", Help: "Model provider call latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),

		ModelTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore", Name: "model_tokens_total", Help: "Tokens consumed per model call.",
		}, []string{"provider", "model", "kind"}),

		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore", Name: "tool_executions_total", Help: "Tool invocations.",
		}, []string{"tool_name", "status"}),

		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentcore", Name: "tool_execution_duration_seconds", Help: "Tool execution latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),

		ApprovalDecisionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore", Name: "approval_decisions_total", Help: "Approval pipeline outcomes.",
		}, []string{"decision", "source"}),

		SandboxDenialCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore", Name: "sandbox_denials_total", Help: "Tool executions rejected by the sandbox.",
		}, []string{"tool_name", "backend"}),

		BackgroundTasksActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentcore", Name: "background_tasks_active", Help: "Running and queued background tasks.",
		}, []string{"concurrency_key", "state"}),

		RPCRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentcore", Name: "rpc_request_duration_seconds", Help: "JSON-RPC request handling latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "status"}),

		RPCRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore", Name: "rpc_requests_total", Help: "JSON-RPC requests handled.",
		}, []string{"method", "status"}),

		RalphCircuitTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore", Name: "ralph_circuit_trips_total", Help: "Ralph supervisor circuit-breaker trips.",
		}, []string{"reason"}),
	}
}
