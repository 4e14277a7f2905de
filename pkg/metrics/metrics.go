// Package metrics exposes the runtime's operational counters/gauges as
// Prometheus metrics, replacing the teacher's JSONL token-usage Tracker
// with the ecosystem-standard client_golang registry + handler. Cost
// accounting (the teacher's per-model pricing table) is kept as a
// counter fed from the same token counts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ExecutorIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agentcore_executor_iterations",
		Help:    "Number of ReAct loop iterations consumed per processed turn.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 20},
	})

	ExecutorOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcore_executor_outcomes_total",
		Help: "Terminal outcomes of the ReAct loop, by kind.",
	}, []string{"outcome"}) // finish | malformed_reply | gateway_error | exhausted

	RouterDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcore_router_decisions_total",
		Help: "Router decisions by resolved capability level.",
	}, []string{"level", "reason_kind"})

	GatewayFailovers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcore_gateway_failovers_total",
		Help: "Provider fallback events, by provider that failed.",
	}, []string{"provider"})

	GatewayRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcore_gateway_requests_total",
		Help: "LLM gateway calls by provider and outcome.",
	}, []string{"provider", "outcome"}) // outcome: ok | error

	TokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcore_tokens_total",
		Help: "Prompt/completion tokens consumed, by model and direction.",
	}, []string{"model", "direction"}) // direction: prompt | completion

	CostUSDTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcore_cost_usd_total",
		Help: "Estimated USD cost of LLM usage, by model.",
	}, []string{"model"})

	MigrationProgress = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agentcore_migration_progress_ratio",
		Help: "Fraction of rows migrated to the target embedding model (0-1).",
	}, []string{"targetModel"})

	MigrationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcore_migration_failures_total",
		Help: "Records that failed to re-embed during migration, by target model.",
	}, []string{"targetModel"})

	BusQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agentcore_bus_queue_depth",
		Help: "Current depth of the message bus queues.",
	}, []string{"direction"}) // inbound | outbound

	MemoryColumns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agentcore_memory_vector_columns",
		Help: "Number of live vector columns in the memory table.",
	})
)

func init() {
	prometheus.MustRegister(
		ExecutorIterations, ExecutorOutcomes, RouterDecisions,
		GatewayFailovers, GatewayRequests, TokensTotal, CostUSDTotal,
		MigrationProgress, MigrationFailures, BusQueueDepth, MemoryColumns,
	)
}

// RecordTokens records prompt/completion token counts and their estimated
// dollar cost for model, mirroring the teacher's per-call TokenEvent.
func RecordTokens(model string, promptTokens, completionTokens int) {
	TokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	TokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	CostUSDTotal.WithLabelValues(model).Add(estimateCost(model, promptTokens, completionTokens))
}

type modelPricing struct {
	inputPerM  float64
	outputPerM float64
}

var pricing = map[string]modelPricing{
	"claude-sonnet-4-5-20250929": {3.0, 15.0},
	"claude-sonnet-4-20250514":   {3.0, 15.0},
	"claude-haiku-3-5-20241022":  {0.8, 4.0},
	"claude-opus-4-20250514":     {15.0, 75.0},
}

var defaultPricing = modelPricing{3.0, 15.0}

func estimateCost(model string, promptTokens, completionTokens int) float64 {
	p, ok := pricing[model]
	if !ok {
		p = defaultPricing
	}
	return float64(promptTokens)*p.inputPerM/1e6 + float64(completionTokens)*p.outputPerM/1e6
}

// Handler returns the /metrics HTTP handler for cmd/agentd to mount.
func Handler() http.Handler {
	return promhttp.Handler()
}
