package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Orchestrator ────────────────────────────────────────────────────────────

	LoopIterations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentfarm",
		Subsystem: "orchestrator",
		Name:      "loop_iterations_total",
		Help:      "Total orchestration loop iterations completed.",
	})

	LoopStepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentfarm",
		Subsystem: "orchestrator",
		Name:      "loop_step_errors_total",
		Help:      "Loop step failures, labelled by step name.",
	}, []string{"step"})

	// ─── Tasks ───────────────────────────────────────────────────────────────────

	TasksDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentfarm",
		Subsystem: "tasks",
		Name:      "dispatched_total",
		Help:      "Total tasks handed to an agent.",
	})

	TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentfarm",
		Subsystem: "tasks",
		Name:      "completed_total",
		Help:      "Total tasks finished, labelled by terminal status.",
	}, []string{"status"})

	TasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentfarm",
		Subsystem: "tasks",
		Name:      "inflight",
		Help:      "Tasks currently executing on this machine.",
	})

	TasksReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentfarm",
		Subsystem: "tasks",
		Name:      "reclaimed_total",
		Help:      "Total stale in-progress tasks returned to pending.",
	})

	// ─── Projects ────────────────────────────────────────────────────────────────

	ProjectTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentfarm",
		Subsystem: "projects",
		Name:      "transitions_total",
		Help:      "Project lifecycle transitions, labelled by target status.",
	}, []string{"to"})

	// ─── Inference ───────────────────────────────────────────────────────────────

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentfarm",
		Subsystem: "llm",
		Name:      "requests_total",
		Help:      "Total routed completions, labelled by provider and outcome.",
	}, []string{"provider", "outcome"})

	LLMTokensUsed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentfarm",
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Total tokens consumed across all providers.",
	})

	LLMCostUSD = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentfarm",
		Subsystem: "llm",
		Name:      "cost_usd_total",
		Help:      "Cumulative USD cost of paid-tier completions.",
	})
)
