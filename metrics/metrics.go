// Package metrics provides Prometheus observability metrics for the staffing engine.
// It includes Critical and Important metrics for business and operational visibility.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for our application
var Registry = prometheus.NewRegistry()

// factory allows us to register metrics to our custom Registry directly
var factory = promauto.With(Registry)

// =============================================================================
// CRITICAL METRICS - Business Impact Visibility
// =============================================================================

// RequiredAgents tracks the staffing model requirement per queue.
var RequiredAgents = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "staffing",
	Name:      "required_agents",
	Help:      "Minimum agents required to meet the service level target",
}, []string{"queue"})

// CurrentAgents tracks effective agents per queue.
var CurrentAgents = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "staffing",
	Name:      "current_agents",
	Help:      "Agents currently available or busy on the queue",
}, []string{"queue"})

// AgentGap tracks current minus required agents per queue.
// Negative values indicate understaffing.
var AgentGap = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "staffing",
	Name:      "agent_gap",
	Help:      "Current agents minus required agents",
}, []string{"queue"})

// UrgencyRank tracks the urgency tier per queue (0=none .. 4=critical).
var UrgencyRank = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "staffing",
	Name:      "urgency_rank",
	Help:      "Urgency tier of the staffing gap, 0 (none) to 4 (critical)",
}, []string{"queue"})

// ProjectedServiceLevel tracks the service level achieved at the required staffing.
var ProjectedServiceLevel = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "staffing",
	Name:      "projected_service_level",
	Help:      "Service level achieved at the required agent count",
}, []string{"queue"})

// ScheduleViolations tracks hard constraint violations in the latest schedule.
var ScheduleViolations = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "optimizer",
	Name:      "violations",
	Help:      "Hard constraint violations in the best schedule of the latest run",
})

// ScheduleCoverage tracks the coverage fraction of the latest schedule.
var ScheduleCoverage = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "optimizer",
	Name:      "coverage_ratio",
	Help:      "Fraction of required block coverage met by the latest schedule",
})

// =============================================================================
// IMPORTANT METRICS - Operational Health
// =============================================================================

// FeedErrorsTotal tracks failed feed calls by feed.
var FeedErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "monitor",
	Name:      "feed_errors_total",
	Help:      "Total failed feed calls by feed",
}, []string{"feed"})

// StaleSnapshotsTotal tracks degraded snapshots by kind (stale or forecast).
var StaleSnapshotsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "monitor",
	Name:      "stale_snapshots_total",
	Help:      "Snapshots published from stale or forecast data",
}, []string{"kind"})

// CycleDurationSeconds tracks time to run one orchestration cycle.
var CycleDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "orchestrator",
	Name:      "cycle_duration_seconds",
	Help:      "Time taken to run one orchestration cycle",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
})

// CyclesTotal tracks cycles by outcome.
var CyclesTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "orchestrator",
	Name:      "cycles_total",
	Help:      "Orchestration cycles by outcome",
}, []string{"outcome"})

// StaffingDurationSeconds tracks time for one staffing model evaluation.
var StaffingDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "staffing",
	Name:      "evaluation_duration_seconds",
	Help:      "Time taken to evaluate the staffing model for one queue",
	Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01},
})

// OptimizerDurationSeconds tracks time to run the schedule optimizer.
var OptimizerDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "optimizer",
	Name:      "duration_seconds",
	Help:      "Time taken by one optimizer run",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
})

// OptimizerGenerations tracks generations per optimizer run.
var OptimizerGenerations = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "optimizer",
	Name:      "generations",
	Help:      "Generations evaluated per optimizer run",
	Buckets:   []float64{1, 10, 25, 50, 100, 250, 500, 1000},
})

// OptimizerRunsTotal tracks optimizer runs by outcome.
var OptimizerRunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "optimizer",
	Name:      "runs_total",
	Help:      "Optimizer runs by outcome (converged, timeout, cancelled, skipped)",
}, []string{"outcome"})

// =============================================================================
// Helper Functions
// =============================================================================

// ResetQueueGauges clears per-queue gauges before a new snapshot is recorded,
// so queues removed from configuration stop reporting.
func ResetQueueGauges() {
	RequiredAgents.Reset()
	CurrentAgents.Reset()
	AgentGap.Reset()
	UrgencyRank.Reset()
	ProjectedServiceLevel.Reset()
}
