package orchestrator

import (
	"context"

	"staffing-engine/metrics"
)

// MetricsPublisher mirrors each snapshot into the Prometheus gauges.
type MetricsPublisher struct{}

func (MetricsPublisher) Name() string { return "metrics" }

func (MetricsPublisher) Publish(_ context.Context, s *Snapshot) error {
	metrics.ResetQueueGauges()
	for _, r := range s.Requirements {
		metrics.RequiredAgents.WithLabelValues(r.QueueID).Set(float64(r.Required))
		metrics.ProjectedServiceLevel.WithLabelValues(r.QueueID).Set(r.AchievedServiceLevel)
	}
	for _, rec := range s.Recommendations {
		metrics.CurrentAgents.WithLabelValues(rec.QueueID).Set(float64(rec.Current))
		metrics.AgentGap.WithLabelValues(rec.QueueID).Set(float64(rec.Gap))
		metrics.UrgencyRank.WithLabelValues(rec.QueueID).Set(float64(rec.Urgency.Rank()))
	}
	if s.Schedule != nil {
		metrics.ScheduleViolations.Set(float64(len(s.Schedule.Violations)))
		metrics.ScheduleCoverage.Set(s.Schedule.Score.CoverageRatio)
	}
	return nil
}
