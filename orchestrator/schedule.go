package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	customerrors "staffing-engine/errors"
	"staffing-engine/metrics"
	"staffing-engine/models"
	"staffing-engine/optimizer"
	"staffing-engine/scheduler"

	"github.com/rs/zerolog"
)

// Schedule plans the horizon starting at start from forecast and roster
// alone, without live telemetry.
func (e *Engine) Schedule(ctx context.Context, start time.Time) (*ScheduleResult, error) {
	if e.roster == nil {
		return nil, &customerrors.FeedUnavailable{Feed: "roster", Err: errors.New("no roster source configured")}
	}
	return e.schedule(ctx, e.logger, start, nil)
}

// schedule builds the requirement curve for the planning horizon and runs the
// optimizer over it. The live requirement overrides the forecast for the
// current block. A roster failure is returned as FeedUnavailable.
func (e *Engine) schedule(ctx context.Context, logger zerolog.Logger, now time.Time, live []models.StaffingRequirement) (*ScheduleResult, error) {
	rctx, cancel := context.WithTimeout(ctx, e.monitor.FeedTimeout())
	roster, err := e.roster.Roster(rctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.FeedErrorsTotal.WithLabelValues("roster").Inc()
		return nil, &customerrors.FeedUnavailable{Feed: "roster", Err: err}
	}

	h := scheduler.Horizon{
		Start:         now.Truncate(e.cfg.BlockDuration),
		BlockDuration: e.cfg.BlockDuration,
		Blocks:        e.cfg.HorizonBlocks,
	}
	end := h.Start.Add(time.Duration(h.Blocks) * h.BlockDuration)
	queues := e.monitor.Queues()

	var buckets []models.ForecastBucket
	if e.forecast != nil {
		fctx, cancel := context.WithTimeout(ctx, e.monitor.FeedTimeout())
		for _, q := range queues {
			b, err := e.forecast.Forecast(fctx, q.ID, h.Start, end)
			if err != nil {
				metrics.FeedErrorsTotal.WithLabelValues("forecast").Inc()
				logger.Warn().Err(err).Str("queue", q.ID).Msg("forecast unavailable, scheduling from live demand only")
				continue
			}
			buckets = append(buckets, b...)
		}
		cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	curve, err := e.builder.Build(h, buckets, roster)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid forecast, scheduling from live demand only")
		if curve, err = e.builder.Build(h, nil, roster); err != nil {
			return nil, fmt.Errorf("building requirement curve: %w", err)
		}
	}
	overlayLive(curve, live, queues)

	demands := make([]optimizer.QueueDemand, 0, len(queues))
	for _, q := range queues {
		demands = append(demands, optimizer.QueueDemand{QueueID: q.ID, Skill: q.Skill, Required: curve.Required(q.ID)})
	}
	problem := &optimizer.Problem{
		Horizon:     optimizer.Horizon{Start: h.Start, BlockDuration: h.BlockDuration, Blocks: h.Blocks},
		Queues:      demands,
		Employees:   roster,
		Constraints: e.cfg.Constraints,
	}

	seed := e.cfg.Seed
	if seed == 0 {
		seed = now.UnixNano()
	}
	begin := time.Now()
	res, err := e.optimizer.Run(ctx, problem, seed)
	metrics.OptimizerDurationSeconds.Observe(time.Since(begin).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			metrics.OptimizerRunsTotal.WithLabelValues("cancelled").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("optimizer: %w", err)
	}
	metrics.OptimizerGenerations.Observe(float64(res.Generations))

	out := &ScheduleResult{
		Curve:       curve,
		Assignments: res.Assignments,
		Score:       res.Score,
		Violations:  res.Violations,
		Generations: res.Generations,
		Converged:   res.Converged,
		TimedOut:    res.TimedOut,
	}
	switch {
	case res.TimedOut:
		metrics.OptimizerRunsTotal.WithLabelValues("timeout").Inc()
	default:
		metrics.OptimizerRunsTotal.WithLabelValues("converged").Inc()
	}
	if derr := res.Err(); derr != nil {
		out.Degraded = derr.Error()
		logger.Warn().Err(derr).Msg("best-effort schedule")
	}
	logger.Debug().
		Int("generations", res.Generations).
		Float64("coverage", res.Score.CoverageRatio).
		Int("assignments", len(res.Assignments)).
		Msg("schedule optimized")
	return out, nil
}

// overlayLive raises the first block of the curve to the live requirement.
func overlayLive(curve *models.RequirementCurve, live []models.StaffingRequirement, queues []models.QueueConfig) {
	if len(curve.Blocks) == 0 {
		return
	}
	priority := make(map[string]int, len(queues))
	for _, q := range queues {
		priority[q.ID] = q.Priority
	}
	first := curve.Blocks[0]
	for _, r := range live {
		found := false
		for i := range first {
			if first[i].QueueID == r.QueueID {
				first[i].AgentsNeeded = max(first[i].AgentsNeeded, r.Required)
				found = true
			}
		}
		if !found && r.Required > 0 {
			first = append(first, models.BlockRequirement{QueueID: r.QueueID, AgentsNeeded: r.Required, Priority: priority[r.QueueID]})
		}
	}
	curve.Blocks[0] = first
}
