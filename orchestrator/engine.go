// Package orchestrator runs recommendation cycles: poll queues, size them,
// classify gaps, optionally re-optimize the schedule, then publish one
// immutable snapshot atomically.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"staffing-engine/erlang"
	customerrors "staffing-engine/errors"
	"staffing-engine/gap"
	"staffing-engine/metrics"
	"staffing-engine/models"
	"staffing-engine/monitor"
	"staffing-engine/optimizer"
	"staffing-engine/scheduler"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RosterSource returns the employees the optimizer may schedule.
type RosterSource interface {
	Roster(ctx context.Context) ([]models.EmployeeCandidate, error)
}

// Publisher receives every published snapshot. Errors are logged only.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, s *Snapshot) error
}

// Config controls one engine.
type Config struct {
	// Workers bounds concurrent staffing evaluations.
	Workers       int
	BlockDuration time.Duration
	HorizonBlocks int
	Constraints   optimizer.Constraints
	// Seed fixes the optimizer random source. Zero derives it from the cycle start.
	Seed int64
	// ScheduleAbove is the urgency a queue must exceed before the optimizer runs.
	ScheduleAbove  models.Urgency
	TrendThreshold float64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		BlockDuration:  30 * time.Minute,
		HorizonBlocks:  16,
		Constraints:    optimizer.Constraints{MaxConsecutiveBlocks: 10, MinRestBlocks: 1},
		ScheduleAbove:  models.UrgencyLow,
		TrendThreshold: 0.10,
	}
}

// Engine owns the cycle pipeline and the latest published snapshot.
type Engine struct {
	cfg        Config
	monitor    *monitor.Monitor
	model      *erlang.Model
	analyzer   *gap.Analyzer
	builder    *scheduler.Builder
	optimizer  *optimizer.Optimizer
	forecast   monitor.ForecastSource
	roster     RosterSource
	publishers []Publisher
	logger     zerolog.Logger
	now        func() time.Time

	publishMu sync.Mutex
	latest    atomic.Pointer[Snapshot]
}

// Option customizes an Engine.
type Option func(*Engine)

// WithPublishers adds snapshot consumers.
func WithPublishers(p ...Publisher) Option {
	return func(e *Engine) { e.publishers = append(e.publishers, p...) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine wires the pipeline. forecast and roster may be nil; without a
// roster the optimizer never runs.
func NewEngine(cfg Config, mon *monitor.Monitor, model *erlang.Model, analyzer *gap.Analyzer, opt *optimizer.Optimizer,
	forecast monitor.ForecastSource, roster RosterSource, logger zerolog.Logger, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = def.BlockDuration
	}
	if cfg.HorizonBlocks <= 0 {
		cfg.HorizonBlocks = def.HorizonBlocks
	}
	if cfg.ScheduleAbove == "" {
		cfg.ScheduleAbove = def.ScheduleAbove
	}
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = def.TrendThreshold
	}
	e := &Engine{
		cfg:       cfg,
		monitor:   mon,
		model:     model,
		analyzer:  analyzer,
		builder:   scheduler.NewBuilder(model, mon.Queues()),
		optimizer: opt,
		forecast:  forecast,
		roster:    roster,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Latest returns the most recently published snapshot, or nil before the first.
func (e *Engine) Latest() *Snapshot {
	return e.latest.Load()
}

// RunCycle runs one full cycle and publishes its snapshot. A cycle whose
// context is cancelled publishes nothing and returns ErrCycleSuperseded.
func (e *Engine) RunCycle(ctx context.Context) (*Snapshot, error) {
	started := e.now()
	snap := &Snapshot{
		CycleID:   uuid.NewString(),
		StartedAt: started,
		Failures:  make(map[string]string),
	}
	logger := e.logger.With().Str("cycle", snap.CycleID).Logger()

	poll := e.monitor.Poll(ctx)
	if err := ctx.Err(); err != nil {
		return nil, e.superseded(logger, err)
	}
	snap.Queues = poll.Snapshots
	snap.Warnings = poll.Warnings
	for id, err := range poll.Failures {
		snap.Failures[id] = err.Error()
	}

	queues := make(map[string]models.QueueConfig)
	for _, q := range e.monitor.Queues() {
		queues[q.ID] = q
	}

	reqs := e.staff(poll.Snapshots, queues)
	inputs := make([]gap.Input, 0, len(reqs))
	// one feed timeout bounds the whole trend stage
	tctx, cancelTrend := context.WithTimeout(ctx, e.monitor.FeedTimeout())
	defer cancelTrend()
	for i, r := range reqs {
		if r.err != nil {
			snap.Failures[poll.Snapshots[i].QueueID] = r.err.Error()
			logger.Warn().Err(r.err).Str("queue", poll.Snapshots[i].QueueID).Msg("staffing evaluation failed")
			continue
		}
		snap.Requirements = append(snap.Requirements, r.req)
		inputs = append(inputs, gap.Input{
			Snapshot:    poll.Snapshots[i],
			Requirement: r.req,
			Trend:       e.trend(tctx, poll.Snapshots[i].QueueID, started),
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, e.superseded(logger, err)
	}

	snap.Recommendations = e.analyzer.Analyze(inputs)
	snap.MaxUrgency = gap.MaxUrgency(snap.Recommendations)

	if snap.MaxUrgency.Rank() > e.cfg.ScheduleAbove.Rank() && e.roster != nil {
		sched, err := e.schedule(ctx, logger, started, snap.Requirements)
		if err != nil {
			if ctx.Err() != nil {
				return nil, e.superseded(logger, ctx.Err())
			}
			metrics.CyclesTotal.WithLabelValues("failed").Inc()
			logger.Error().Err(err).Msg("cycle failed")
			return nil, err
		}
		snap.Schedule = sched
	} else {
		metrics.OptimizerRunsTotal.WithLabelValues("skipped").Inc()
		logger.Debug().Str("max_urgency", string(snap.MaxUrgency)).Msg("optimizer skipped")
	}

	snap.CompletedAt = e.now()
	if !e.publish(ctx, snap) {
		return nil, e.superseded(logger, ctx.Err())
	}
	metrics.CycleDurationSeconds.Observe(snap.CompletedAt.Sub(started).Seconds())
	metrics.CyclesTotal.WithLabelValues("published").Inc()
	logger.Info().
		Int("queues", len(snap.Queues)).
		Int("failures", len(snap.Failures)).
		Str("max_urgency", string(snap.MaxUrgency)).
		Bool("scheduled", snap.Schedule != nil).
		Msg("cycle published")

	// the snapshot is already live; a newer cycle must not abort its delivery
	pctx := context.WithoutCancel(ctx)
	for _, p := range e.publishers {
		if err := p.Publish(pctx, snap); err != nil {
			logger.Warn().Err(err).Str("publisher", p.Name()).Msg("publish failed")
		}
	}
	return snap, nil
}

// publish swaps in snap unless the cycle was cancelled or a newer cycle
// already published.
func (e *Engine) publish(ctx context.Context, snap *Snapshot) bool {
	e.publishMu.Lock()
	defer e.publishMu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	if cur := e.latest.Load(); cur != nil && cur.StartedAt.After(snap.StartedAt) {
		return false
	}
	e.latest.Store(snap)
	return true
}

func (e *Engine) superseded(logger zerolog.Logger, cause error) error {
	metrics.CyclesTotal.WithLabelValues("superseded").Inc()
	logger.Info().Msg("cycle superseded, nothing published")
	if cause == nil {
		return customerrors.ErrCycleSuperseded
	}
	return fmt.Errorf("%w: %w", customerrors.ErrCycleSuperseded, cause)
}
