// Package optimizer searches shift and skill assignments with a genetic
// algorithm, maximizing multi-queue coverage under hard labor constraints.
package optimizer

import (
	"context"
	"math/rand"
	"sort"
	"time"

	customerrors "staffing-engine/errors"
	"staffing-engine/models"
)

// Config tunes the genetic search.
type Config struct {
	PopulationSize     int           `toml:"population_size"`
	MaxGenerations     int           `toml:"max_generations"`
	PlateauGenerations int           `toml:"plateau_generations"`
	TournamentSize     int           `toml:"tournament_size"`
	EliteCount         int           `toml:"elite_count"`
	CrossoverRate      float64       `toml:"crossover_rate"`
	MutationRate       float64       `toml:"mutation_rate"`
	MinMutationRate    float64       `toml:"min_mutation_rate"`
	MutationDecay      float64       `toml:"mutation_decay"`
	TimeBudget         time.Duration `toml:"-"`
	Weights            Weights       `toml:"weights"`
	Undesirable        Undesirable   `toml:"undesirable"`
}

// DefaultConfig returns the search parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		PopulationSize:     60,
		MaxGenerations:     300,
		PlateauGenerations: 40,
		TournamentSize:     3,
		EliteCount:         2,
		CrossoverRate:      0.9,
		MutationRate:       0.02,
		MinMutationRate:    0.002,
		MutationDecay:      0.99,
		TimeBudget:         10 * time.Second,
		Weights:            DefaultWeights(),
		Undesirable:        Undesirable{From: 7, To: 20},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PopulationSize < 2 {
		c.PopulationSize = def.PopulationSize
	}
	if c.MaxGenerations <= 0 {
		c.MaxGenerations = def.MaxGenerations
	}
	if c.TournamentSize <= 0 {
		c.TournamentSize = def.TournamentSize
	}
	if c.EliteCount < 1 {
		c.EliteCount = 1
	}
	if c.EliteCount >= c.PopulationSize {
		c.EliteCount = c.PopulationSize - 1
	}
	if c.Weights == (Weights{}) {
		c.Weights = def.Weights
	}
	return c
}

// Result is the outcome of one run.
type Result struct {
	Best        *Chromosome
	Score       Score
	Assignments []models.ScheduleAssignment
	Violations  []customerrors.Violation
	// History holds the best fitness after each generation.
	History     []float64
	Generations int
	Converged   bool
	Plateaued   bool
	TimedOut    bool
	Cancelled   bool
	Elapsed     time.Duration
	budget      time.Duration
}

// Err reports a degraded outcome: OptimizerTimeout when the budget ran out,
// otherwise ConstraintInfeasible when the best schedule breaks hard rules.
// Both still carry a usable best-effort schedule.
func (r *Result) Err() error {
	if r.TimedOut {
		return &customerrors.OptimizerTimeout{Budget: r.budget, Generations: r.Generations}
	}
	if len(r.Violations) > 0 {
		return &customerrors.ConstraintInfeasible{Violations: r.Violations}
	}
	return nil
}

// Optimizer runs the genetic search. It holds no state between runs.
type Optimizer struct {
	cfg Config
	now func() time.Time
}

// New creates an Optimizer.
func New(cfg Config) *Optimizer {
	return &Optimizer{cfg: cfg.withDefaults(), now: time.Now}
}

// WithClock replaces time.Now for budget accounting.
func (o *Optimizer) WithClock(now func() time.Time) *Optimizer {
	o.now = now
	return o
}

// Config returns the effective configuration.
func (o *Optimizer) Config() Config {
	return o.cfg
}

// Evaluate scores c against p and lists its hard constraint violations.
func (o *Optimizer) Evaluate(p *Problem, c *Chromosome) (Score, []customerrors.Violation, error) {
	if err := p.Prepare(); err != nil {
		return Score{}, nil, err
	}
	ev := newEvaluator(p, o.cfg.Weights, o.cfg.Undesirable)
	return ev.score(c), ev.violations(c, true), nil
}

const improvementEpsilon = 1e-9

// Run searches for the best schedule for p using a generator seeded with seed.
// Cancellation is observed between generations only; a cancelled run returns
// its best-so-far result together with the context error.
func (o *Optimizer) Run(ctx context.Context, p *Problem, seed int64) (*Result, error) {
	if err := p.Prepare(); err != nil {
		return nil, err
	}
	cfg := o.cfg
	rng := rand.New(rand.NewSource(seed))
	ev := newEvaluator(p, cfg.Weights, cfg.Undesirable)
	started := o.now()

	pop := make([]*Chromosome, cfg.PopulationSize)
	pop[0] = NewChromosome(p)
	for i := 1; i < len(pop); i++ {
		pop[i] = randomChromosome(p, rng, p.Constraints.MaxConsecutiveBlocks)
	}
	scores := make([]Score, len(pop))

	res := &Result{budget: cfg.TimeBudget}
	var best *Chromosome
	var bestScore Score
	stall := 0

	for gen := 0; gen < cfg.MaxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			res.Cancelled = true
			break
		}
		if cfg.TimeBudget > 0 && o.now().Sub(started) >= cfg.TimeBudget {
			res.TimedOut = true
			break
		}

		for i, c := range pop {
			scores[i] = ev.score(c)
		}
		order := rank(scores)

		top := order[0]
		if best == nil || scores[top].Fitness > bestScore.Fitness+improvementEpsilon {
			best, bestScore = pop[top].Clone(), scores[top]
			stall = 0
		} else {
			stall++
		}
		res.History = append(res.History, bestScore.Fitness)
		res.Generations = gen + 1

		if cfg.PlateauGenerations > 0 && stall >= cfg.PlateauGenerations {
			res.Plateaued = true
			break
		}
		if gen == cfg.MaxGenerations-1 {
			break
		}

		rate := annealedRate(cfg.MutationRate, cfg.MinMutationRate, cfg.MutationDecay, gen)
		next := make([]*Chromosome, 0, len(pop))
		for _, idx := range order[:cfg.EliteCount] {
			next = append(next, pop[idx].Clone())
		}
		for len(next) < len(pop) {
			a := pop[tournament(rng, scores, cfg.TournamentSize)]
			b := pop[tournament(rng, scores, cfg.TournamentSize)]
			var x, y *Chromosome
			if rng.Float64() < cfg.CrossoverRate {
				x, y = crossover(rng, a, b, len(p.Employees))
			} else {
				x, y = a.Clone(), b.Clone()
			}
			mutate(rng, p, x, rate)
			mutate(rng, p, y, rate)
			next = append(next, x)
			if len(next) < len(pop) {
				next = append(next, y)
			}
		}
		pop = next
	}

	if best == nil {
		// cancelled or out of budget before the first evaluation
		best = pop[0]
		bestScore = ev.score(best)
	}
	res.Best = best
	res.Score = bestScore
	res.Assignments = Decode(p, best)
	res.Violations = ev.violations(best, true)
	res.Converged = !res.TimedOut && !res.Cancelled
	res.Elapsed = o.now().Sub(started)

	if res.Cancelled {
		return res, ctx.Err()
	}
	return res, nil
}

// rank returns population indices ordered by fitness, best first. Ties keep
// population order so runs stay reproducible.
func rank(scores []Score) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]].Fitness > scores[order[j]].Fitness
	})
	return order
}
