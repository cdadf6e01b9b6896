package optimizer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	customerrors "staffing-engine/errors"
	"staffing-engine/models"
	"staffing-engine/optimizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dayStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func flat(n, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func smallProblem() *optimizer.Problem {
	const blocks = 8
	return &optimizer.Problem{
		Horizon: optimizer.Horizon{Start: dayStart, BlockDuration: time.Hour, Blocks: blocks},
		Queues: []optimizer.QueueDemand{
			{QueueID: "billing", Skill: "billing", Required: flat(blocks, 1)},
			{QueueID: "support", Skill: "support", Required: flat(blocks, 1)},
		},
		Employees: []models.EmployeeCandidate{
			{ID: "ana", Skills: []string{"billing"}, MaxWeeklyHours: 40, ContractedHours: 40},
			{ID: "bo", Skills: []string{"support"}, MaxWeeklyHours: 40, ContractedHours: 40},
			{ID: "cy", Skills: []string{"billing", "support"}, MaxWeeklyHours: 40, ContractedHours: 40},
		},
		Constraints: optimizer.Constraints{MaxConsecutiveBlocks: 8},
	}
}

func testConfig() optimizer.Config {
	cfg := optimizer.DefaultConfig()
	cfg.MaxGenerations = 120
	cfg.PopulationSize = 30
	cfg.TimeBudget = 0
	return cfg
}

func TestRun_DeterministicWithSeed(t *testing.T) {
	o := optimizer.New(testConfig())

	first, err := o.Run(context.Background(), smallProblem(), 42)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), smallProblem(), 42)
	require.NoError(t, err)

	assert.True(t, first.Best.Equal(second.Best))
	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, first.History, second.History)
	assert.Equal(t, first.Score, second.Score)
}

func TestRun_BestFitnessNeverDecreases(t *testing.T) {
	cfg := testConfig()
	cfg.PlateauGenerations = 0
	res, err := optimizer.New(cfg).Run(context.Background(), smallProblem(), 7)
	require.NoError(t, err)
	require.Len(t, res.History, cfg.MaxGenerations)

	for g := 1; g < len(res.History); g++ {
		assert.GreaterOrEqual(t, res.History[g], res.History[g-1], "generation %d", g)
	}
	assert.True(t, res.Converged)
	assert.False(t, res.Plateaued)
}

func TestRun_FindsFeasibleCoverage(t *testing.T) {
	res, err := optimizer.New(testConfig()).Run(context.Background(), smallProblem(), 1)
	require.NoError(t, err)

	assert.Empty(t, res.Violations)
	assert.NoError(t, res.Err())
	assert.Greater(t, res.Score.CoverageRatio, 0.5)
	assert.NotEmpty(t, res.Assignments)

	for _, a := range res.Assignments {
		switch a.EmployeeID {
		case "ana":
			assert.Equal(t, "billing", a.Skill)
		case "bo":
			assert.Equal(t, "support", a.Skill)
		}
		assert.True(t, a.End.After(a.Start))
	}
}

func TestRun_NoOverlappingAssignments(t *testing.T) {
	res, err := optimizer.New(testConfig()).Run(context.Background(), smallProblem(), 99)
	require.NoError(t, err)

	byEmployee := make(map[string][]models.ScheduleAssignment)
	for _, a := range res.Assignments {
		byEmployee[a.EmployeeID] = append(byEmployee[a.EmployeeID], a)
	}
	for id, list := range byEmployee {
		for i := range list {
			for j := i + 1; j < len(list); j++ {
				overlap := list[i].Start.Before(list[j].End) && list[j].Start.Before(list[i].End)
				assert.False(t, overlap, "employee %s has overlapping assignments", id)
			}
		}
	}
}

func TestRun_ReportsInfeasibleConstraints(t *testing.T) {
	p := smallProblem()
	// already over the weekly cap before anything is scheduled
	p.Employees[0].ScheduledHours = 45

	res, err := optimizer.New(testConfig()).Run(context.Background(), p, 3)
	require.NoError(t, err)
	require.NotEmpty(t, res.Violations)
	assert.Equal(t, customerrors.ViolationWeeklyHours, res.Violations[0].Kind)
	assert.Equal(t, "ana", res.Violations[0].EmployeeID)

	err = res.Err()
	assert.True(t, errors.Is(err, customerrors.ErrConstraintInfeasible))
	var infeasible *customerrors.ConstraintInfeasible
	require.True(t, errors.As(err, &infeasible))
	assert.Equal(t, res.Violations, infeasible.Violations)
}

func TestRun_TimeBudget(t *testing.T) {
	cfg := testConfig()
	cfg.TimeBudget = 5 * time.Second
	cfg.PlateauGenerations = 0

	now := dayStart
	tick := func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	res, err := optimizer.New(cfg).WithClock(tick).Run(context.Background(), smallProblem(), 5)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Converged)
	assert.Less(t, res.Generations, cfg.MaxGenerations)
	assert.NotNil(t, res.Best)
	assert.True(t, errors.Is(res.Err(), customerrors.ErrOptimizerTimeout))
}

func TestRun_CancelledBetweenGenerations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := optimizer.New(testConfig()).Run(ctx, smallProblem(), 5)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.True(t, res.Cancelled)
	assert.False(t, res.Converged)
	assert.Equal(t, 0, res.Generations)
	assert.Empty(t, res.Assignments)
}

func TestRun_InvalidProblem(t *testing.T) {
	tests := map[string]func(p *optimizer.Problem){
		"NoBlocks":        func(p *optimizer.Problem) { p.Horizon.Blocks = 0 },
		"NoBlockDuration": func(p *optimizer.Problem) { p.Horizon.BlockDuration = 0 },
		"ShortCurve":      func(p *optimizer.Problem) { p.Queues[0].Required = []int{1} },
		"NegativeDemand":  func(p *optimizer.Problem) { p.Queues[1].Required[3] = -1 },
		"DuplicateQueue":  func(p *optimizer.Problem) { p.Queues[1] = p.Queues[0] },
		"DuplicateEmployee": func(p *optimizer.Problem) {
			p.Employees[1].ID = p.Employees[0].ID
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := smallProblem()
			mutate(p)
			_, err := optimizer.New(testConfig()).Run(context.Background(), p, 1)
			assert.True(t, errors.Is(err, customerrors.ErrValidation))
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	p := smallProblem()
	at := func(block int) time.Time { return dayStart.Add(time.Duration(block) * time.Hour) }
	assignments := []models.ScheduleAssignment{
		{EmployeeID: "ana", QueueID: "billing", Skill: "billing", Start: at(0), End: at(3)},
		{EmployeeID: "ana", QueueID: "billing", Skill: "billing", Start: at(5), End: at(8)},
		{EmployeeID: "bo", QueueID: "support", Skill: "support", Start: at(2), End: at(6)},
		{EmployeeID: "cy", QueueID: "billing", Skill: "billing", Start: at(0), End: at(2)},
		{EmployeeID: "cy", QueueID: "support", Skill: "support", Start: at(2), End: at(4)},
	}

	c, err := optimizer.Encode(p, assignments)
	require.NoError(t, err)
	assert.Equal(t, assignments, optimizer.Decode(p, c))
	assert.Equal(t, optimizer.Unassigned, c.Gene(0, 4))
}

func TestEncode_Rejects(t *testing.T) {
	at := func(block int) time.Time { return dayStart.Add(time.Duration(block) * time.Hour) }
	tests := map[string][]models.ScheduleAssignment{
		"Overlap": {
			{EmployeeID: "ana", QueueID: "billing", Skill: "billing", Start: at(0), End: at(3)},
			{EmployeeID: "ana", QueueID: "billing", Skill: "billing", Start: at(2), End: at(4)},
		},
		"UnknownEmployee": {
			{EmployeeID: "zed", QueueID: "billing", Skill: "billing", Start: at(0), End: at(1)},
		},
		"UnknownQueue": {
			{EmployeeID: "ana", QueueID: "sales", Skill: "sales", Start: at(0), End: at(1)},
		},
		"Misaligned": {
			{EmployeeID: "ana", QueueID: "billing", Skill: "billing", Start: at(0).Add(time.Minute), End: at(2)},
		},
		"BeyondHorizon": {
			{EmployeeID: "ana", QueueID: "billing", Skill: "billing", Start: at(6), End: at(10)},
		},
	}
	for name, assignments := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := optimizer.Encode(smallProblem(), assignments)
			assert.True(t, errors.Is(err, customerrors.ErrValidation))
		})
	}
}

func TestEvaluate_HardConstraints(t *testing.T) {
	p := smallProblem()
	p.Constraints = optimizer.Constraints{MaxConsecutiveBlocks: 3, MinRestBlocks: 2}
	p.Employees[1].AvailableFrom = dayStart.Add(4 * time.Hour)
	at := func(block int) time.Time { return dayStart.Add(time.Duration(block) * time.Hour) }

	c, err := optimizer.Encode(p, []models.ScheduleAssignment{
		// four in a row breaks the consecutive limit once
		{EmployeeID: "ana", QueueID: "billing", Skill: "billing", Start: at(0), End: at(4)},
		// one idle block then back to work breaks the rest rule
		{EmployeeID: "ana", QueueID: "billing", Skill: "billing", Start: at(5), End: at(6)},
		// before availability
		{EmployeeID: "bo", QueueID: "support", Skill: "support", Start: at(3), End: at(5)},
	})
	require.NoError(t, err)
	// bo cannot work billing
	c.Set(1, 7, 0)

	score, violations, err := optimizer.New(testConfig()).Evaluate(p, c)
	require.NoError(t, err)

	kinds := make(map[string]int)
	for _, v := range violations {
		kinds[v.Kind]++
	}
	assert.Equal(t, map[string]int{
		customerrors.ViolationConsecutive:  1,
		customerrors.ViolationRest:         1,
		customerrors.ViolationAvailability: 1,
		customerrors.ViolationSkill:        1,
	}, kinds)
	assert.Equal(t, len(violations), score.Violations)
	assert.Less(t, score.Fitness, 0.0)
}

func TestEvaluate_CoverageCappedPerBlock(t *testing.T) {
	p := smallProblem()
	at := func(block int) time.Time { return dayStart.Add(time.Duration(block) * time.Hour) }
	c, err := optimizer.Encode(p, []models.ScheduleAssignment{
		{EmployeeID: "ana", QueueID: "billing", Skill: "billing", Start: at(0), End: at(2)},
		{EmployeeID: "cy", QueueID: "billing", Skill: "billing", Start: at(0), End: at(2)},
	})
	require.NoError(t, err)

	score, violations, err := optimizer.New(testConfig()).Evaluate(p, c)
	require.NoError(t, err)
	assert.Empty(t, violations)
	assert.InDelta(t, 2.0, score.Coverage, 1e-9, "two blocks fully covered, double staffing adds nothing")
	assert.Equal(t, 2, score.Idle)
	assert.InDelta(t, 2.0/16.0, score.CoverageRatio, 1e-9)
}

func TestEvaluate_OvertimeAndFairness(t *testing.T) {
	p := smallProblem()
	p.Horizon.Start = time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC) // 16:00-24:00
	p.Employees[0].ScheduledHours = 38
	at := func(block int) time.Time { return p.Horizon.Start.Add(time.Duration(block) * time.Hour) }

	c, err := optimizer.Encode(p, []models.ScheduleAssignment{
		// 20:00-24:00 is undesirable with the default window
		{EmployeeID: "ana", QueueID: "billing", Skill: "billing", Start: at(4), End: at(8)},
	})
	require.NoError(t, err)

	score, _, err := optimizer.New(testConfig()).Evaluate(p, c)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, score.Overtime, 1e-9)
	assert.Greater(t, score.Fairness, 0.0)
}
