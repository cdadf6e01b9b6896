package scheduler_test

import (
	"errors"
	"testing"
	"time"

	"staffing-engine/erlang"
	customerrors "staffing-engine/errors"
	"staffing-engine/models"
	"staffing-engine/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var queues = []models.QueueConfig{
	{ID: "support", Skill: "support", TargetServiceLevel: 0.8, TargetAnswerTime: 20 * time.Second, Priority: 1},
	{ID: "sales", Skill: "sales", TargetServiceLevel: 0.8, TargetAnswerTime: 20 * time.Second, Priority: 2},
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func newBuilder() *scheduler.Builder {
	return scheduler.NewBuilder(erlang.New(erlang.DefaultConfig()), queues)
}

func TestBuild(t *testing.T) {
	tests := map[string]struct {
		horizon  scheduler.Horizon
		buckets  []models.ForecastBucket
		expected map[string][]int
	}{
		"EvenSpread": {
			horizon: scheduler.Horizon{Start: at(9, 0), BlockDuration: time.Hour, Blocks: 3},
			buckets: []models.ForecastBucket{
				// 144 calls/h at 180s is 7.2 Erlangs: 10 agents for 80/20
				{QueueID: "support", Start: at(9, 0), End: at(11, 0), Calls: 288, AHT: 180 * time.Second},
			},
			expected: map[string][]int{"support": {10, 10, 0}, "sales": {0, 0, 0}},
		},
		"NonBlockBoundary_PartialBlocks": {
			horizon: scheduler.Horizon{Start: at(9, 0), BlockDuration: time.Hour, Blocks: 2},
			buckets: []models.ForecastBucket{
				// half the volume lands in each block: 72 calls/h needs 6
				{QueueID: "support", Start: at(9, 30), End: at(10, 30), Calls: 144, AHT: 180 * time.Second},
			},
			expected: map[string][]int{"support": {6, 6}, "sales": {0, 0}},
		},
		"Overnight": {
			horizon: scheduler.Horizon{Start: at(22, 0), BlockDuration: time.Hour, Blocks: 4},
			buckets: []models.ForecastBucket{
				{QueueID: "sales", Start: at(22, 0), End: at(2, 0), Calls: 576, AHT: 180 * time.Second},
			},
			expected: map[string][]int{"support": {0, 0, 0, 0}, "sales": {10, 10, 10, 10}},
		},
		"WeightedHandleTime": {
			horizon: scheduler.Horizon{Start: at(9, 0), BlockDuration: time.Hour, Blocks: 1},
			buckets: []models.ForecastBucket{
				{QueueID: "support", Start: at(9, 0), End: at(10, 0), Calls: 72, AHT: 120 * time.Second},
				{QueueID: "support", Start: at(9, 0), End: at(10, 0), Calls: 72, AHT: 240 * time.Second},
			},
			expected: map[string][]int{"support": {10}, "sales": {0}},
		},
		"OutsideHorizonAndUnknownQueueIgnored": {
			horizon: scheduler.Horizon{Start: at(9, 0), BlockDuration: time.Hour, Blocks: 2},
			buckets: []models.ForecastBucket{
				{QueueID: "support", Start: at(6, 0), End: at(8, 0), Calls: 500, AHT: 180 * time.Second},
				{QueueID: "support", Start: at(12, 0), End: at(13, 0), Calls: 500, AHT: 180 * time.Second},
				{QueueID: "billing", Start: at(9, 0), End: at(10, 0), Calls: 500, AHT: 180 * time.Second},
			},
			expected: map[string][]int{"support": {0, 0}, "sales": {0, 0}},
		},
		"ZeroCalls": {
			horizon: scheduler.Horizon{Start: at(9, 0), BlockDuration: 30 * time.Minute, Blocks: 2},
			buckets: []models.ForecastBucket{
				{QueueID: "support", Start: at(9, 0), End: at(10, 0), Calls: 0, AHT: 180 * time.Second},
			},
			expected: map[string][]int{"support": {0, 0}, "sales": {0, 0}},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			curve, err := newBuilder().Build(tc.horizon, tc.buckets, nil)
			require.NoError(t, err)
			require.Len(t, curve.Blocks, tc.horizon.Blocks)
			assert.Equal(t, tc.horizon.Start, curve.Start)
			assert.Empty(t, curve.UnmetDemands)
			for queue, want := range tc.expected {
				assert.Equal(t, want, curve.Required(queue), "queue %s", queue)
			}
		})
	}
}

func TestBuild_DefaultHandleTime(t *testing.T) {
	qs := []models.QueueConfig{{ID: "support", TargetServiceLevel: 0.8, TargetAnswerTime: 20 * time.Second, DefaultAHT: 180 * time.Second}}
	b := scheduler.NewBuilder(erlang.New(erlang.DefaultConfig()), qs)

	curve, err := b.Build(scheduler.Horizon{Start: at(9, 0), BlockDuration: time.Hour, Blocks: 1},
		[]models.ForecastBucket{{QueueID: "support", Start: at(9, 0), End: at(10, 0), Calls: 144}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{10}, curve.Required("support"))
}

func TestBuild_UnmetDemand(t *testing.T) {
	roster := make([]models.EmployeeCandidate, 0, 14)
	for range 12 {
		roster = append(roster, models.EmployeeCandidate{})
	}
	// two more who leave after the first block
	for range 2 {
		roster = append(roster, models.EmployeeCandidate{AvailableTo: at(10, 0)})
	}

	buckets := []models.ForecastBucket{
		{QueueID: "support", Start: at(9, 0), End: at(11, 0), Calls: 288, AHT: 180 * time.Second},
		{QueueID: "sales", Start: at(9, 0), End: at(11, 0), Calls: 288, AHT: 180 * time.Second},
	}
	curve, err := newBuilder().Build(scheduler.Horizon{Start: at(9, 0), BlockDuration: time.Hour, Blocks: 2}, buckets, roster)
	require.NoError(t, err)

	// full demand is kept even when it cannot be staffed
	assert.Equal(t, []int{10, 10}, curve.Required("support"))
	assert.Equal(t, []int{10, 10}, curve.Required("sales"))

	require.Len(t, curve.UnmetDemands, 2)
	first := curve.UnmetDemands[0]
	assert.Equal(t, 0, first.Block)
	assert.Equal(t, 20, first.TotalDemand)
	assert.Equal(t, 14, first.AllocatedAgents)
	assert.Equal(t, 6, first.UnmetAgents)
	assert.Equal(t, []models.ImpactedQueue{
		{QueueID: "sales", RequestedAgents: 10, AllocatedAgents: 4, UnmetAgents: 6, Priority: 2},
	}, first.ImpactedQueues)

	second := curve.UnmetDemands[1]
	assert.Equal(t, 1, second.Block)
	assert.Equal(t, 12, second.AllocatedAgents)
	assert.Equal(t, 8, second.UnmetAgents)
}

func TestBuild_PriorityOverrideFromForecast(t *testing.T) {
	roster := make([]models.EmployeeCandidate, 10)
	buckets := []models.ForecastBucket{
		{QueueID: "support", Start: at(9, 0), End: at(10, 0), Calls: 144, AHT: 180 * time.Second},
		// campaign hour lifts sales to support's priority
		{QueueID: "sales", Start: at(9, 0), End: at(10, 0), Calls: 144, AHT: 180 * time.Second, Priority: 1},
	}
	curve, err := newBuilder().Build(scheduler.Horizon{Start: at(9, 0), BlockDuration: time.Hour, Blocks: 1}, buckets, roster)
	require.NoError(t, err)
	require.Len(t, curve.UnmetDemands, 1)

	// equal priority 1 on both: queue ID decides, sales before support
	impacted := curve.UnmetDemands[0].ImpactedQueues
	require.Len(t, impacted, 1)
	assert.Equal(t, "support", impacted[0].QueueID)
	assert.Equal(t, 0, impacted[0].AllocatedAgents)
}

func TestBuild_Validation(t *testing.T) {
	good := scheduler.Horizon{Start: at(9, 0), BlockDuration: time.Hour, Blocks: 1}
	tests := map[string]struct {
		horizon scheduler.Horizon
		buckets []models.ForecastBucket
	}{
		"NoBlocks":      {horizon: scheduler.Horizon{Start: at(9, 0), BlockDuration: time.Hour}},
		"NoDuration":    {horizon: scheduler.Horizon{Start: at(9, 0), Blocks: 4}},
		"NegativeCalls": {horizon: good, buckets: []models.ForecastBucket{{QueueID: "support", Start: at(9, 0), End: at(10, 0), Calls: -1, AHT: time.Minute}}},
		"NoHandleTime":  {horizon: good, buckets: []models.ForecastBucket{{QueueID: "support", Start: at(9, 0), End: at(10, 0), Calls: 10}}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := newBuilder().Build(tc.horizon, tc.buckets, nil)
			assert.True(t, errors.Is(err, customerrors.ErrValidation))
		})
	}
}

func TestHeadcount(t *testing.T) {
	roster := []models.EmployeeCandidate{
		{ID: "always"},
		{ID: "morning", AvailableTo: at(12, 0)},
		{ID: "evening", AvailableFrom: at(12, 0)},
	}
	assert.Equal(t, 2, scheduler.Headcount(roster, at(9, 0), at(10, 0)))
	assert.Equal(t, 2, scheduler.Headcount(roster, at(13, 0), at(14, 0)))
	assert.Equal(t, 1, scheduler.Headcount(roster, at(11, 30), at(12, 30)))
}
