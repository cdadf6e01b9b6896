package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"staffing-engine/models"
	"staffing-engine/orchestrator"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runDriver(t *testing.T, d *orchestrator.Driver) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("driver did not stop")
		}
	}
}

func TestDriver_TriggerSupersedesInFlightCycle(t *testing.T) {
	feed := newFakeFeed(sustained("support"))
	feed.block.Store(true)
	h := newHarness(t, []models.QueueConfig{supportQueue()}, feed, nil, nil)

	d := orchestrator.NewDriver(h.engine, orchestrator.DriverConfig{Cadence: time.Hour}, zerolog.Nop())
	stop := runDriver(t, d)

	select {
	case <-feed.started:
	case <-time.After(5 * time.Second):
		t.Fatal("startup cycle never fetched")
	}
	feed.block.Store(false)
	d.Trigger()

	require.Eventually(t, func() bool { return h.publisher.count() == 1 }, 5*time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, 1, h.publisher.count(), "the blocked cycle must not publish")
	require.NotNil(t, h.engine.Latest())
}

func TestDriver_Cadence(t *testing.T) {
	h := newHarness(t, []models.QueueConfig{supportQueue()}, newFakeFeed(sustained("support")), nil, nil)
	d := orchestrator.NewDriver(h.engine, orchestrator.DriverConfig{Cadence: 20 * time.Millisecond}, zerolog.Nop())
	stop := runDriver(t, d)
	defer stop()

	assert.Eventually(t, func() bool { return h.publisher.count() >= 3 }, 5*time.Second, 5*time.Millisecond)
}

func TestDriver_SlowCycleOutlivesCadence(t *testing.T) {
	roster := &fakeRoster{employees: supportAgents(6), delay: 80 * time.Millisecond}
	h := newHarness(t, []models.QueueConfig{supportQueue()},
		newFakeFeed(sustained("support")),
		&fakeForecast{buckets: map[string][]models.ForecastBucket{"support": hourly("support", 20)}},
		roster)

	d := orchestrator.NewDriver(h.engine, orchestrator.DriverConfig{Cadence: 20 * time.Millisecond}, zerolog.Nop())
	stop := runDriver(t, d)
	defer stop()

	require.Eventually(t, func() bool { return h.publisher.count() >= 2 }, 5*time.Second, 5*time.Millisecond)
	snap := h.engine.Latest()
	require.NotNil(t, snap)
	assert.NotNil(t, snap.Schedule)
}

func TestDriver_TriggerWithinMinRetriggerDropped(t *testing.T) {
	h := newHarness(t, []models.QueueConfig{supportQueue()}, newFakeFeed(sustained("support")), nil, nil)
	d := orchestrator.NewDriver(h.engine, orchestrator.DriverConfig{Cadence: time.Hour, MinRetrigger: time.Hour}, zerolog.Nop())
	stop := runDriver(t, d)
	defer stop()

	require.Eventually(t, func() bool { return h.publisher.count() == 1 }, 5*time.Second, 5*time.Millisecond)
	d.Trigger()
	d.Trigger()
	assert.Never(t, func() bool { return h.publisher.count() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestDriver_MaterialChangeStartsCycle(t *testing.T) {
	feed := newFakeFeed(sustained("support"))
	h := newHarness(t, []models.QueueConfig{supportQueue()}, feed, nil, nil)
	d := orchestrator.NewDriver(h.engine, orchestrator.DriverConfig{Cadence: time.Hour, ProbeInterval: 10 * time.Millisecond}, zerolog.Nop())
	stop := runDriver(t, d)
	defer stop()

	require.Eventually(t, func() bool { return h.publisher.count() == 1 }, 5*time.Second, 5*time.Millisecond)
	// unchanged telemetry is never material
	assert.Never(t, func() bool { return h.publisher.count() > 1 }, 60*time.Millisecond, 10*time.Millisecond)

	feed.mu.Lock()
	tel := feed.records["support"]
	tel.CallsWaiting += 10
	feed.records["support"] = tel
	feed.mu.Unlock()

	require.Eventually(t, func() bool { return h.publisher.count() >= 2 }, 5*time.Second, 5*time.Millisecond)
	q, ok := h.engine.Latest().Queue("support")
	require.True(t, ok)
	assert.Equal(t, 13, q.CallsWaiting)
}
