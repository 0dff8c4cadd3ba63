package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/tugsim/internal/engine"
	"github.com/driftline/tugsim/internal/scenario"
	"github.com/driftline/tugsim/internal/sim"
	"github.com/driftline/tugsim/internal/store"
)

func testManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	n := 0
	opts = append(opts,
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("session-%03d", n)
		}),
		WithEngineOptions(engine.WithEventIDs(&engine.SequenceGenerator{})),
	)
	return NewManager(opts...)
}

func TestCreate_UnknownScenario(t *testing.T) {
	m := testManager(t)
	_, err := m.Create(context.Background(), "hurricane")
	require.Error(t, err)
}

func TestBufferedInputsApplyAtomically(t *testing.T) {
	m := testManager(t)
	s, err := m.Create(context.Background(), scenario.ScenarioDefault)
	require.NoError(t, err)

	s.AdjustSpeed(scenario.AgentTugboat, 12)
	s.ChangeAngle(scenario.AgentTugboat, 120)
	assert.Equal(t, 2, s.PendingInputs())

	// Nothing applied before the tick.
	assert.Equal(t, sim.Num(8), s.State().Agents[scenario.AgentTugboat].Fields["speed"])

	_, err = s.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.PendingInputs())
	assert.Equal(t, sim.Num(12), s.State().Agents[scenario.AgentTugboat].Fields["speed"])
	assert.Equal(t, sim.Num(120), s.State().Agents[scenario.AgentTugboat].Fields["heading"])
}

func TestEmergencyStop_AllAgents(t *testing.T) {
	m := testManager(t)
	s, err := m.Create(context.Background(), scenario.ScenarioDefault)
	require.NoError(t, err)

	s.EmergencyStop()
	_, err = s.Step(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sim.Num(0), s.State().Agents[scenario.AgentTugboat].Fields["speed"])
	assert.Equal(t, sim.Num(0), s.State().Agents[scenario.AgentCargoShip].Fields["speed"])
}

func TestSensorUpdateTriggersCollisionRule(t *testing.T) {
	m := testManager(t)
	s, err := m.Create(context.Background(), scenario.ScenarioDefault)
	require.NoError(t, err)

	s.SensorUpdateDistance(10)
	res, err := s.Step(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0.9, s.State().GlobalMetrics["collision_risk"])
	var triggered bool
	for _, expl := range res.Explanations {
		if expl.RuleID == "collision_avoidance" && expl.Triggered {
			triggered = true
		}
	}
	assert.True(t, triggered)
}

func TestSessionIsolation(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	a, err := m.Create(ctx, scenario.ScenarioDefault)
	require.NoError(t, err)
	b, err := m.Create(ctx, scenario.ScenarioDefault)
	require.NoError(t, err)
	assert.Equal(t, 2, m.ActiveCount())

	a.AdjustSpeed(scenario.AgentTugboat, 1)
	_, err = a.Step(ctx)
	require.NoError(t, err)

	assert.Equal(t, sim.Num(1), a.State().Agents[scenario.AgentTugboat].Fields["speed"])
	assert.Equal(t, sim.Num(8), b.State().Agents[scenario.AgentTugboat].Fields["speed"])
	assert.Empty(t, b.History())
}

func TestReset_FreshStateDropsPending(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	s, err := m.Create(ctx, scenario.ScenarioDocking)
	require.NoError(t, err)

	_, err = s.Step(ctx)
	require.NoError(t, err)
	s.AdjustSpeed(scenario.AgentTugboat, 9)

	s, err = m.Reset(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, s.PendingInputs())
	assert.Empty(t, s.History())
	assert.Equal(t, sim.Num(4), s.State().Agents[scenario.AgentTugboat].Fields["speed"],
		"docking scenario initial speed restored")
}

func TestStepAndResetConcurrently(t *testing.T) {
	// A Step in flight finishes against the engine it started with while a
	// Reset swaps in a fresh one. Run under -race.
	m := testManager(t)
	ctx := context.Background()
	s, err := m.Create(ctx, scenario.ScenarioDefault)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_, err := s.Step(ctx)
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_, err := m.Reset(s.ID)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	_, err = s.Step(ctx)
	require.NoError(t, err)
}

func TestDelete_Idempotent(t *testing.T) {
	m := testManager(t)
	s, err := m.Create(context.Background(), scenario.ScenarioDefault)
	require.NoError(t, err)

	m.Delete(s.ID)
	m.Delete(s.ID)
	assert.Nil(t, m.Get(s.ID))
	_, err = m.Require(s.ID)
	require.Error(t, err)
}

func TestArchivalSession(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "tugsim.db"))
	require.NoError(t, err)
	defer db.Close()

	m := testManager(t, WithArchive(db))
	ctx := context.Background()
	s, err := m.Create(ctx, scenario.ScenarioEmergency)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = s.Step(ctx)
		require.NoError(t, err)
	}

	ticks, err := db.ListTicks(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ticks)

	rec, err := db.ReadSnapshot(ctx, s.ID, 1)
	require.NoError(t, err)
	assert.Contains(t, string(rec.Explanations), "engine_failure_detection")
}
