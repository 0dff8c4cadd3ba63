package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/tugsim/internal/engine"
	"github.com/driftline/tugsim/internal/sim"
)

func TestDefault_InitialState(t *testing.T) {
	s := Default()

	assert.Equal(t, []string{AgentCargoShip, AgentTugboat}, s.AgentIDs())
	assert.Equal(t, sim.Num(8), s.Agents[AgentTugboat].Fields["speed"])
	assert.Equal(t, sim.Num(90), s.Agents[AgentTugboat].Fields["heading"])
	assert.Equal(t, sim.Num(6), s.Agents[AgentCargoShip].Fields["speed"])
	assert.Equal(t, sim.Str("open_water"), s.Environment["zone"])
	assert.Equal(t, 50.0, s.GlobalMetrics["tugboat_cargo_distance"])
	assert.Equal(t, 1.0, s.GlobalMetrics["engine_status"])
	assert.Equal(t, 0, s.TimeStep)
}

func TestByName(t *testing.T) {
	for _, name := range Names() {
		f, err := ByName(name)
		require.NoError(t, err)
		require.NotNil(t, f())
	}

	_, err := ByName("hurricane")
	require.Error(t, err)
}

func TestFactories_IndependentStates(t *testing.T) {
	a, b := Default(), Default()
	a.Agents[AgentTugboat].Fields["speed"] = sim.Num(1)
	assert.Equal(t, sim.Num(8), b.Agents[AgentTugboat].Fields["speed"])
}

func TestHarborRules_Registers(t *testing.T) {
	rs := HarborRules()
	require.Greater(t, rs.Len(), 8)
	require.NotNil(t, rs.ByID("engine_failure_detection"))
	require.NotNil(t, rs.ByID("emergency_anchor"))

	order := rs.InEvaluationOrder()
	assert.Equal(t, "engine_failure_detection", order[0].ID)
}

func TestEmergencyScenario_RuleChain(t *testing.T) {
	e := engine.New(HarborRules(), Emergency(), engine.WithEventIDs(&engine.SequenceGenerator{}))

	res, err := e.Step()
	require.NoError(t, err)

	// Detection spawns the event and triggers the anchor drop in the same
	// tick; the tugboat is stopped.
	v, err := sim.Resolve(e.State(), "agents.tugboat.speed")
	require.NoError(t, err)
	assert.Equal(t, sim.Num(0), v)
	assert.Equal(t, 1.0, e.State().GlobalMetrics["anchor_deployed"])

	require.GreaterOrEqual(t, len(res.Explanations), 2)
	detect := res.Explanations[0]
	anchor := res.Explanations[1]
	assert.Equal(t, "engine_failure_detection", detect.RuleID)
	assert.Equal(t, []string{"engine_failure"}, detect.EventsGenerated)
	assert.Equal(t, "emergency_anchor", anchor.RuleID)
	assert.Equal(t, "engine_failure_detection", anchor.TriggeredBy)
	assert.True(t, anchor.Triggered)
}

func TestFogScenario_GuidanceChain(t *testing.T) {
	e := engine.New(HarborRules(), Fog(), engine.WithEventIDs(&engine.SequenceGenerator{}))

	_, err := e.Step()
	require.NoError(t, err)

	// Visibility 0.2: the clamp and the fog/guidance event chain both fire.
	v, err := sim.Resolve(e.State(), "agents.tugboat.speed")
	require.NoError(t, err)
	speed, ok := sim.AsNum(v)
	require.True(t, ok)
	assert.LessOrEqual(t, speed, 3.0)
	assert.Equal(t, 1.0, e.State().GlobalMetrics["guidance_requested"])
	require.NotNil(t, e.State().Events.Get("fog_bank"))
}

func TestDockingScenario_FinalStop(t *testing.T) {
	e := engine.New(HarborRules(), Docking(), engine.WithEventIDs(&engine.SequenceGenerator{}))

	res, err := e.Step()
	require.NoError(t, err)

	v, err := sim.Resolve(e.State(), "agents.tugboat.speed")
	require.NoError(t, err)
	assert.Equal(t, sim.Num(0), v, "final stop folds into the approach clamp")
	require.NotNil(t, e.State().Events.Get("docking_complete"))

	// Heading alignment recommends the berth heading without mutating.
	var rec *sim.Recommendation
	for _, expl := range res.Explanations {
		if expl.RuleID == "docking_heading_alignment" {
			require.Len(t, expl.Recommendations, 1)
			rec = &expl.Recommendations[0]
		}
	}
	require.NotNil(t, rec)
	assert.Equal(t, sim.Num(0), rec.Value)
	assert.Equal(t, sim.Num(65), e.State().Agents[AgentTugboat].Fields["heading"])
}

func TestDefaultScenario_QuietTick(t *testing.T) {
	e := engine.New(HarborRules(), Default(), engine.WithEventIDs(&engine.SequenceGenerator{}))

	res, err := e.Step()
	require.NoError(t, err)

	// Open water, good visibility, healthy engine: nothing triggers.
	for _, expl := range res.Explanations {
		assert.False(t, expl.Triggered, "rule %s should stay quiet", expl.RuleID)
	}
	v, err := sim.Resolve(e.State(), "agents.tugboat.speed")
	require.NoError(t, err)
	assert.Equal(t, sim.Num(8), v)
}

func TestBookkeepingMetricsAccumulate(t *testing.T) {
	e := engine.New(HarborRules(), Emergency(), engine.WithEventIDs(&engine.SequenceGenerator{}))

	// Each emergency tick triggers engine_failure_detection and
	// emergency_anchor, three actions apiece.
	_, err := e.Step()
	require.NoError(t, err)
	assert.Equal(t, 6.0, e.State().GlobalMetrics["decision_count"])
	assert.Equal(t, 2.0, e.State().GlobalMetrics["rules_triggered_count"])

	_, err = e.Step()
	require.NoError(t, err)
	assert.Equal(t, 12.0, e.State().GlobalMetrics["decision_count"], "actions applied, accumulated across ticks")
	assert.Equal(t, 4.0, e.State().GlobalMetrics["rules_triggered_count"])
}
