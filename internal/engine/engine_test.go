package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/tugsim/internal/sim"
)

func numPtr(f float64) *float64 { return &f }

func speedLimitRule() *sim.Rule {
	return &sim.Rule{
		ID:       "speed_limit",
		Priority: 5,
		Conditions: []sim.Condition{
			sim.Cond("agents.tugboat_1.speed", sim.OpGreater, sim.Num(7)),
		},
		Actions: []sim.Action{
			{Type: sim.ActionSet, Target: "agents.tugboat_1.speed", Value: termPtr(sim.Lit(sim.Num(5)))},
		},
		ExplanationTemplate: "speed limited to {{agents.tugboat_1.speed}}",
	}
}

func termPtr(t sim.Term) *sim.Term { return &t }

func TestStep_SpeedRuleScenario(t *testing.T) {
	s := testState(t)
	require.NoError(t, sim.Write(s, "agents.tugboat_1.speed", sim.Num(6)))

	rs := sim.NewRuleSet()
	rs.MustAdd(speedLimitRule())
	e := New(rs, s, WithEventIDs(&SequenceGenerator{}))

	// Input raises speed above the threshold; the rule caps it.
	res, err := e.Step(sim.WriteRequest{Path: "agents.tugboat_1.speed", Value: sim.Num(8)})
	require.NoError(t, err)

	v, err := sim.Resolve(e.State(), "agents.tugboat_1.speed")
	require.NoError(t, err)
	assert.Equal(t, sim.Num(5), v)

	require.Len(t, res.Explanations, 1)
	expl := res.Explanations[0]
	assert.True(t, expl.Triggered)
	assert.Equal(t, "speed_limit", expl.RuleID)
	assert.Equal(t, "speed limited to 5", expl.Message)
	assert.Equal(t, sim.Num(8), expl.Cause["agents.tugboat_1.speed"])
	assert.Equal(t, sim.Num(5), expl.Effect["agents.tugboat_1.speed"])
}

func TestStep_FailedInputAbortsTick(t *testing.T) {
	s := testState(t)
	rs := sim.NewRuleSet()
	rs.MustAdd(speedLimitRule())
	e := New(rs, s)

	_, err := e.Step(sim.WriteRequest{Path: "agents.ghost_ship.speed", Value: sim.Num(8)})
	require.Error(t, err)
	assert.Equal(t, 0, e.State().TimeStep)
	assert.Empty(t, e.History())
}

func TestStep_PriorityOrderingOfExplanations(t *testing.T) {
	s := testState(t)
	rs := sim.NewRuleSet()
	rs.MustAdd(
		&sim.Rule{ID: "low", Priority: 1, Actions: []sim.Action{
			{Type: sim.ActionSet, Target: "environment.low_ran", Value: termPtr(sim.Lit(sim.Bool(true)))},
		}},
		&sim.Rule{ID: "high", Priority: 9, Actions: []sim.Action{
			{Type: sim.ActionSet, Target: "environment.high_ran", Value: termPtr(sim.Lit(sim.Bool(true)))},
		}},
	)
	e := New(rs, s)

	res, err := e.Step()
	require.NoError(t, err)
	require.Len(t, res.Explanations, 2)
	assert.Equal(t, "high", res.Explanations[0].RuleID)
	assert.Equal(t, "low", res.Explanations[1].RuleID)
}

func TestStep_EventChainVisibility(t *testing.T) {
	s := testState(t)
	s.GlobalMetrics["collision_risk"] = 0.9

	rs := sim.NewRuleSet()
	rs.MustAdd(
		&sim.Rule{
			ID:       "detect_collision_risk",
			Priority: 10,
			Conditions: []sim.Condition{
				sim.Cond("global_metrics.collision_risk", sim.OpGreater, sim.Num(0.7)),
			},
			Actions: []sim.Action{
				{Type: sim.ActionSpawnEvent, EventType: "collision_risk", EventSeverity: sim.SeverityCritical},
			},
		},
		&sim.Rule{
			ID:       "evasive_maneuver",
			Priority: 1,
			Conditions: []sim.Condition{
				sim.Cond("events.collision_risk", sim.OpEqual, sim.Bool(true)),
			},
			Actions: []sim.Action{
				{Type: sim.ActionSet, Target: "agents.tugboat_1.speed", Value: termPtr(sim.Lit(sim.Num(2)))},
			},
		},
	)
	e := New(rs, s, WithEventIDs(&SequenceGenerator{}))

	res, err := e.Step()
	require.NoError(t, err)
	require.Len(t, res.Explanations, 2)

	a, b := res.Explanations[0], res.Explanations[1]
	assert.Equal(t, "detect_collision_risk", a.RuleID)
	assert.Equal(t, []string{"collision_risk"}, a.EventsGenerated)

	// The event is visible within the same tick, via conditions rather
	// than TriggeredBy.
	assert.Equal(t, "evasive_maneuver", b.RuleID)
	assert.True(t, b.Triggered)
	assert.Empty(t, b.TriggeredBy)

	v, err := sim.Resolve(e.State(), "agents.tugboat_1.speed")
	require.NoError(t, err)
	assert.Equal(t, sim.Num(2), v)
}

func TestStep_TriggerRuleRunsBeforeScheduledRules(t *testing.T) {
	s := testState(t)
	rs := sim.NewRuleSet()
	rs.MustAdd(
		&sim.Rule{ID: "first", Priority: 10, Actions: []sim.Action{
			{Type: sim.ActionTriggerRule, RuleID: "chained"},
		}},
		&sim.Rule{ID: "middle", Priority: 5, Actions: []sim.Action{
			{Type: sim.ActionSet, Target: "environment.order", Value: termPtr(sim.Lit(sim.Str("middle")))},
		}},
		&sim.Rule{ID: "chained", Priority: 1, Actions: []sim.Action{
			{Type: sim.ActionSet, Target: "environment.order", Value: termPtr(sim.Lit(sim.Str("chained")))},
		}},
	)
	e := New(rs, s)

	res, err := e.Step()
	require.NoError(t, err)

	var order []string
	for _, expl := range res.Explanations {
		order = append(order, expl.RuleID)
	}
	assert.Equal(t, []string{"first", "chained", "middle"}, order)

	chained := res.Explanations[1]
	assert.Equal(t, "first", chained.TriggeredBy)
	assert.Equal(t, []string{"chained"}, res.Explanations[0].TriggeredRules)

	// middle ran last, so its write survives under LAST_WRITE... here both
	// writes conflict under default PRIORITY: middle (5) beats chained (1).
	v, err := sim.Resolve(e.State(), "environment.order")
	require.NoError(t, err)
	assert.Equal(t, sim.Str("middle"), v)
	require.Len(t, res.Conflicts, 1)
}

func TestStep_IdempotentRetrigger(t *testing.T) {
	s := testState(t)
	rs := sim.NewRuleSet()
	rs.MustAdd(
		&sim.Rule{ID: "noisy", Priority: 10, Actions: []sim.Action{
			{Type: sim.ActionTriggerRule, RuleID: "target"},
			{Type: sim.ActionTriggerRule, RuleID: "target"},
		}},
		&sim.Rule{ID: "target", Priority: 1, Actions: []sim.Action{
			{Type: sim.ActionAdd, Target: "global_metrics.trigger_count", Value: termPtr(sim.Lit(sim.Num(1)))},
		}},
	)
	e := New(rs, s)

	res, err := e.Step()
	require.NoError(t, err)

	// target evaluated exactly once despite two triggers.
	require.Len(t, res.Explanations, 2)
	assert.Equal(t, 1.0, e.State().GlobalMetrics["trigger_count"])

	noisy := res.Explanations[0]
	assert.Equal(t, []string{"target"}, noisy.TriggeredRules)
	require.Len(t, noisy.SideEffects, 1)
	assert.Equal(t, "noop_retrigger", noisy.SideEffects[0].Kind)
}

func TestStep_ChainOverflow(t *testing.T) {
	s := testState(t)
	rs := sim.NewRuleSet()
	// ping triggers pong triggers ping-2... use a chain of distinct rules
	// longer than the bound.
	rs.MustAdd(
		&sim.Rule{ID: "chain_0", Priority: 10, Actions: []sim.Action{
			{Type: sim.ActionSet, Target: "global_metrics.chain_progress", Value: termPtr(sim.Lit(sim.Num(0)))},
			{Type: sim.ActionTriggerRule, RuleID: "chain_1"},
		}},
		&sim.Rule{ID: "chain_1", Priority: 0, Actions: []sim.Action{
			{Type: sim.ActionTriggerRule, RuleID: "chain_2"},
		}},
		&sim.Rule{ID: "chain_2", Priority: 0, Actions: []sim.Action{
			{Type: sim.ActionTriggerRule, RuleID: "chain_3"},
		}},
		&sim.Rule{ID: "chain_3", Priority: 0, Actions: []sim.Action{
			{Type: sim.ActionTriggerRule, RuleID: "chain_0"},
		}},
	)
	e := New(rs, s, WithMaxChainDepth(2))

	res, err := e.Step()
	require.NoError(t, err, "overflow must not fail the tick")
	require.NotNil(t, res.ChainOverflow)
	assert.Equal(t, 2, res.ChainOverflow.Limit)

	// chain_0, chain_1, chain_2 evaluate; chain_2's trigger of chain_3
	// would reach depth 3 and overflows. chain_3 still evaluates later
	// from the base queue, where its trigger of chain_0 is a no-op.
	overflowed := res.Explanations[2]
	assert.Equal(t, "chain_2", overflowed.RuleID)
	require.NotEmpty(t, overflowed.SideEffects)
	assert.Equal(t, "chain_overflow", overflowed.SideEffects[0].Kind)

	// Prior state changes are retained.
	assert.Contains(t, e.State().GlobalMetrics, "chain_progress")
	assert.Equal(t, 1, e.State().TimeStep)
}

func TestStep_ActionErrorAbortsRuleNotTick(t *testing.T) {
	s := testState(t)
	rs := sim.NewRuleSet()
	rs.MustAdd(
		&sim.Rule{ID: "broken", Priority: 10, Actions: []sim.Action{
			{Type: sim.ActionSet, Target: "environment.first", Value: termPtr(sim.Lit(sim.Num(1)))},
			{Type: sim.ActionClamp, Target: "environment.first"}, // missing bounds
			{Type: sim.ActionSet, Target: "environment.never", Value: termPtr(sim.Lit(sim.Num(2)))},
		}},
		&sim.Rule{ID: "healthy", Priority: 1, Actions: []sim.Action{
			{Type: sim.ActionSet, Target: "environment.second", Value: termPtr(sim.Lit(sim.Num(3)))},
		}},
	)
	e := New(rs, s)

	res, err := e.Step()
	require.NoError(t, err)

	// First action committed, the malformed one recorded, the third skipped.
	assert.Contains(t, e.State().Environment, "first")
	assert.NotContains(t, e.State().Environment, "never")
	assert.Contains(t, e.State().Environment, "second", "other rules continue")

	broken := res.Explanations[0]
	require.Len(t, broken.ActionsApplied, 2)
	assert.NotEmpty(t, broken.ActionsApplied[1].Error)

	var kinds []string
	for _, se := range broken.SideEffects {
		kinds = append(kinds, se.Kind)
	}
	assert.Contains(t, kinds, "error")
}

func TestStep_AddDefaultsToZero(t *testing.T) {
	s := testState(t)
	rs := sim.NewRuleSet()
	rs.MustAdd(&sim.Rule{ID: "count", Priority: 1, Actions: []sim.Action{
		{Type: sim.ActionAdd, Target: "global_metrics.near_misses", Value: termPtr(sim.Lit(sim.Num(1)))},
	}})
	e := New(rs, s)

	_, err := e.Step()
	require.NoError(t, err)
	_, err = e.Step()
	require.NoError(t, err)
	assert.Equal(t, 2.0, e.State().GlobalMetrics["near_misses"])
}

func TestStep_RecommendDoesNotMutate(t *testing.T) {
	s := testState(t)
	rs := sim.NewRuleSet()
	rs.MustAdd(&sim.Rule{ID: "advise", Priority: 1, Actions: []sim.Action{
		{Type: sim.ActionRecommend, Target: "agents.tugboat_1.speed", Value: termPtr(sim.Lit(sim.Num(4)))},
	}})
	e := New(rs, s)

	res, err := e.Step()
	require.NoError(t, err)

	v, err := sim.Resolve(e.State(), "agents.tugboat_1.speed")
	require.NoError(t, err)
	assert.Equal(t, sim.Num(8), v, "RECOMMEND must not write state")

	require.Len(t, res.Explanations[0].Recommendations, 1)
	assert.Equal(t, sim.Num(4), res.Explanations[0].Recommendations[0].Value)
}

func TestStep_EventsClearedEachTick(t *testing.T) {
	s := testState(t)
	rs := sim.NewRuleSet()
	rs.MustAdd(&sim.Rule{
		ID: "one_shot", Priority: 1,
		Conditions: []sim.Condition{sim.Cond("environment.visibility", sim.OpLess, sim.Num(1))},
		Actions:    []sim.Action{{Type: sim.ActionSpawnEvent, EventType: "fog_bank"}},
	})
	e := New(rs, s, WithEventIDs(&SequenceGenerator{}))

	_, err := e.Step(sim.WriteRequest{Path: "environment.visibility", Value: sim.Num(0.5)})
	require.NoError(t, err)
	assert.Equal(t, 1, e.State().Events.Len())

	_, err = e.Step(sim.WriteRequest{Path: "environment.visibility", Value: sim.Num(10)})
	require.NoError(t, err)
	assert.Equal(t, 0, e.State().Events.Len(), "events are tick-scoped")
}

func TestStep_PersistentEventsOption(t *testing.T) {
	s := testState(t)
	rs := sim.NewRuleSet()
	rs.MustAdd(&sim.Rule{
		ID: "one_shot", Priority: 1,
		Conditions: []sim.Condition{sim.Cond("environment.visibility", sim.OpLess, sim.Num(1))},
		Actions:    []sim.Action{{Type: sim.ActionSpawnEvent, EventType: "fog_bank"}},
	})
	e := New(rs, s, WithEventIDs(&SequenceGenerator{}), WithPersistentEvents())

	_, err := e.Step(sim.WriteRequest{Path: "environment.visibility", Value: sim.Num(0.5)})
	require.NoError(t, err)
	_, err = e.Step(sim.WriteRequest{Path: "environment.visibility", Value: sim.Num(10)})
	require.NoError(t, err)
	assert.Equal(t, 1, e.State().Events.Len(), "events persist until overwritten")
}

func TestStep_UnresolvedTemplatePlaceholderFlagged(t *testing.T) {
	s := testState(t)
	rs := sim.NewRuleSet()
	rs.MustAdd(&sim.Rule{
		ID: "verbose", Priority: 1,
		Actions:             []sim.Action{{Type: sim.ActionLog, LogMessage: "tick"}},
		ExplanationTemplate: "wave height {{environment.wave_height}}",
	})
	e := New(rs, s)

	res, err := e.Step()
	require.NoError(t, err)

	expl := res.Explanations[0]
	assert.Equal(t, "wave height {{environment.wave_height}}", expl.Message)

	var kinds []string
	for _, se := range expl.SideEffects {
		kinds = append(kinds, se.Kind)
	}
	assert.Contains(t, kinds, "unresolved_placeholder")
}

func TestStep_Determinism(t *testing.T) {
	run := func() []string {
		s := testState(t)
		s.GlobalMetrics["collision_risk"] = 0.9
		rs := sim.NewRuleSet()
		rs.MustAdd(
			&sim.Rule{
				ID: "detect", Priority: 10,
				Conditions: []sim.Condition{sim.Cond("global_metrics.collision_risk", sim.OpGreater, sim.Num(0.7))},
				Actions: []sim.Action{
					{Type: sim.ActionSpawnEvent, EventType: "collision_risk", EventSeverity: sim.SeverityWarning},
					{Type: sim.ActionTriggerRule, RuleID: "slow_down"},
				},
			},
			&sim.Rule{
				ID: "slow_down", Priority: 2,
				Actions: []sim.Action{{Type: sim.ActionClamp, Target: "agents.tugboat_1.speed", MinValue: numPtr(0), MaxValue: numPtr(4)}},
			},
			&sim.Rule{
				ID: "escort", Priority: 5,
				Conditions: []sim.Condition{sim.Cond("events.collision_risk", sim.OpEqual, sim.Bool(true))},
				Actions:    []sim.Action{{Type: sim.ActionAdd, Target: "global_metrics.escort_requests", Value: termPtr(sim.Lit(sim.Num(1)))}},
			},
		)
		e := New(rs, s, WithEventIDs(&SequenceGenerator{}))

		var lines []string
		for i := 0; i < 5; i++ {
			res, err := e.Step()
			require.NoError(t, err)
			raw, err := res.Snapshot.MarshalCanonical()
			require.NoError(t, err)
			lines = append(lines, string(raw))
		}
		return lines
	}

	assert.Equal(t, run(), run(), "independent runs must produce identical snapshots")
}

func TestSnapshotAt_ReplayAccess(t *testing.T) {
	s := testState(t)
	rs := sim.NewRuleSet()
	rs.MustAdd(speedLimitRule())
	e := New(rs, s)

	for i := 0; i < 3; i++ {
		_, err := e.Step()
		require.NoError(t, err)
	}

	snap, err := e.SnapshotAt(2)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TimeStep)

	_, err = e.SnapshotAt(0)
	require.Error(t, err)
	_, err = e.SnapshotAt(4)
	require.Error(t, err)

	assert.Len(t, e.History(), 3)
}
