package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_ImmutableAfterCapture(t *testing.T) {
	s := harborState()
	snap := Snapshot(s)

	require.NoError(t, Write(s, "agents.tugboat_1.speed", Num(2)))
	s.GlobalMetrics["collision_risk"] = 0.95
	s.Events.Spawn(&Event{ID: "ev-1", EventType: "late", Severity: SeverityNormal})

	assert.Equal(t, Num(8), snap.Agents["tugboat_1"].Fields["speed"])
	assert.Equal(t, 0.2, snap.GlobalMetrics["collision_risk"])
	assert.Empty(t, snap.Events)
}

func TestSnapshot_CanonicalStable(t *testing.T) {
	s := harborState()
	s.TimeStep = 3
	snap := Snapshot(s)
	snap.Explanations = []*Explanation{
		{
			RuleID:    "collision_avoidance",
			Priority:  10,
			Triggered: true,
			Timestamp: 3,
			LogicUsed: LogicAnd,
			ConditionsEvaluated: []ConditionEvaluation{
				{
					Left:      "global_metrics.collision_risk",
					LeftValue: Num(0.2),
					Operator:  OpGreater,
					Right:     "0.7",
					RightValue: Num(0.7),
					Result:    false,
				},
			},
			Message: "risk below threshold",
			Cause:   map[string]Value{"global_metrics.collision_risk": Num(0.2)},
			Effect:  map[string]Value{},
		},
	}

	first, err := snap.MarshalCanonical()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := snap.MarshalCanonical()
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}

	// Spot-check shape without pinning the full byte string.
	assert.Contains(t, string(first), `"time_step":3`)
	assert.Contains(t, string(first), `"rule_id":"collision_avoidance"`)
}
