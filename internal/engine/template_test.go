package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/tugsim/internal/sim"
)

func lookupFrom(m map[string]sim.Value) lookupFunc {
	return func(path string) (sim.Value, bool) {
		v, ok := m[path]
		return v, ok
	}
}

func TestExpandTemplate(t *testing.T) {
	lookup := lookupFrom(map[string]sim.Value{
		"agents.tugboat_1.speed":        sim.Num(5),
		"global_metrics.collision_risk": sim.Num(0.85),
		"agents.tugboat_1.zone":         sim.Str("no_wake_zone"),
	})

	tests := []struct {
		name           string
		tmpl           string
		want           string
		wantUnresolved int
	}{
		{
			"single path",
			"reduced speed to {{agents.tugboat_1.speed}} knots",
			"reduced speed to 5 knots",
			0,
		},
		{
			"string value",
			"entered {{agents.tugboat_1.zone}}",
			"entered no_wake_zone",
			0,
		},
		{
			"arithmetic",
			"target speed {{agents.tugboat_1.speed - 2}}",
			"target speed 3",
			0,
		},
		{
			"parenthesized",
			"{{(agents.tugboat_1.speed + 1) * 2}}",
			"12",
			0,
		},
		{
			"unresolved left verbatim",
			"risk {{global_metrics.wave_height}} recorded",
			"risk {{global_metrics.wave_height}} recorded",
			1,
		},
		{
			"no placeholders",
			"anchor deployed",
			"anchor deployed",
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, unresolved := expandTemplate(tt.tmpl, lookup)
			assert.Equal(t, tt.want, got)
			assert.Len(t, unresolved, tt.wantUnresolved)
		})
	}
}

func TestEvalExpr(t *testing.T) {
	lookup := lookupFrom(map[string]sim.Value{
		"agents.tugboat_1.speed": sim.Num(8),
	})

	v, err := evalExpr("agents.tugboat_1.speed / 2", lookup)
	require.NoError(t, err)
	assert.Equal(t, sim.Num(4), v)

	v, err = evalExpr("-3 + 5", lookup)
	require.NoError(t, err)
	assert.Equal(t, sim.Num(2), v)

	_, err = evalExpr("agents.tugboat_1.speed / 0", lookup)
	require.Error(t, err)

	_, err = evalExpr("bogus_token", lookup)
	require.Error(t, err)
}

func TestResolveActionValue(t *testing.T) {
	s := testState(t)

	// Path term reads state.
	v, err := resolveActionValue(s, sim.PathTerm("agents.cargo_ship.speed"))
	require.NoError(t, err)
	assert.Equal(t, sim.Num(6), v)

	// Whole-string template yields a typed value.
	v, err = resolveActionValue(s, sim.Lit(sim.Str("{{agents.tugboat_1.speed - 2}}")))
	require.NoError(t, err)
	assert.Equal(t, sim.Num(6), v)

	// Mixed text expands to a string.
	v, err = resolveActionValue(s, sim.Lit(sim.Str("speed={{agents.tugboat_1.speed}}")))
	require.NoError(t, err)
	assert.Equal(t, sim.Str("speed=8"), v)

	// Plain literal passes through.
	v, err = resolveActionValue(s, sim.Lit(sim.Num(5)))
	require.NoError(t, err)
	assert.Equal(t, sim.Num(5), v)
}
