package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual_TypedNoCoercion(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"num equal", Num(8), Num(8.0), true},
		{"num unequal", Num(8), Num(9), false},
		{"str equal", Str("fog"), Str("fog"), true},
		{"bool equal", Bool(true), Bool(true), true},
		{"num vs str no coercion", Num(5), Str("5"), false},
		{"bool vs num no coercion", Bool(true), Num(1), false},
		{"list equal", Strings("a", "b"), Strings("a", "b"), true},
		{"list order matters", Strings("a", "b"), Strings("b", "a"), false},
		{"list length differs", Strings("a"), Strings("a", "b"), false},
		{"nil vs nil", nil, nil, true},
		{"nil vs value", nil, Num(0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(6)
	require.NoError(t, err)
	assert.Equal(t, Num(6), v)

	v, err = FromAny(8.5)
	require.NoError(t, err)
	assert.Equal(t, Num(8.5), v)

	v, err = FromAny([]any{"open_water", "harbour_entry"})
	require.NoError(t, err)
	assert.Equal(t, Strings("open_water", "harbour_entry"), v)

	_, err = FromAny(nil)
	require.Error(t, err)

	_, err = FromAny(struct{}{})
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"whole num", Num(5), "5"},
		{"whole float", Num(8.0), "8"},
		{"fractional", Num(6.5), "6.50"},
		{"string bare", Str("docking_zone"), "docking_zone"},
		{"bool", Bool(true), "true"},
		{"list", Strings("a", "b"), "[a, b]"},
		{"nil", nil, "<unset>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.v))
		})
	}
}

func TestAsNum(t *testing.T) {
	n, ok := AsNum(Num(7.5))
	require.True(t, ok)
	assert.Equal(t, 7.5, n)

	_, ok = AsNum(Str("7.5"))
	assert.False(t, ok)

	_, ok = AsNum(nil)
	assert.False(t, ok)
}
