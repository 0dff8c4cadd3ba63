package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/tugsim/internal/sim"
)

func writeFixture(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadFixture_RejectsUnknownKeys(t *testing.T) {
	path := writeFixture(t, `
name: typo
scenario: default
tickz:
  - {}
`)
	_, err := LoadFixture(path)
	require.Error(t, err)
}

func TestLoadFixture_RejectsUnknownStrategy(t *testing.T) {
	path := writeFixture(t, `
name: bad_strategy
scenario: default
options:
  conflict_strategy: COIN_FLIP
ticks:
  - {}
`)
	_, err := LoadFixture(path)
	require.ErrorContains(t, err, "COIN_FLIP")
}

func TestLoadFixture_RequiresTicks(t *testing.T) {
	path := writeFixture(t, `
name: empty
scenario: default
ticks: []
`)
	_, err := LoadFixture(path)
	require.ErrorContains(t, err, "no ticks")
}

func TestRun_FailedExpectationNamesTick(t *testing.T) {
	path := writeFixture(t, `
name: wrong_speed
scenario: emergency
ticks:
  - expect:
      state:
        agents.tugboat.speed: 99
`)
	f, err := LoadFixture(path)
	require.NoError(t, err)

	_, err = Run(f)
	require.ErrorContains(t, err, "tick 1")
	require.ErrorContains(t, err, "agents.tugboat.speed")
}

// TestFixtures runs every testdata fixture's inline expectations and the
// golden trace comparison.
func TestFixtures(t *testing.T) {
	paths, err := filepath.Glob("testdata/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		f, err := LoadFixture(path)
		require.NoError(t, err, path)

		t.Run(f.Name, func(t *testing.T) {
			res := RunWithGolden(t, f)
			assert.Len(t, res.Ticks, len(f.Ticks))
		})
	}
}

func TestTraceIsDeterministic(t *testing.T) {
	f, err := LoadFixture("testdata/fog_merge.yaml")
	require.NoError(t, err)

	trace := func() string {
		res, err := Run(f)
		require.NoError(t, err)
		var out string
		for _, line := range res.Trace {
			raw, err := sim.MarshalCanonical(line)
			require.NoError(t, err)
			out += string(raw) + "\n"
		}
		return out
	}

	assert.Equal(t, trace(), trace())
}
