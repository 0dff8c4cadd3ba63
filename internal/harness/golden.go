package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/driftline/tugsim/internal/engine"
	"github.com/driftline/tugsim/internal/sim"
)

// traceLine summarizes one committed tick for golden comparison: the
// triggered rules, spawned events, resolved conflicts, and the fixture's
// watched paths. Deliberately compact so golden diffs stay reviewable.
func traceLine(eng *engine.Engine, f *Fixture, tick *engine.TickResult) (map[string]any, error) {
	conflicts := make([]any, 0, len(tick.Conflicts))
	for _, c := range tick.Conflicts {
		m := map[string]any{
			"path":     c.Path,
			"strategy": string(c.ResolutionStrategy),
			"resolved": c.Resolved,
			"merged":   c.Resolution.Merged,
		}
		if c.Resolution.FinalValue != nil {
			m["final"] = c.Resolution.FinalValue
		}
		conflicts = append(conflicts, m)
	}

	state := make(map[string]any, len(f.Watch))
	for _, path := range f.Watch {
		v, err := sim.Resolve(eng.State(), path)
		if err != nil {
			return nil, err
		}
		state[path] = v
	}

	return map[string]any{
		"tick":      tick.TimeStep,
		"triggered": stringsAsAny(triggeredRules(tick)),
		"events":    stringsAsAny(spawnedEvents(tick)),
		"conflicts": conflicts,
		"state":     state,
	}, nil
}

func stringsAsAny(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}

// RunWithGolden runs a fixture and compares its trace, one canonical JSON
// line per tick, against testdata/golden/{fixture.Name}.golden.
//
// Regenerate with: go test ./internal/harness -update
func RunWithGolden(t *testing.T, f *Fixture) *Result {
	t.Helper()

	res, err := Run(f)
	if err != nil {
		t.Fatalf("run fixture %s: %v", f.Name, err)
	}

	var buf bytes.Buffer
	for _, line := range res.Trace {
		raw, err := sim.MarshalCanonical(line)
		if err != nil {
			t.Fatalf("marshal trace for %s: %v", f.Name, err)
		}
		buf.Write(raw)
		buf.WriteByte('\n')
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, f.Name, buf.Bytes())
	return res
}
