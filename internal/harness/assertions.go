package harness

import (
	"fmt"
	"slices"

	"github.com/driftline/tugsim/internal/engine"
	"github.com/driftline/tugsim/internal/sim"
)

// checkExpect validates one Expect block against a committed tick.
func checkExpect(eng *engine.Engine, tick *engine.TickResult, exp *Expect) error {
	if exp.Triggered != nil {
		got := triggeredRules(tick)
		if !slices.Equal(got, exp.Triggered) {
			return fmt.Errorf("triggered rules %v, want %v", got, exp.Triggered)
		}
	}

	if exp.Events != nil {
		got := spawnedEvents(tick)
		if !slices.Equal(got, exp.Events) {
			return fmt.Errorf("spawned events %v, want %v", got, exp.Events)
		}
	}

	for path, raw := range exp.State {
		want, err := sim.FromAny(raw)
		if err != nil {
			return fmt.Errorf("state expectation %s: %w", path, err)
		}
		got, err := sim.Resolve(eng.State(), path)
		if err != nil {
			return fmt.Errorf("state expectation %s: %w", path, err)
		}
		if !sim.Equal(got, want) {
			return fmt.Errorf("state %s = %s, want %s", path, sim.Format(got), sim.Format(want))
		}
	}

	if exp.Conflicts != nil {
		if len(tick.Conflicts) != len(exp.Conflicts) {
			return fmt.Errorf("%d conflicts, want %d", len(tick.Conflicts), len(exp.Conflicts))
		}
		for i, want := range exp.Conflicts {
			if err := checkConflict(tick.Conflicts[i], want); err != nil {
				return fmt.Errorf("conflict %d: %w", i, err)
			}
		}
	}
	return nil
}

func checkConflict(got *sim.ConflictRecord, want ConflictExpect) error {
	if got.Path != want.Path {
		return fmt.Errorf("path %s, want %s", got.Path, want.Path)
	}
	if want.Strategy != "" && string(got.ResolutionStrategy) != want.Strategy {
		return fmt.Errorf("strategy %s, want %s", got.ResolutionStrategy, want.Strategy)
	}
	if want.Resolved != nil && got.Resolved != *want.Resolved {
		return fmt.Errorf("resolved %v, want %v", got.Resolved, *want.Resolved)
	}
	if want.Final != nil {
		wantVal, err := sim.FromAny(want.Final)
		if err != nil {
			return fmt.Errorf("final expectation: %w", err)
		}
		if !sim.Equal(got.Resolution.FinalValue, wantVal) {
			return fmt.Errorf("final value %s, want %s",
				sim.Format(got.Resolution.FinalValue), sim.Format(wantVal))
		}
	}
	return nil
}

// triggeredRules lists the tick's triggered rule ids in evaluation order.
func triggeredRules(tick *engine.TickResult) []string {
	var ids []string
	for _, expl := range tick.Explanations {
		if expl.Triggered {
			ids = append(ids, expl.RuleID)
		}
	}
	return ids
}

// spawnedEvents lists the tick's spawned event types in spawn order.
func spawnedEvents(tick *engine.TickResult) []string {
	var types []string
	for _, expl := range tick.Explanations {
		types = append(types, expl.EventsGenerated...)
	}
	return types
}
