package harness

import (
	"fmt"

	"github.com/driftline/tugsim/internal/engine"
	"github.com/driftline/tugsim/internal/scenario"
	"github.com/driftline/tugsim/internal/sim"
)

// Result is the outcome of running a fixture to completion.
type Result struct {
	Fixture *Fixture

	// Ticks holds one committed result per scripted tick, in order.
	Ticks []*engine.TickResult

	// Trace holds one compact summary per tick with the fixture's watched
	// paths captured at end of tick. Golden comparison serializes these.
	Trace []map[string]any

	// Engine is the engine after the last tick, for final-state checks.
	Engine *engine.Engine
}

// Run executes a fixture against the harbor rule set and checks every
// expectation. The first failed expectation aborts the run with an error
// naming the tick and the mismatch.
//
// Event ids always come from a fixed sequence so repeated runs of the same
// fixture produce identical traces.
func Run(f *Fixture) (*Result, error) {
	factory, err := scenario.ByName(f.Scenario)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{engine.WithEventIDs(&engine.SequenceGenerator{})}
	if f.Options.MaxChainDepth > 0 {
		opts = append(opts, engine.WithMaxChainDepth(f.Options.MaxChainDepth))
	}
	if f.Options.ConflictStrategy != "" {
		opts = append(opts, engine.WithConflictStrategy(sim.ConflictStrategy(f.Options.ConflictStrategy)))
	}
	if f.Options.PersistentEvents {
		opts = append(opts, engine.WithPersistentEvents())
	}

	eng := engine.New(scenario.HarborRules(), factory(), opts...)
	res := &Result{Fixture: f, Engine: eng}

	for i, step := range f.Ticks {
		inputs, err := decodeInputs(step.Inputs)
		if err != nil {
			return nil, fmt.Errorf("tick %d: %w", i+1, err)
		}

		tick, err := eng.Step(inputs...)
		if err != nil {
			return nil, fmt.Errorf("tick %d: %w", i+1, err)
		}
		res.Ticks = append(res.Ticks, tick)

		line, err := traceLine(eng, f, tick)
		if err != nil {
			return nil, fmt.Errorf("tick %d: trace: %w", tick.TimeStep, err)
		}
		res.Trace = append(res.Trace, line)

		if step.Expect != nil {
			if err := checkExpect(eng, tick, step.Expect); err != nil {
				return nil, fmt.Errorf("tick %d: %w", tick.TimeStep, err)
			}
		}
	}

	if f.Final != nil {
		last := res.Ticks[len(res.Ticks)-1]
		if err := checkExpect(eng, last, f.Final); err != nil {
			return nil, fmt.Errorf("final: %w", err)
		}
	}
	return res, nil
}

func decodeInputs(raw []InputWrite) ([]sim.WriteRequest, error) {
	inputs := make([]sim.WriteRequest, 0, len(raw))
	for _, in := range raw {
		v, err := sim.FromAny(in.Value)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Path, err)
		}
		inputs = append(inputs, sim.WriteRequest{Path: in.Path, Value: v})
	}
	return inputs, nil
}
