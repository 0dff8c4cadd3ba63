package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/driftline/tugsim/internal/sim"
)

// Fixture defines one conformance scenario: a named starting state, a tick
// script with inputs and per-tick expectations, and final assertions.
type Fixture struct {
	// Name uniquely identifies the fixture. Golden files are stored under
	// testdata/golden/{name}.golden.
	Name string `yaml:"name"`

	// Description explains what the fixture validates.
	Description string `yaml:"description,omitempty"`

	// Scenario is the starting state variant ("default", "fog", "docking",
	// "emergency").
	Scenario string `yaml:"scenario"`

	// Options tune the engine under test.
	Options FixtureOptions `yaml:"options,omitempty"`

	// Watch lists the state paths captured in each tick's trace line.
	Watch []string `yaml:"watch,omitempty"`

	// Ticks is the script. Each entry runs one engine step.
	Ticks []TickStep `yaml:"ticks"`

	// Final asserts on state after the last tick.
	Final *Expect `yaml:"final,omitempty"`
}

// FixtureOptions mirror the engine's construction options.
type FixtureOptions struct {
	MaxChainDepth    int    `yaml:"max_chain_depth,omitempty"`
	ConflictStrategy string `yaml:"conflict_strategy,omitempty"`
	PersistentEvents bool   `yaml:"persistent_events,omitempty"`
}

// TickStep is one scripted tick: inputs applied before evaluation, then
// expectations checked against the committed result.
type TickStep struct {
	Inputs []InputWrite `yaml:"inputs,omitempty"`
	Expect *Expect      `yaml:"expect,omitempty"`
}

// InputWrite is one buffered path write.
type InputWrite struct {
	Path  string `yaml:"path"`
	Value any    `yaml:"value"`
}

// Expect bundles the assertions checked after a tick (or after the run,
// for Final). All fields are optional; empty means unchecked.
type Expect struct {
	// Triggered is the exact list of triggered rule ids, in evaluation
	// order.
	Triggered []string `yaml:"triggered,omitempty"`

	// Events is the exact list of spawned event types, in spawn order.
	Events []string `yaml:"events,omitempty"`

	// State maps paths to expected values. Subset match.
	State map[string]any `yaml:"state,omitempty"`

	// Conflicts is the exact list of conflict expectations, in occurrence
	// order.
	Conflicts []ConflictExpect `yaml:"conflicts,omitempty"`
}

// ConflictExpect asserts on one resolved (or held) conflict.
type ConflictExpect struct {
	Path     string `yaml:"path"`
	Strategy string `yaml:"strategy,omitempty"`
	Resolved *bool  `yaml:"resolved,omitempty"`
	Final    any    `yaml:"final,omitempty"`
}

// LoadFixture reads and validates a fixture file. Unknown YAML keys are
// rejected so fixture typos fail loudly instead of silently not asserting.
func LoadFixture(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	if f.Name == "" {
		return fmt.Errorf("missing name")
	}
	if f.Scenario == "" {
		return fmt.Errorf("missing scenario")
	}
	if len(f.Ticks) == 0 {
		return fmt.Errorf("no ticks")
	}
	if s := f.Options.ConflictStrategy; s != "" {
		switch sim.ConflictStrategy(s) {
		case sim.StrategyPriority, sim.StrategyLastWriteWins, sim.StrategyMerge, sim.StrategyManualReview:
		default:
			return fmt.Errorf("unknown conflict strategy %q", s)
		}
	}
	return nil
}
