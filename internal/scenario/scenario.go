// Package scenario holds the harbor exhibit's initial states and rule set.
// Visitors drive the tugboat escorting a cargo ship through the harbour
// channel; the rules react with speed limits, guidance, and emergencies.
//
// Zone progression: open_water -> escort_corridor -> harbour_entry ->
// no_wake_zone -> docking_zone.
package scenario

import (
	"fmt"

	"github.com/driftline/tugsim/internal/sim"
)

// Agent ids declared by every scenario.
const (
	AgentTugboat   = "tugboat"
	AgentCargoShip = "cargo_ship"
)

// Names of the selectable scenario variants.
const (
	ScenarioDefault   = "default"
	ScenarioFog       = "fog"
	ScenarioDocking   = "docking"
	ScenarioEmergency = "emergency"
)

// Factory builds a fresh initial state for one scenario variant.
type Factory func() *sim.SystemState

// Factories maps scenario names to their builders.
func Factories() map[string]Factory {
	return map[string]Factory{
		ScenarioDefault:   Default,
		ScenarioFog:       Fog,
		ScenarioDocking:   Docking,
		ScenarioEmergency: Emergency,
	}
}

// Names returns the selectable scenario names in menu order.
func Names() []string {
	return []string{ScenarioDefault, ScenarioFog, ScenarioDocking, ScenarioEmergency}
}

// ByName returns the factory for a scenario name.
func ByName(name string) (Factory, error) {
	f, ok := Factories()[name]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q (available: %v)", name, Names())
	}
	return f, nil
}

// Default is the open-water starting state: the tugboat cruising at 8 knots
// due east, escorting a cargo ship 50 metres ahead.
func Default() *sim.SystemState {
	s := sim.NewSystemState()

	s.AddAgent(sim.NewAgentState(AgentTugboat, map[string]sim.Value{
		"type":       sim.Str("tugboat"),
		"name":       sim.Str("MV Pacific Highlander"),
		"position_x": sim.Num(0),
		"position_y": sim.Num(0),
		"speed":      sim.Num(8),
		"heading":    sim.Num(90),
	}))
	s.AddAgent(sim.NewAgentState(AgentCargoShip, map[string]sim.Value{
		"type":       sim.Str("cargo_ship"),
		"name":       sim.Str("MV Fraser Spirit"),
		"position_x": sim.Num(50),
		"position_y": sim.Num(0),
		"speed":      sim.Num(6),
		"heading":    sim.Num(90),
	}))

	s.Environment["wind_speed"] = sim.Num(10)
	s.Environment["wind_direction"] = sim.Num(45)
	s.Environment["visibility"] = sim.Num(1.5)
	s.Environment["zone"] = sim.Str("open_water")
	s.Environment["berth_heading"] = sim.Num(0)

	s.GlobalMetrics["tugboat_cargo_distance"] = 50
	s.GlobalMetrics["collision_risk"] = 0
	s.GlobalMetrics["anchor_deployed"] = 0
	s.GlobalMetrics["engine_status"] = 1
	s.GlobalMetrics["guidance_requested"] = 0
	s.GlobalMetrics["heading_error"] = 0
	s.GlobalMetrics["distance_to_berth"] = 500
	s.GlobalMetrics["rules_triggered_count"] = 0
	s.GlobalMetrics["decision_count"] = 0

	return s
}

// Fog drops visibility at the harbour entry, exercising the low-visibility
// speed reduction and the fog/guidance chain.
func Fog() *sim.SystemState {
	s := Default()
	s.Environment["visibility"] = sim.Num(0.2)
	s.Environment["zone"] = sim.Str("harbour_entry")
	return s
}

// Docking puts the tugboat 3 metres from the berth at a 25 degree heading
// error, exercising the docking approach, alignment, and final-stop rules.
func Docking() *sim.SystemState {
	s := Default()
	s.Environment["zone"] = sim.Str("docking_zone")
	s.GlobalMetrics["heading_error"] = 25
	s.GlobalMetrics["distance_to_berth"] = 3
	s.Agents[AgentTugboat].Fields["speed"] = sim.Num(4)
	s.Agents[AgentTugboat].Fields["heading"] = sim.Num(65)
	return s
}

// Emergency fails the engine at speed, exercising the
// engine_failure_detection -> emergency_anchor chain.
func Emergency() *sim.SystemState {
	s := Default()
	s.GlobalMetrics["engine_status"] = 0
	s.Agents[AgentTugboat].Fields["speed"] = sim.Num(10)
	return s
}
