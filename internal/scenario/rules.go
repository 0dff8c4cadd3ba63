package scenario

import "github.com/driftline/tugsim/internal/sim"

func term(t sim.Term) *sim.Term { return &t }

func bound(f float64) *float64 { return &f }

// HarborRules builds the exhibit's rule set. Declaration order matters only
// for priority ties; the comments give each rule's intent.
//
// The zone speed-limit rules carry the MERGE strategy so that overlapping
// clamps intersect instead of fighting.
func HarborRules() *sim.RuleSet {
	rs := sim.NewRuleSet()

	rs.MustAdd(
		// Engine failure opens the emergency chain: spawn the event for
		// anything watching, then trigger the anchor drop directly.
		&sim.Rule{
			ID:       "engine_failure_detection",
			Priority: 100,
			Conditions: []sim.Condition{
				sim.Cond("global_metrics.engine_status", sim.OpEqual, sim.Num(0)),
			},
			Actions: []sim.Action{
				{Type: sim.ActionSpawnEvent, EventType: "engine_failure", EventSeverity: sim.SeverityCritical},
				{Type: sim.ActionTriggerRule, RuleID: "emergency_anchor"},
				{Type: sim.ActionLog, LogLevel: "error", LogMessage: "engine failure detected", Target: "agents.tugboat.speed"},
			},
			ExplanationTemplate: "Engine failure at {{agents.tugboat.speed}} knots - emergency anchor procedure started",
		},
		&sim.Rule{
			ID:       "emergency_anchor",
			Priority: 95,
			Conditions: []sim.Condition{
				sim.Cond("events.engine_failure", sim.OpEqual, sim.Bool(true)),
			},
			Actions: []sim.Action{
				{Type: sim.ActionSet, Target: "global_metrics.anchor_deployed", Value: term(sim.Lit(sim.Num(1)))},
				{Type: sim.ActionSet, Target: "agents.tugboat.speed", Value: term(sim.Lit(sim.Num(0)))},
				{Type: sim.ActionLog, LogLevel: "warning", LogMessage: "anchor deployed, tugboat stopped"},
			},
			ExplanationTemplate: "Anchor deployed in response to engine failure",
		},

		// Collision avoidance: too close to the escorted ship.
		&sim.Rule{
			ID:       "collision_avoidance",
			Priority: 90,
			Conditions: []sim.Condition{
				sim.Cond("global_metrics.tugboat_cargo_distance", sim.OpLess, sim.Num(20)),
			},
			Actions: []sim.Action{
				{Type: sim.ActionSet, Target: "global_metrics.collision_risk", Value: term(sim.Lit(sim.Num(0.9)))},
				{Type: sim.ActionSpawnEvent, EventType: "collision_risk", EventSeverity: sim.SeverityWarning},
				{Type: sim.ActionRecommend, Target: "agents.tugboat.speed", Value: term(sim.Lit(sim.Str("{{agents.cargo_ship.speed - 1}}")))},
			},
			ExplanationTemplate: "Vessels {{global_metrics.tugboat_cargo_distance}} m apart - collision risk raised, recommend matching escort speed",
		},

		// Visibility rules. The fog chain requests guidance through the
		// spawned event rather than a direct trigger, so any other fog
		// source gets the same response.
		&sim.Rule{
			ID:       "low_visibility_speed_reduction",
			Priority: 70,
			Conditions: []sim.Condition{
				sim.Cond("environment.visibility", sim.OpLess, sim.Num(0.5)),
			},
			Actions: []sim.Action{
				{Type: sim.ActionClamp, Target: "agents.tugboat.speed", MinValue: bound(0), MaxValue: bound(3)},
			},
			Metadata:            map[string]string{sim.MetadataConflictStrategy: string(sim.StrategyMerge)},
			ExplanationTemplate: "Visibility {{environment.visibility}} km - speed limited to {{agents.tugboat.speed}} knots",
		},
		&sim.Rule{
			ID:       "fog_event_response",
			Priority: 65,
			Conditions: []sim.Condition{
				sim.Cond("environment.visibility", sim.OpLess, sim.Num(0.3)),
			},
			Actions: []sim.Action{
				{Type: sim.ActionSpawnEvent, EventType: "fog_bank", EventSeverity: sim.SeverityWarning},
			},
			ExplanationTemplate: "Fog bank reported at {{environment.visibility}} km visibility",
		},
		&sim.Rule{
			ID:       "request_harbour_guidance",
			Priority: 60,
			Conditions: []sim.Condition{
				sim.Cond("events.fog_bank", sim.OpEqual, sim.Bool(true)),
				sim.Cond("global_metrics.guidance_requested", sim.OpEqual, sim.Num(0)),
			},
			Actions: []sim.Action{
				{Type: sim.ActionSet, Target: "global_metrics.guidance_requested", Value: term(sim.Lit(sim.Num(1)))},
				{Type: sim.ActionLog, LogLevel: "info", LogMessage: "harbour guidance requested"},
			},
			ExplanationTemplate: "Harbour guidance requested due to fog",
		},

		// Zone speed limits, MERGE so overlapping zones tighten together.
		&sim.Rule{
			ID:       "escort_corridor_speed_limit",
			Priority: 50,
			Conditions: []sim.Condition{
				{Left: sim.PathTerm("environment.zone"), Operator: sim.OpIn, Right: sim.Lit(sim.Strings("escort_corridor", "harbour_entry"))},
			},
			Actions: []sim.Action{
				{Type: sim.ActionClamp, Target: "agents.tugboat.speed", MinValue: bound(0), MaxValue: bound(5)},
			},
			Metadata:            map[string]string{sim.MetadataConflictStrategy: string(sim.StrategyMerge)},
			ExplanationTemplate: "Channel speed limit - tugboat held to {{agents.tugboat.speed}} knots",
		},
		&sim.Rule{
			ID:       "no_wake_zone_speed_limit",
			Priority: 50,
			Conditions: []sim.Condition{
				sim.Cond("environment.zone", sim.OpEqual, sim.Str("no_wake_zone")),
			},
			Actions: []sim.Action{
				{Type: sim.ActionClamp, Target: "agents.tugboat.speed", MinValue: bound(0), MaxValue: bound(2)},
			},
			Metadata:            map[string]string{sim.MetadataConflictStrategy: string(sim.StrategyMerge)},
			ExplanationTemplate: "No-wake zone - tugboat held to {{agents.tugboat.speed}} knots",
		},

		// Docking phase.
		&sim.Rule{
			ID:       "docking_approach_speed",
			Priority: 40,
			Conditions: []sim.Condition{
				sim.Cond("environment.zone", sim.OpEqual, sim.Str("docking_zone")),
			},
			Actions: []sim.Action{
				{Type: sim.ActionClamp, Target: "agents.tugboat.speed", MinValue: bound(0), MaxValue: bound(2)},
			},
			Metadata:            map[string]string{sim.MetadataConflictStrategy: string(sim.StrategyMerge)},
			ExplanationTemplate: "Docking approach - speed held to {{agents.tugboat.speed}} knots",
		},
		&sim.Rule{
			ID:       "docking_heading_alignment",
			Priority: 35,
			Conditions: []sim.Condition{
				sim.Cond("environment.zone", sim.OpEqual, sim.Str("docking_zone")),
				sim.Cond("global_metrics.heading_error", sim.OpGreater, sim.Num(5)),
			},
			Actions: []sim.Action{
				{Type: sim.ActionRecommend, Target: "agents.tugboat.heading", Value: term(sim.PathTerm("environment.berth_heading"))},
				{Type: sim.ActionLog, LogLevel: "info", LogMessage: "align heading with berth", Target: "global_metrics.heading_error"},
			},
			ExplanationTemplate: "Heading off by {{global_metrics.heading_error}} degrees - recommend aligning with berth",
		},
		&sim.Rule{
			ID:       "docking_final_stop",
			Priority: 30,
			Conditions: []sim.Condition{
				sim.Cond("environment.zone", sim.OpEqual, sim.Str("docking_zone")),
				sim.Cond("global_metrics.distance_to_berth", sim.OpLess, sim.Num(5)),
			},
			Actions: []sim.Action{
				{Type: sim.ActionSet, Target: "agents.tugboat.speed", Value: term(sim.Lit(sim.Num(0)))},
				{Type: sim.ActionSpawnEvent, EventType: "docking_complete", EventSeverity: sim.SeverityNormal},
			},
			// MERGE lets the stop fold into the approach clamp's range
			// instead of losing the conflict on priority.
			Metadata:            map[string]string{sim.MetadataConflictStrategy: string(sim.StrategyMerge)},
			ExplanationTemplate: "{{global_metrics.distance_to_berth}} m from berth - all stop",
		},
	)

	return rs
}
