// Package sim defines the data model for the tugboat simulation: the typed
// value union, the system state tree, the dot-path resolver, the rule /
// condition / action shapes, and the per-tick audit records (explanations,
// conflict records, snapshots).
//
// The package is deliberately free of evaluation logic. The decision engine
// (internal/engine) interprets these shapes; sim only defines them, resolves
// paths over them, and serializes them canonically.
//
// # Values
//
// State fields hold a closed set of value types: Num, Str, Bool, and List.
// There is no null and no open interface{} - every value in the state tree
// is one of these four, which keeps comparison and serialization total
// functions.
//
// # Paths
//
// A field path is a dot-separated address into the state tree, rooted at one
// of four containers: agents, environment, global_metrics, or events.
//
//	agents.tugboat_1.speed
//	environment.visibility
//	global_metrics.collision_risk
//	events.engine_failure
//
// Paths are case-sensitive and segments cannot contain dots. Reading an
// unset events.* path yields Bool(false) rather than an error; every other
// missing segment is an UnknownPathError (or UnknownAgentError for a missing
// agent, since agents must be declared in the initial state).
//
// # Canonical serialization
//
// MarshalCanonical produces deterministic JSON (sorted keys, NFC-normalized
// strings, shortest float form, no HTML escaping) so that snapshots and
// golden traces compare byte-for-byte across runs.
package sim
