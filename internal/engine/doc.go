// Package engine implements the per-tick decision loop: rule scheduling by
// priority, condition evaluation, action execution, same-tick write conflict
// resolution, bounded rule chaining, and incremental explanation building.
//
// The engine is single-writer by construction. Each Engine owns its
// SystemState; Step runs the whole tick pipeline synchronously and returns
// the committed snapshot. External inputs are passed to Step as buffered
// write requests and applied atomically before evaluation begins. There are
// no goroutines and no process-wide state, so independent engines can run
// concurrently without interference.
//
// Determinism: for a fixed rule set, initial state, and input sequence, two
// runs produce byte-identical canonical snapshots. Everything that orders
// work (the evaluation queue, the event bus, conflict journals) iterates in
// explicit declaration or first-touch order, never map order.
package engine
