// Package harness runs YAML-defined simulation scenarios for conformance
// testing. A fixture names a starting scenario, feeds inputs tick by tick,
// and asserts on triggered rules, spawned events, resolved conflicts, and
// state paths. Golden-file comparison of per-tick traces catches behavioral
// drift that point assertions miss.
//
// Fixtures live in testdata/ next to the tests that run them. Event ids are
// generated by a fixed sequence so traces are byte-stable across runs.
package harness
