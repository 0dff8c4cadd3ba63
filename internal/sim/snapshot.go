package sim

// StateSnapshot is the immutable per-tick commit record: a deep copy of the
// state tree plus the tick's explanation and conflict sets. Appended to
// History once per tick and never mutated afterwards; replay and inspection
// read only these, never the engine's working copy.
type StateSnapshot struct {
	TimeStep int

	Agents        map[string]*AgentState
	Environment   map[string]Value
	GlobalMetrics map[string]float64

	// Events are the events active at commit, in first-spawn order.
	Events []*Event

	Explanations []*Explanation
	Conflicts    []*ConflictRecord
}

// Snapshot captures the state tree at commit time. Explanations and
// conflicts are attached by the engine before appending to History.
func Snapshot(s *SystemState) *StateSnapshot {
	c := s.Clone()
	return &StateSnapshot{
		TimeStep:      c.TimeStep,
		Agents:        c.Agents,
		Environment:   c.Environment,
		GlobalMetrics: c.GlobalMetrics,
		Events:        c.Events.Active(),
	}
}

// Canonical returns the snapshot as plain maps/slices for MarshalCanonical.
// This is the byte-stable shape compared in determinism tests and golden
// traces, and the shape archived by the snapshot store.
func (s *StateSnapshot) Canonical() map[string]any {
	agents := make(map[string]any, len(s.Agents))
	for id, a := range s.Agents {
		agents[id] = map[string]Value(a.Fields)
	}

	events := make([]any, len(s.Events))
	for i, ev := range s.Events {
		m := map[string]any{
			"id":          ev.ID,
			"source_rule": ev.SourceRule,
			"timestamp":   ev.Timestamp,
			"event_type":  ev.EventType,
			"severity":    string(ev.Severity),
		}
		if len(ev.Payload) > 0 {
			m["payload"] = ev.Payload
		}
		events[i] = m
	}

	explanations := make([]any, len(s.Explanations))
	for i, e := range s.Explanations {
		explanations[i] = e.Canonical()
	}

	conflicts := make([]any, len(s.Conflicts))
	for i, c := range s.Conflicts {
		conflicts[i] = c.Canonical()
	}

	return map[string]any{
		"time_step":      s.TimeStep,
		"agents":         agents,
		"environment":    s.Environment,
		"global_metrics": s.GlobalMetrics,
		"events":         events,
		"explanations":   explanations,
		"conflicts":      conflicts,
	}
}

// MarshalCanonical serializes the snapshot deterministically.
func (s *StateSnapshot) MarshalCanonical() ([]byte, error) {
	return MarshalCanonical(s.Canonical())
}
