package sim

// ConditionEvaluation records one condition's resolution and outcome.
// Every condition in a rule gets one of these, even when AND/OR
// short-circuiting already decided the trigger outcome.
type ConditionEvaluation struct {
	// Left and Right are the term descriptions (path or literal rendering).
	Left  string
	Right string

	// LeftValue and RightValue are the resolved values. Nil when the term
	// failed to resolve.
	LeftValue  Value
	RightValue Value

	Operator Operator

	// Result is the condition's boolean outcome. False when resolution
	// failed; Error then carries the reason.
	Result bool

	// Error is the resolution or comparison failure, empty on success.
	Error string
}

// ActionApplication records one applied action's concrete effect.
type ActionApplication struct {
	Type   ActionType
	Target string

	// Before is the target's value before the action, nil if unset.
	// After is the value actually committed (post conflict resolution it may
	// differ from the action's own write; the conflict record carries that).
	Before Value
	After  Value

	// Detail carries action-specific context: the spawned event type, the
	// triggered rule id, the log line.
	Detail string

	// Error is set when the action failed; the rule's remaining actions
	// were then skipped.
	Error string
}

// Recommendation is a non-mutating suggested value from a RECOMMEND action,
// surfaced to the output layer only.
type Recommendation struct {
	Target string
	Value  Value
}

// SideEffect is one entry in a rule's side-effect list: LOG output,
// recorded errors, no-op re-trigger notices, chain overflow diagnostics,
// unresolved template placeholders.
type SideEffect struct {
	// Kind classifies the entry: "log", "error", "noop_retrigger",
	// "chain_overflow", "unresolved_placeholder".
	Kind string

	// Level is the log level for Kind "log", empty otherwise.
	Level string

	Message string

	// Target is the related path, when one applies.
	Target string
}

// Explanation is the per-rule causal record, one per rule EVALUATED (not
// just triggered) per tick, in evaluation order. Built incrementally by the
// engine during queue processing so TriggeredBy/TriggeredRules links are
// exact, never derived after the fact.
type Explanation struct {
	RuleID    string
	Priority  int
	Triggered bool

	// Timestamp is the tick during which the rule was evaluated.
	Timestamp int

	// ConditionsEvaluated reflects the full condition list, in order.
	ConditionsEvaluated []ConditionEvaluation

	LogicUsed Logic

	// ActionsApplied records each executed action and its effect.
	ActionsApplied []ActionApplication

	// Recommendations from RECOMMEND actions, in order.
	Recommendations []Recommendation

	// SideEffects: log lines, errors, no-op notices.
	SideEffects []SideEffect

	// EventsGenerated lists event types spawned by this rule this tick.
	EventsGenerated []string

	// ConflictsEncountered lists the paths on which this rule's writes
	// collided with earlier writes this tick.
	ConflictsEncountered []string

	// TriggeredBy is the id of the rule whose TRIGGER_RULE action caused
	// this evaluation, empty for the normal priority pass. Event-driven
	// causality is visible in ConditionsEvaluated instead.
	TriggeredBy string

	// TriggeredRules lists ids this rule caused to run via TRIGGER_RULE.
	TriggeredRules []string

	// Message is the expanded explanation template.
	Message string

	// Cause holds the resolved condition inputs (path to value), Effect the
	// committed outputs. Template placeholders draw from both.
	Cause  map[string]Value
	Effect map[string]Value
}

// RecordSideEffect appends a side-effect entry.
func (e *Explanation) RecordSideEffect(kind, level, message, target string) {
	e.SideEffects = append(e.SideEffects, SideEffect{
		Kind:    kind,
		Level:   level,
		Message: message,
		Target:  target,
	})
}

// Canonical returns the explanation as plain maps/slices suitable for
// MarshalCanonical. Nil values are omitted rather than serialized.
func (e *Explanation) Canonical() map[string]any {
	conds := make([]any, len(e.ConditionsEvaluated))
	for i, c := range e.ConditionsEvaluated {
		m := map[string]any{
			"left":     c.Left,
			"operator": string(c.Operator),
			"right":    c.Right,
			"result":   c.Result,
		}
		if c.LeftValue != nil {
			m["left_value"] = c.LeftValue
		}
		if c.RightValue != nil {
			m["right_value"] = c.RightValue
		}
		if c.Error != "" {
			m["error"] = c.Error
		}
		conds[i] = m
	}

	actions := make([]any, len(e.ActionsApplied))
	for i, a := range e.ActionsApplied {
		m := map[string]any{
			"type": string(a.Type),
		}
		if a.Target != "" {
			m["target"] = a.Target
		}
		if a.Before != nil {
			m["before"] = a.Before
		}
		if a.After != nil {
			m["after"] = a.After
		}
		if a.Detail != "" {
			m["detail"] = a.Detail
		}
		if a.Error != "" {
			m["error"] = a.Error
		}
		actions[i] = m
	}

	recs := make([]any, len(e.Recommendations))
	for i, r := range e.Recommendations {
		recs[i] = map[string]any{"target": r.Target, "value": r.Value}
	}

	effects := make([]any, len(e.SideEffects))
	for i, s := range e.SideEffects {
		m := map[string]any{"kind": s.Kind, "message": s.Message}
		if s.Level != "" {
			m["level"] = s.Level
		}
		if s.Target != "" {
			m["target"] = s.Target
		}
		effects[i] = m
	}

	out := map[string]any{
		"rule_id":              e.RuleID,
		"priority":             e.Priority,
		"triggered":            e.Triggered,
		"timestamp":            e.Timestamp,
		"logic":                string(e.LogicUsed),
		"conditions_evaluated": conds,
		"actions_applied":      actions,
		"recommendations":      recs,
		"side_effects":         effects,
		"events_generated":     stringsAsAny(e.EventsGenerated),
		"conflicts":            stringsAsAny(e.ConflictsEncountered),
		"triggered_rules":      stringsAsAny(e.TriggeredRules),
		"message":              e.Message,
		"cause":                valuesAsAny(e.Cause),
		"effect":               valuesAsAny(e.Effect),
	}
	if e.TriggeredBy != "" {
		out["triggered_by"] = e.TriggeredBy
	}
	return out
}

func stringsAsAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func valuesAsAny(m map[string]Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
