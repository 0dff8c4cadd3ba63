package sim

// ConflictingWrite describes one of the competing writes behind a conflict,
// in the order the writes were applied.
type ConflictingWrite struct {
	RuleID   string
	Priority int
	Action   ActionType
	Value    Value
}

// Resolution is the outcome of resolving one conflict.
type Resolution struct {
	// FinalValue is the value committed to the path. Nil under
	// MANUAL_REVIEW, where the tick-start value is restored instead.
	FinalValue Value

	// WinnerRule is the rule whose write was kept, empty when the result
	// was merged or left for review.
	WinnerRule string

	// Merged is true when the final value combined multiple writes.
	Merged bool

	// Note explains the resolution in one line, including any fallback
	// from an unmergeable MERGE to PRIORITY.
	Note string
}

// ConflictRecord documents one same-tick write collision on a path and how
// it was resolved. Every resolution, successful or not, produces one.
type ConflictRecord struct {
	// Timestamp is the tick of the conflict.
	Timestamp int

	// Path is the contested field path.
	Path string

	// ConflictingRules lists the rule ids in evaluation order.
	ConflictingRules []string

	// ConflictingActions details the competing writes.
	ConflictingActions []ConflictingWrite

	// ResolutionStrategy is the strategy that was applied.
	ResolutionStrategy ConflictStrategy

	Resolution Resolution

	// Resolved is false only under MANUAL_REVIEW, where no automatic value
	// was committed.
	Resolved bool
}

// Canonical returns the record as plain maps/slices for MarshalCanonical.
func (c *ConflictRecord) Canonical() map[string]any {
	writes := make([]any, len(c.ConflictingActions))
	for i, w := range c.ConflictingActions {
		m := map[string]any{
			"rule_id":  w.RuleID,
			"priority": w.Priority,
			"action":   string(w.Action),
		}
		if w.Value != nil {
			m["value"] = w.Value
		}
		writes[i] = m
	}

	res := map[string]any{
		"merged": c.Resolution.Merged,
		"note":   c.Resolution.Note,
	}
	if c.Resolution.FinalValue != nil {
		res["final_value"] = c.Resolution.FinalValue
	}
	if c.Resolution.WinnerRule != "" {
		res["winner_rule"] = c.Resolution.WinnerRule
	}

	return map[string]any{
		"timestamp":           c.Timestamp,
		"path":                c.Path,
		"conflicting_rules":   stringsAsAny(c.ConflictingRules),
		"conflicting_actions": writes,
		"strategy":            string(c.ResolutionStrategy),
		"resolution":          res,
		"resolved":            c.Resolved,
	}
}
