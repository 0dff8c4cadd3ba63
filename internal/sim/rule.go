package sim

import (
	"fmt"
	"sort"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpLess      Operator = "<"
	OpGreater   Operator = ">"
	OpLessEq    Operator = "<="
	OpGreaterEq Operator = ">="
	OpEqual     Operator = "=="
	OpNotEqual  Operator = "!="

	// OpIn tests membership of the left value in the right-side sequence.
	OpIn Operator = "in"
)

// Logic combines a rule's conditions.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// ActionType identifies what an action does when its rule triggers.
type ActionType string

const (
	// ActionSet writes value to target, overwriting unconditionally.
	ActionSet ActionType = "SET"

	// ActionAdd adds value to the numeric value at target (0 if unset).
	ActionAdd ActionType = "ADD"

	// ActionClamp bounds the value at target to [min_value, max_value].
	ActionClamp ActionType = "CLAMP"

	// ActionRecommend records a suggested value without mutating state.
	ActionRecommend ActionType = "RECOMMEND"

	// ActionTriggerRule enqueues another rule for same-tick evaluation.
	ActionTriggerRule ActionType = "TRIGGER_RULE"

	// ActionSpawnEvent publishes an event on the tick's event bus.
	ActionSpawnEvent ActionType = "SPAWN_EVENT"

	// ActionLog appends a structured log entry to the tick's side effects.
	ActionLog ActionType = "LOG"
)

// ConflictStrategy selects how competing same-tick writes to one path are
// resolved. A closed set dispatched by the engine's conflict resolver.
type ConflictStrategy string

const (
	// StrategyPriority keeps the higher-priority rule's write; queue order
	// breaks priority ties. The global default.
	StrategyPriority ConflictStrategy = "PRIORITY"

	// StrategyLastWriteWins keeps the most recently applied write.
	StrategyLastWriteWins ConflictStrategy = "LAST_WRITE_WINS"

	// StrategyMerge intersects CLAMP ranges or averages numeric scalars.
	StrategyMerge ConflictStrategy = "MERGE"

	// StrategyManualReview restores the tick-start value and flags the
	// conflict unresolved for external handling.
	StrategyManualReview ConflictStrategy = "MANUAL_REVIEW"
)

// MetadataConflictStrategy is the metadata key (on an action, then its rule)
// that overrides the engine's default conflict strategy.
const MetadataConflictStrategy = "conflict_strategy"

// Term is one side of a condition: either a field path or a literal value.
// Exactly one of Path and Literal is meaningful.
type Term struct {
	Path    string
	Literal Value
}

// PathTerm builds a Term addressing a field path.
func PathTerm(path string) Term {
	return Term{Path: path}
}

// Lit builds a literal Term.
func Lit(v Value) Term {
	return Term{Literal: v}
}

// IsPath reports whether the term addresses state rather than a literal.
func (t Term) IsPath() bool {
	return t.Path != ""
}

// Describe renders the term for explanation records.
func (t Term) Describe() string {
	if t.IsPath() {
		return t.Path
	}
	return Format(t.Literal)
}

// Condition compares two terms. Either side may be a path, which is what
// enables agent-to-agent and environment-to-agent comparisons.
type Condition struct {
	Left     Term
	Operator Operator
	Right    Term
}

// Cond is shorthand for building a condition with a path on the left and a
// literal on the right, the dominant shape in rule sets.
func Cond(leftPath string, op Operator, right Value) Condition {
	return Condition{Left: PathTerm(leftPath), Operator: op, Right: Lit(right)}
}

// Action is one effect of a triggered rule. Type selects which of the
// optional fields apply; the executor rejects shapes that do not match
// their type with InvalidActionError.
type Action struct {
	Type ActionType

	// Target is the written (or recommended/logged) path.
	// Required for SET, ADD, CLAMP, and RECOMMEND; optional for LOG.
	Target string

	// Value is the operand for SET, ADD, and RECOMMEND. It may be a
	// literal, a field path, or a {{...}} arithmetic template resolved
	// against the current state.
	Value *Term

	// MinValue and MaxValue bound a CLAMP.
	MinValue *float64
	MaxValue *float64

	// RuleID names the rule a TRIGGER_RULE action enqueues.
	RuleID string

	// EventType, EventPayload, and EventSeverity shape a SPAWN_EVENT.
	EventType     string
	EventPayload  map[string]Value
	EventSeverity Severity

	// LogLevel and LogMessage shape a LOG entry.
	LogLevel   string
	LogMessage string

	// Metadata is an opaque bag; the engine only reads
	// MetadataConflictStrategy from it.
	Metadata map[string]string
}

// Rule is one decision rule. Rules are immutable once registered.
type Rule struct {
	// ID is unique within a rule set and stable across runs.
	ID string

	// Priority orders evaluation, higher first. Ties break by declaration
	// order in the rule set.
	Priority int

	// Conditions are evaluated in order and combined via Logic.
	// An empty list is vacuously true.
	Conditions []Condition

	// Logic is AND or OR. Defaults to AND when empty.
	Logic Logic

	// Actions apply in declared order when the rule triggers.
	Actions []Action

	// ExplanationTemplate expands {{path}} placeholders into the rule's
	// human-readable message.
	ExplanationTemplate string

	// Metadata is an opaque bag; the engine only reads
	// MetadataConflictStrategy from it.
	Metadata map[string]string
}

// EffectiveLogic returns the rule's logic, defaulting to AND.
func (r *Rule) EffectiveLogic() Logic {
	if r.Logic == "" {
		return LogicAnd
	}
	return r.Logic
}

// RuleSet holds rules in declaration order and serves them in evaluation
// order (priority descending, declaration order on ties).
//
// INVARIANT: declaration order never changes after a rule is added. The same
// registration order guarantees the same evaluation order.
type RuleSet struct {
	rules []*Rule
	byID  map[string]*Rule
}

// NewRuleSet creates an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{byID: make(map[string]*Rule)}
}

// Add registers a rule. Duplicate ids are rejected.
func (rs *RuleSet) Add(r *Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rule id must not be empty")
	}
	if _, exists := rs.byID[r.ID]; exists {
		return fmt.Errorf("duplicate rule ID: %s", r.ID)
	}
	rs.rules = append(rs.rules, r)
	rs.byID[r.ID] = r
	return nil
}

// MustAdd registers rules and panics on duplicates. For static rule sets
// built in code, where a duplicate is a programming error.
func (rs *RuleSet) MustAdd(rules ...*Rule) {
	for _, r := range rules {
		if err := rs.Add(r); err != nil {
			panic(err)
		}
	}
}

// ByID returns the rule with the given id, or nil.
func (rs *RuleSet) ByID(id string) *Rule {
	return rs.byID[id]
}

// Len returns the number of registered rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// InDeclarationOrder returns the rules as registered.
// The returned slice is a copy; mutating it does not affect the set.
func (rs *RuleSet) InDeclarationOrder() []*Rule {
	out := make([]*Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// InEvaluationOrder returns the rules sorted by priority descending with
// declaration order breaking ties. This is the deterministic base ordering
// of every tick's evaluation queue.
func (rs *RuleSet) InEvaluationOrder() []*Rule {
	out := rs.InDeclarationOrder()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}
