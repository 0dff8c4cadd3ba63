package engine

import (
	"errors"
	"fmt"
)

// InvalidActionError indicates an action's shape does not match its type:
// CLAMP without bounds, SET without a target, TRIGGER_RULE naming an
// unknown rule. It aborts the remaining actions of the failing rule but
// never the tick.
type InvalidActionError struct {
	// RuleID is the rule whose action failed.
	RuleID string

	// ActionIndex is the position of the action in the rule's list.
	ActionIndex int

	// Reason describes the malformed field.
	Reason string
}

// Error implements the error interface.
func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action %d of rule %q: %s", e.ActionIndex, e.RuleID, e.Reason)
}

// UnmergeableConflictError indicates a MERGE strategy found no applicable
// merge policy for the conflicting writes. The resolver falls back to
// PRIORITY and records the fallback on the conflict record.
type UnmergeableConflictError struct {
	// Path is the contested field path.
	Path string

	// Reason describes why no merge policy applied.
	Reason string
}

// Error implements the error interface.
func (e *UnmergeableConflictError) Error() string {
	return fmt.Sprintf("unmergeable conflict on %q: %s", e.Path, e.Reason)
}

// RuleChainOverflowError indicates a TRIGGER_RULE chain exceeded the
// configured depth bound. The tick completes: committed writes are kept,
// further chaining is halted, and the error is recorded as a diagnostic on
// the last pushed rule's explanation.
type RuleChainOverflowError struct {
	// RuleID is the rule whose trigger would have exceeded the bound.
	RuleID string

	// TargetRule is the rule the trigger named.
	TargetRule string

	// Depth is the chain depth the trigger would have reached.
	Depth int

	// Limit is the configured maximum chain depth.
	Limit int
}

// Error implements the error interface.
func (e *RuleChainOverflowError) Error() string {
	return fmt.Sprintf("rule chain overflow: %s -> %s would reach depth %d (limit %d)", e.RuleID, e.TargetRule, e.Depth, e.Limit)
}

// IsInvalidAction returns true if the error is an InvalidActionError.
// Uses errors.As to handle wrapped errors.
func IsInvalidAction(err error) bool {
	var ie *InvalidActionError
	return errors.As(err, &ie)
}

// IsUnmergeableConflict returns true if the error is an
// UnmergeableConflictError. Uses errors.As to handle wrapped errors.
func IsUnmergeableConflict(err error) bool {
	var ue *UnmergeableConflictError
	return errors.As(err, &ue)
}

// IsChainOverflow returns true if the error is a RuleChainOverflowError.
// Uses errors.As to handle wrapped errors.
func IsChainOverflow(err error) bool {
	var oe *RuleChainOverflowError
	return errors.As(err, &oe)
}
