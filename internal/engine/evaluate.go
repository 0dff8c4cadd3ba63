package engine

import (
	"github.com/driftline/tugsim/internal/sim"
)

// resolveTerm resolves one side of a condition against the state: a path
// term goes through the path resolver, a literal term is returned as-is.
func resolveTerm(state *sim.SystemState, t sim.Term) (sim.Value, error) {
	if t.IsPath() {
		return sim.Resolve(state, t.Path)
	}
	return t.Literal, nil
}

// evaluateCondition resolves both sides and applies the operator, returning
// the full evaluation record for the explanation. Resolution or comparison
// failures yield Result false with the error message attached; the caller
// decides whether that aborts the rule (it does not - an unevaluable
// condition is simply false).
func evaluateCondition(state *sim.SystemState, c sim.Condition) sim.ConditionEvaluation {
	eval := sim.ConditionEvaluation{
		Left:     c.Left.Describe(),
		Operator: c.Operator,
		Right:    c.Right.Describe(),
	}

	left, err := resolveTerm(state, c.Left)
	if err != nil {
		eval.Error = err.Error()
		return eval
	}
	eval.LeftValue = left

	right, err := resolveTerm(state, c.Right)
	if err != nil {
		eval.Error = err.Error()
		return eval
	}
	eval.RightValue = right

	result, err := compare(left, c.Operator, right)
	if err != nil {
		eval.Error = err.Error()
		return eval
	}
	eval.Result = result
	return eval
}

// compare applies one operator to two resolved values.
//
// Numeric operators require both sides to be numbers (TypeMismatchError
// otherwise). Equality is typed with no cross-type coercion; numeric
// widening already happened at value construction. "in" requires a sequence
// on the right.
func compare(left sim.Value, op sim.Operator, right sim.Value) (bool, error) {
	switch op {
	case sim.OpLess, sim.OpGreater, sim.OpLessEq, sim.OpGreaterEq:
		ln, ok := sim.AsNum(left)
		if !ok {
			return false, &sim.TypeMismatchError{Subject: sim.Format(left), Want: "number", Got: sim.TypeName(left)}
		}
		rn, ok := sim.AsNum(right)
		if !ok {
			return false, &sim.TypeMismatchError{Subject: sim.Format(right), Want: "number", Got: sim.TypeName(right)}
		}
		switch op {
		case sim.OpLess:
			return ln < rn, nil
		case sim.OpGreater:
			return ln > rn, nil
		case sim.OpLessEq:
			return ln <= rn, nil
		default:
			return ln >= rn, nil
		}

	case sim.OpEqual:
		return sim.Equal(left, right), nil

	case sim.OpNotEqual:
		return !sim.Equal(left, right), nil

	case sim.OpIn:
		seq, ok := right.(sim.List)
		if !ok {
			return false, &sim.TypeMismatchError{Subject: sim.Format(right), Want: "list", Got: sim.TypeName(right)}
		}
		for _, elem := range seq {
			if sim.Equal(left, elem) {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, &sim.TypeMismatchError{Subject: string(op), Want: "operator", Got: "unknown"}
	}
}

// evaluateAll runs every condition in order, recording each result, then
// combines them with the rule's logic. The short-circuit policy applies to
// the trigger decision only: the explanation always reflects the full list.
// An empty condition list is vacuously true.
func evaluateAll(state *sim.SystemState, conditions []sim.Condition, logic sim.Logic) (bool, []sim.ConditionEvaluation) {
	if len(conditions) == 0 {
		return true, nil
	}

	evals := make([]sim.ConditionEvaluation, len(conditions))
	for i, c := range conditions {
		evals[i] = evaluateCondition(state, c)
	}

	if logic == sim.LogicOr {
		for _, e := range evals {
			if e.Result {
				return true, evals
			}
		}
		return false, evals
	}

	for _, e := range evals {
		if !e.Result {
			return false, evals
		}
	}
	return true, evals
}
