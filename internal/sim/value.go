package sim

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a sealed interface over the constrained state value types.
// Only Num, Str, Bool, and List implement it. There is no null: an absent
// field is represented by a nil Value at the API boundary, never stored.
type Value interface {
	value() // Sealed - only these types implement it
}

// Num represents a numeric value. All numbers widen to float64; the engine
// does not distinguish ints from floats (a speed of 8 and 8.0 are the same
// value).
type Num float64

func (Num) value() {}

// Str represents a text value.
type Str string

func (Str) value() {}

// Bool represents a boolean value. Event paths resolve to Bool.
type Bool bool

func (Bool) value() {}

// List represents an ordered sequence of values. Used as the right side of
// "in" conditions (e.g. zone membership).
type List []Value

func (List) value() {}

// Strings builds a List of Str values. Convenience for zone lists.
func Strings(ss ...string) List {
	l := make(List, len(ss))
	for i, s := range ss {
		l[i] = Str(s)
	}
	return l
}

// Equal reports typed equality between two values.
//
// No cross-type coercion is performed: Num only equals Num, Str only equals
// Str, and so on. Numeric widening already happened at construction (all
// numbers are Num), so 8 == 8.0 holds by representation.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Num:
		bv, ok := b.(Num)
		return ok && av == bv
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	default:
		return false
	}
}

// AsNum extracts the float64 from a Num value.
// Returns false for any other type (no string-to-number coercion).
func AsNum(v Value) (float64, bool) {
	n, ok := v.(Num)
	return float64(n), ok
}

// FromAny converts a YAML/JSON-decoded Go value to a Value.
// Ints and floats widen to Num. Nil and unsupported types are errors.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null values are not allowed in simulation state")
	case bool:
		return Bool(val), nil
	case string:
		return Str(val), nil
	case int:
		return Num(val), nil
	case int64:
		return Num(val), nil
	case float64:
		return Num(val), nil
	case []any:
		l := make(List, len(val))
		for i, elem := range val {
			lv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			l[i] = lv
		}
		return l, nil
	case Value:
		return val, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// ToAny converts a Value back to plain Go types for JSON-ish output layers.
func ToAny(v Value) any {
	switch val := v.(type) {
	case Num:
		return float64(val)
	case Str:
		return string(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}

// Format renders a value for human-readable explanation messages.
// Whole numbers drop their fractional part ("5", not "5.00"); other numbers
// print with two decimals. Strings print bare, without quotes.
func Format(v Value) string {
	switch val := v.(type) {
	case Num:
		f := float64(val)
		if f == math.Trunc(f) && math.Abs(f) < 1e15 {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'f', 2, 64)
	case Str:
		return string(val)
	case Bool:
		return strconv.FormatBool(bool(val))
	case List:
		s := "["
		for i, elem := range val {
			if i > 0 {
				s += ", "
			}
			s += Format(elem)
		}
		return s + "]"
	case nil:
		return "<unset>"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// TypeName returns the value's type name for error messages.
func TypeName(v Value) string {
	switch v.(type) {
	case Num:
		return "number"
	case Str:
		return "string"
	case Bool:
		return "bool"
	case List:
		return "list"
	case nil:
		return "unset"
	default:
		return fmt.Sprintf("%T", v)
	}
}
