package sim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces deterministic JSON for snapshots and golden
// traces. CRITICAL: this is the only serialization used where byte-for-byte
// equality matters (determinism checks, golden files, the snapshot archive).
//
// Properties:
//  1. Object keys sorted lexicographically
//  2. Strings NFC normalized, no HTML escaping
//  3. Floats in shortest round-trip form (8.0 serializes as "8")
//  4. No null, NaN, or Inf (returns error)
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case Num:
		return writeCanonicalFloat(buf, float64(val))
	case Str:
		return writeCanonicalString(buf, string(val))
	case Bool:
		return writeCanonicalBool(buf, bool(val))
	case List:
		return writeCanonicalList(buf, func(yield func(any)) {
			for _, elem := range val {
				yield(elem)
			}
		}, len(val))
	case string:
		return writeCanonicalString(buf, val)
	case bool:
		return writeCanonicalBool(buf, val)
	case int:
		buf.WriteString(strconv.Itoa(val))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case float64:
		return writeCanonicalFloat(buf, val)
	case []any:
		return writeCanonicalList(buf, func(yield func(any)) {
			for _, elem := range val {
				yield(elem)
			}
		}, len(val))
	case []string:
		return writeCanonicalList(buf, func(yield func(any)) {
			for _, elem := range val {
				yield(elem)
			}
		}, len(val))
	case map[string]any:
		return writeCanonicalObject(buf, val)
	case map[string]Value:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			m[k] = elem
		}
		return writeCanonicalObject(buf, m)
	case map[string]float64:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			m[k] = elem
		}
		return writeCanonicalObject(buf, m)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func writeCanonicalBool(buf *bytes.Buffer, b bool) error {
	if b {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
	return nil
}

// writeCanonicalFloat writes the shortest round-trip decimal form.
// Whole floats serialize without a fractional part so that 8 and 8.0 are
// indistinguishable, matching Equal's numeric widening.
func writeCanonicalFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite float %v is forbidden in canonical JSON", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// writeCanonicalString writes an NFC-normalized JSON string without HTML
// escaping (< > & stay literal, as in the canonical-JSON RFCs).
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}
	// json.Encoder appends a trailing newline, drop it.
	out := tmp.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	buf.Write(out)
	return nil
}

func writeCanonicalList(buf *bytes.Buffer, iter func(func(any)), n int) error {
	buf.WriteByte('[')
	i := 0
	var iterErr error
	iter(func(elem any) {
		if iterErr != nil {
			return
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := marshalCanonical(buf, elem); err != nil {
			iterErr = fmt.Errorf("list[%d]: %w", i, err)
			return
		}
		i++
	})
	if iterErr != nil {
		return iterErr
	}
	buf.WriteByte(']')
	return nil
}

func writeCanonicalObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := marshalCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}
