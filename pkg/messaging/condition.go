package messaging

import (
	"cmp"
	"fmt"
	"strings"
	"time"
)

// Operator compares a resolved event field with a condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

// Condition is a single declarative test against event data.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// EventData is the payload of a system event: a tree of maps, slices and scalars.
type EventData map[string]any

// Lookup resolves a dot-separated path by walking nested maps.
// The second result is false when any segment is missing.
func (d EventData) Lookup(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = map[string]any(d)
	for _, key := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			current = next
		case EventData:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]string:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			current = next
		default:
			return nil, false
		}
	}
	return current, true
}

// Evaluate reports whether the condition holds for data. Absent fields,
// unknown operators and incomparable operands evaluate to false.
func (c Condition) Evaluate(data EventData) bool {
	field, ok := data.Lookup(c.Field)
	if !ok {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return equal(field, c.Value)
	case OpNotEquals:
		return !equal(field, c.Value)
	case OpGreaterThan:
		n, ok := compare(field, c.Value)
		return ok && n > 0
	case OpLessThan:
		n, ok := compare(field, c.Value)
		return ok && n < 0
	case OpContains:
		if c.Value == nil {
			return false
		}
		return strings.Contains(containsText(field), containsText(c.Value))
	case OpIn:
		list, ok := asList(c.Value)
		return ok && containsValue(list, field)
	case OpNotIn:
		list, ok := asList(c.Value)
		return ok && !containsValue(list, field)
	default:
		return false
	}
}

// equal is strict: values of different kinds never match. All numeric
// kinds compare as float64 since event payloads mostly come from JSON.
func equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return false
	}
}

// compare orders numbers, strings and times. ok is false for any other pairing.
func compare(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		return cmp.Compare(af, bf), true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

// containsText is the substring form of a value. Lists join their elements with a
// comma, so "contains" on ["a","b"] tests against "a,b".
func containsText(v any) string {
	list, ok := asList(v)
	if !ok {
		return plain(v)
	}
	parts := make([]string, len(list))
	for i, item := range list {
		parts[i] = plain(item)
	}
	return strings.Join(parts, ",")
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if equal(v, item) {
			return true
		}
	}
	return false
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}
