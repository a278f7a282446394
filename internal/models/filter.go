package models

import (
	"fmt"
	"reflect"
	"strconv"
)

// FilterOp is the kind of a metadata filter.
type FilterOp string

const (
	FilterEquals FilterOp = "equals"
	FilterIn     FilterOp = "in"
	FilterRange  FilterOp = "range"
	FilterExists FilterOp = "exists"
)

// MetadataFilter is a query-time predicate over a top-level frontmatter
// field. Which value fields are meaningful depends on Op.
type MetadataFilter struct {
	Field  string        `json:"field"`
	Op     FilterOp      `json:"op"`
	Value  interface{}   `json:"value,omitempty"`  // equals
	Values []interface{} `json:"values,omitempty"` // in
	Min    interface{}   `json:"min,omitempty"`    // range, inclusive
	Max    interface{}   `json:"max,omitempty"`    // range, inclusive
}

// Equals builds an equality filter.
func Equals(field string, value interface{}) MetadataFilter {
	return MetadataFilter{Field: field, Op: FilterEquals, Value: value}
}

// In builds a membership filter. For list-typed fields the test is set
// intersection; for scalars it is plain membership.
func In(field string, values ...interface{}) MetadataFilter {
	return MetadataFilter{Field: field, Op: FilterIn, Values: values}
}

// Range builds an inclusive range filter. Either bound may be nil.
func Range(field string, min, max interface{}) MetadataFilter {
	return MetadataFilter{Field: field, Op: FilterRange, Min: min, Max: max}
}

// Exists builds a presence filter (field present and non-null).
func Exists(field string) MetadataFilter {
	return MetadataFilter{Field: field, Op: FilterExists}
}

// Matches evaluates the filter against a frontmatter value. A nil
// frontmatter fails every filter.
func (f MetadataFilter) Matches(frontmatter map[string]interface{}) bool {
	if frontmatter == nil {
		return false
	}
	value, ok := frontmatter[f.Field]
	switch f.Op {
	case FilterExists:
		return ok && value != nil
	case FilterEquals:
		if !ok || value == nil {
			return false
		}
		return jsonEqual(value, f.Value)
	case FilterIn:
		if !ok || value == nil {
			return false
		}
		if list, isList := value.([]interface{}); isList {
			for _, item := range list {
				for _, want := range f.Values {
					if jsonEqual(item, want) {
						return true
					}
				}
			}
			return false
		}
		for _, want := range f.Values {
			if jsonEqual(value, want) {
				return true
			}
		}
		return false
	case FilterRange:
		if !ok || value == nil {
			return false
		}
		return matchRange(value, f.Min, f.Max)
	default:
		return false
	}
}

// jsonEqual compares two dynamic values with JSON semantics: numbers compare
// by value regardless of the concrete Go type the decoder produced.
func jsonEqual(a, b interface{}) bool {
	if na, aok := asNumber(a); aok {
		if nb, bok := asNumber(b); bok {
			return na == nb
		}
		return false
	}
	la, aList := a.([]interface{})
	lb, bList := b.([]interface{})
	if aList || bList {
		if !aList || !bList || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !jsonEqual(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	ma, aMap := a.(map[string]interface{})
	mb, bMap := b.(map[string]interface{})
	if aMap || bMap {
		if !aMap || !bMap || len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, present := mb[k]
			if !present || !jsonEqual(va, vb) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func matchRange(value, min, max interface{}) bool {
	numeric := true
	if min != nil {
		if _, ok := asNumber(min); !ok {
			numeric = false
		}
	}
	if max != nil {
		if _, ok := asNumber(max); !ok {
			numeric = false
		}
	}
	if numeric {
		v, ok := asNumber(value)
		if !ok {
			return false
		}
		if min != nil {
			lo, _ := asNumber(min)
			if v < lo {
				return false
			}
		}
		if max != nil {
			hi, _ := asNumber(max)
			if v > hi {
				return false
			}
		}
		return true
	}
	v := asString(value)
	if min != nil && v < asString(min) {
		return false
	}
	if max != nil && v > asString(max) {
		return false
	}
	return true
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
