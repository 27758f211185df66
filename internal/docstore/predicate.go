package docstore

import (
	"fmt"
	"sort"
)

// Op is a server-evaluated comparison.
type Op string

const (
	OpEqual         Op = "=="
	OpNotEqual      Op = "!="
	OpArrayContains Op = "array-contains"
)

// Predicate restricts which documents a query or subscription observes.
// The zero Predicate matches every document.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

func Where(field string, op Op, value any) Predicate {
	return Predicate{Field: field, Op: op, Value: value}
}

func (p Predicate) IsZero() bool {
	return p.Field == "" && p.Op == ""
}

func (p Predicate) String() string {
	if p.IsZero() {
		return "*"
	}
	return fmt.Sprintf("%s %s %v", p.Field, p.Op, p.Value)
}

// Match evaluates p against a document's fields. Documents missing the
// field never match, whatever the operator.
func (p Predicate) Match(fields map[string]any) bool {
	if p.IsZero() {
		return true
	}
	v, ok := fields[p.Field]
	if !ok || v == nil {
		return false
	}
	switch p.Op {
	case OpEqual:
		return valuesEqual(v, p.Value)
	case OpNotEqual:
		return !valuesEqual(v, p.Value)
	case OpArrayContains:
		for _, e := range toSlice(v) {
			if valuesEqual(e, p.Value) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// MatchAll reports whether fields satisfy every predicate.
func MatchAll(fields map[string]any, preds ...Predicate) bool {
	for _, p := range preds {
		if !p.Match(fields) {
			return false
		}
	}
	return true
}

// SortByID orders documents by identifier, the default query order.
func SortByID(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

func toSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}
