package docstore

// MutationKind selects how a Mutation changes a field.
type MutationKind int

const (
	MutationSet MutationKind = iota
	MutationArrayUnion
	MutationArrayRemove
)

// Mutation is one partial field change. Array mutations add or remove a
// single member without rewriting the rest of the array, so concurrent
// writers touching other members are preserved.
type Mutation struct {
	Kind  MutationKind
	Field string
	Value any
}

func Set(field string, value any) Mutation {
	return Mutation{Kind: MutationSet, Field: field, Value: value}
}

func ArrayUnion(field string, value any) Mutation {
	return Mutation{Kind: MutationArrayUnion, Field: field, Value: value}
}

func ArrayRemove(field string, value any) Mutation {
	return Mutation{Kind: MutationArrayRemove, Field: field, Value: value}
}

// Apply returns a copy of fields with muts applied in order.
func Apply(fields map[string]any, muts ...Mutation) map[string]any {
	out := CloneFields(fields)
	for _, m := range muts {
		switch m.Kind {
		case MutationSet:
			out[m.Field] = cloneValue(m.Value)
		case MutationArrayUnion:
			current := toSlice(out[m.Field])
			present := false
			for _, e := range current {
				if valuesEqual(e, m.Value) {
					present = true
					break
				}
			}
			next := append([]any{}, current...)
			if !present {
				next = append(next, m.Value)
			}
			out[m.Field] = next
		case MutationArrayRemove:
			current := toSlice(out[m.Field])
			next := make([]any, 0, len(current))
			for _, e := range current {
				if !valuesEqual(e, m.Value) {
					next = append(next, e)
				}
			}
			out[m.Field] = next
		}
	}
	return out
}

// CloneFields deep-copies a document's fields (maps and slices).
func CloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	default:
		return v
	}
}
