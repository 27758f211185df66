package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// knownFields are consumed by Normalize; every other remote field lands in Extra.
var knownFields = map[string]bool{
	FieldTitle: true, FieldAuthor: true, FieldSubject: true, FieldPrice: true,
	FieldDescription: true, FieldUploadedBy: true, FieldCondition: true,
	FieldFormat: true, FieldEdition: true, FieldSemester: true, FieldFileURL: true,
	FieldCreatedAt: true, FieldTags: true, FieldFavoritedBy: true,
	FieldCoverImage: true, FieldBookStatus: true, FieldNoteStatus: true,
	"status": true, "type": true, "id": true,
}

// Normalize maps a loosely-typed remote document into a ListingItem.
//
// It never fails: missing optional fields become zero values, tags and
// favorited_by default to empty slices, every tag is lowercased, and a
// status that is not numeric reads as unavailable.
func Normalize(id string, raw map[string]any, origin Origin) ListingItem {
	item := ListingItem{
		ID:          id,
		Origin:      origin,
		Title:       asString(raw[FieldTitle]),
		Author:      asString(raw[FieldAuthor]),
		Subject:     asString(raw[FieldSubject]),
		Price:       asString(raw[FieldPrice]),
		Description: asString(raw[FieldDescription]),
		UploadedBy:  asString(raw[FieldUploadedBy]),
		Condition:   firstNonEmpty(asString(raw[FieldCondition]), asString(raw[FieldFormat])),
		Edition:     asString(raw[FieldEdition]),
		Semester:    asString(raw[FieldSemester]),
		FileURL:     asString(raw[FieldFileURL]),
		CreatedAt:   asTime(raw[FieldCreatedAt]),
		Status:      statusOf(raw, origin),
		Tags:        lowerAll(asStrings(raw[FieldTags], true)),
		FavoritedBy: asStrings(raw[FieldFavoritedBy], false),
		CoverImages: coverImages(raw[FieldCoverImage]),
	}

	for k, v := range raw {
		if knownFields[k] {
			continue
		}
		if item.Extra == nil {
			item.Extra = make(map[string]any)
		}
		item.Extra[k] = v
	}

	return item
}

// statusOf reads the origin's status field, falling back to the other
// origin's field and then a generic "status".
func statusOf(raw map[string]any, origin Origin) int {
	candidates := []string{origin.StatusField(), FieldBookStatus, FieldNoteStatus, "status"}
	for _, field := range candidates {
		v, ok := raw[field]
		if !ok || v == nil {
			continue
		}
		n, ok := asIntegral(v)
		if !ok {
			return StatusUnavailable
		}
		return n
	}
	return StatusUnavailable
}

// asIntegral accepts integer types and whole float64 values, which is how
// JSON numbers come back from the store. Strings, booleans and fractions
// are rejected.
func asIntegral(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case int32:
		return int(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	default:
		return 0, false
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case int32:
		return int(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	case bool:
		if t {
			return StatusAvailable, true
		}
		return StatusUnavailable, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}

// asStrings accepts a list of strings, a list of anything, or a single
// string. splitSpaces splits a single string on whitespace, which is how
// the upload form captured tags.
func asStrings(v any, splitSpaces bool) []string {
	out := []string{}
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			if s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, e := range t {
			if s := asString(e); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if splitSpaces {
			out = append(out, strings.Fields(t)...)
		} else if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	for i, s := range in {
		in[i] = strings.ToLower(s)
	}
	return in
}

func coverImages(v any) []string {
	if v == nil {
		return nil
	}
	urls := asStrings(v, false)
	if len(urls) == 0 {
		return nil
	}
	return urls
}

// asTime understands time.Time, RFC3339 strings, unix seconds and
// {"seconds": n} timestamp maps.
func asTime(v any) *time.Time {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case *time.Time:
		if x == nil {
			return nil
		}
		t = *x
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return nil
		}
		t = parsed
	case float64:
		t = time.Unix(int64(x), 0)
	case int64:
		t = time.Unix(x, 0)
	case map[string]any:
		secs, ok := asInt(x["seconds"])
		if !ok {
			return nil
		}
		t = time.Unix(int64(secs), 0)
	default:
		return nil
	}
	t = t.UTC()
	return &t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
