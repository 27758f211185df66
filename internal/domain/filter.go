package domain

import "strings"

// FilterByTagPrefix returns items with at least one tag starting with
// lowercase(text). Empty text returns items unfiltered. Text is not trimmed,
// so a lone space matches nothing.
func FilterByTagPrefix(items []ListingItem, text string) []ListingItem {
	prefix := strings.ToLower(text)
	if prefix == "" {
		return items
	}
	out := make([]ListingItem, 0, len(items))
	for _, item := range items {
		for _, tag := range item.Tags {
			if strings.HasPrefix(strings.ToLower(tag), prefix) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

// FilterByExactTag returns items whose tag set contains tag, ignoring case.
// An empty tag returns items unfiltered.
func FilterByExactTag(items []ListingItem, tag string) []ListingItem {
	want := strings.ToLower(strings.TrimSpace(tag))
	if want == "" {
		return items
	}
	out := make([]ListingItem, 0, len(items))
	for _, item := range items {
		for _, t := range item.Tags {
			if strings.ToLower(t) == want {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

// ParseTags splits free-form tag input on whitespace and commas,
// lowercases and drops duplicates.
func ParseTags(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	tags := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.ToLower(f)
		if seen[f] {
			continue
		}
		seen[f] = true
		tags = append(tags, f)
	}
	return tags
}
