package catalog

import (
	"strings"

	"github.com/MrSnakeDoc/unilend/internal/domain"
)

// Map converts a parsed file to a domain.Catalog. Sections left empty
// keep the default options.
func Map(f File) domain.Catalog {
	def := domain.DefaultCatalog()
	c := domain.Catalog{
		QuickTags:  cleanTags(f.QuickTags),
		Conditions: cleanOptions(f.Books.Conditions),
		Formats:    cleanOptions(f.Notes.Formats),
	}
	if len(c.QuickTags) == 0 {
		c.QuickTags = def.QuickTags
	}
	if len(c.Conditions) == 0 {
		c.Conditions = def.Conditions
	}
	if len(c.Formats) == 0 {
		c.Formats = def.Formats
	}
	return c
}

// cleanTags lowercases, trims and deduplicates tags, keeping file order.
func cleanTags(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// cleanOptions trims and deduplicates labels; case is kept since the
// label is what gets stored on the listing.
func cleanOptions(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}
