package domain

// Catalog holds the option lists clients offer when browsing and uploading.
type Catalog struct {
	QuickTags  []string `json:"quick_tags"`
	Conditions []string `json:"conditions"`
	Formats    []string `json:"formats"`
}

// DefaultCatalog is served when no catalog file is configured.
func DefaultCatalog() Catalog {
	return Catalog{
		QuickTags:  []string{"maths", "physics", "ece", "dsa", "chemistry", "biology", "mechanics"},
		Conditions: []string{"Excellent", "Good", "Average"},
		Formats:    []string{"PDF", "Physical"},
	}
}

// AllowsCondition reports whether c is one of the catalog's book conditions.
// An empty condition list allows anything.
func (c Catalog) AllowsCondition(v string) bool {
	return contains(c.Conditions, v)
}

// AllowsFormat reports whether f is one of the catalog's note formats.
func (c Catalog) AllowsFormat(v string) bool {
	return contains(c.Formats, v)
}

func contains(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}
