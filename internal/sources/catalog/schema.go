package catalog

// File is the structure of catalog.yaml.
//
//	quick_tags: [maths, physics, ece]
//	books:
//	  conditions: [Excellent, Good, Average]
//	notes:
//	  formats: [PDF, Physical]
type File struct {
	QuickTags []string    `yaml:"quick_tags"`
	Books     BookOptions `yaml:"books"`
	Notes     NoteOptions `yaml:"notes"`
}

type BookOptions struct {
	Conditions []string `yaml:"conditions"`
}

type NoteOptions struct {
	Formats []string `yaml:"formats"`
}
